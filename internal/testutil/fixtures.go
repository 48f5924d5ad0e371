package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"pricewatch/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestProduct creates a product with a unique alias.
func CreateTestProduct(t *testing.T, db *gorm.DB) *models.Product {
	t.Helper()
	n := nextID()
	return CreateTestProductWithAlias(t, db, fmt.Sprintf("Test Product %d", n), fmt.Sprintf("product-%d", n))
}

// CreateTestProductWithAlias creates a product with the given name and alias.
func CreateTestProductWithAlias(t *testing.T, db *gorm.DB, name, alias string) *models.Product {
	t.Helper()

	product := &models.Product{Name: name, Alias: alias}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("failed to create test product: %v", err)
	}
	return product
}

// CreateTestPresentation creates a presentation of productID with the given unit count.
func CreateTestPresentation(t *testing.T, db *gorm.DB, productID string, unitCount int) *models.Presentation {
	t.Helper()

	presentation := &models.Presentation{
		ProductID: productID,
		Size:      fmt.Sprintf("Size %d", nextID()),
		UnitCount: unitCount,
	}
	if err := db.Create(presentation).Error; err != nil {
		t.Fatalf("failed to create test presentation: %v", err)
	}
	return presentation
}

// CreateTestStore creates a store for presentationID with a unique URL.
func CreateTestStore(t *testing.T, db *gorm.DB, presentationID string) *models.Store {
	t.Helper()
	return CreateTestStoreWithURL(t, db, presentationID, fmt.Sprintf("https://shop.example/p/%d", nextID()))
}

// CreateTestStoreWithURL creates a store for presentationID at url.
func CreateTestStoreWithURL(t *testing.T, db *gorm.DB, presentationID, url string) *models.Store {
	t.Helper()

	store := &models.Store{
		PresentationID: presentationID,
		StoreName:      fmt.Sprintf("Retailer %d", nextID()),
		URL:            url,
	}
	if err := db.Create(store).Error; err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	return store
}

// CreateTestHierarchy creates a product, one presentation and one store.
func CreateTestHierarchy(t *testing.T, db *gorm.DB, unitCount int) (*models.Product, *models.Presentation, *models.Store) {
	t.Helper()

	product := CreateTestProduct(t, db)
	presentation := CreateTestPresentation(t, db, product.ID, unitCount)
	store := CreateTestStore(t, db, presentation.ID)
	return product, presentation, store
}

// CreateTestObservation inserts a price row for store at the given time.
// The price per unit is computed with unitCount.
func CreateTestObservation(t *testing.T, db *gorm.DB, storeID string, official float64, discounted *float64, unitCount int, at time.Time) *models.PriceObservation {
	t.Helper()

	effective := official
	obs := &models.PriceObservation{
		StoreID:       storeID,
		ProductName:   "Fixture Product",
		OfficialPrice: decimal.NewFromFloat(official),
		ObservedAt:    at.UTC(),
	}
	if discounted != nil {
		effective = *discounted
		obs.DiscountedPrice = decimal.NewNullDecimal(decimal.NewFromFloat(*discounted))
	}
	obs.PricePerUnit = decimal.NewFromFloat(effective).DivRound(decimal.NewFromInt(int64(unitCount)), 6)

	if err := db.Create(obs).Error; err != nil {
		t.Fatalf("failed to create test observation: %v", err)
	}
	return obs
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
