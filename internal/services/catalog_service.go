package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"pricewatch/internal/config"
	apperrors "pricewatch/internal/errors"
	"pricewatch/internal/models"
	"pricewatch/internal/pagination"
)

// DefaultHistoryLimit is the number of observations History returns when no
// limit is given.
const DefaultHistoryLimit = 10

// pricePerUnitScale is the number of decimals kept for price per unit.
const pricePerUnitScale = 6

// priceScale is the number of decimals stored for official and discounted prices.
const priceScale = 2

// catalogService handles the product hierarchy and price history.
type catalogService struct {
	db    *gorm.DB
	now   func() time.Time
	locks *keyedMutex
}

// CatalogOption configures a catalog service.
type CatalogOption func(*catalogService)

// WithClock sets the clock used to timestamp observations.
func WithClock(now func() time.Time) CatalogOption {
	return func(s *catalogService) { s.now = now }
}

// NewCatalogService creates a new CatalogServicer.
func NewCatalogService(db *gorm.DB, opts ...CatalogOption) CatalogServicer {
	s := &catalogService{db: db, now: time.Now, locks: newKeyedMutex()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertProduct returns the id of the product with alias, creating it if needed.
// A changed display name is saved; the alias never changes.
func (s *catalogService) UpsertProduct(ctx context.Context, name, alias string) (string, error) {
	return upsertProduct(s.db.WithContext(ctx), name, alias)
}

// UpsertPresentation returns the id of the presentation keyed by (productID, size).
func (s *catalogService) UpsertPresentation(ctx context.Context, productID, size string, unitCount int) (string, error) {
	return upsertPresentation(s.db.WithContext(ctx), productID, size, unitCount)
}

// UpsertStore returns the id of the store keyed by url.
func (s *catalogService) UpsertStore(ctx context.Context, presentationID, storeName, url string) (string, error) {
	return upsertStore(s.db.WithContext(ctx), presentationID, storeName, url)
}

func upsertProduct(tx *gorm.DB, name, alias string) (string, error) {
	name = strings.TrimSpace(name)
	alias = strings.TrimSpace(alias)
	if name == "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidConfig, "Product name is required")
	}
	if alias == "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidConfig, "Product alias is required")
	}

	var product models.Product
	err := tx.Where(models.Product{Alias: alias}).Attrs(models.Product{Name: name}).FirstOrCreate(&product).Error
	if err != nil && isUniqueConstraintError(err) {
		// Lost a create race on the same alias; the row exists now.
		err = tx.Where("alias = ?", alias).First(&product).Error
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if product.Name != name {
		if err := tx.Model(&product).Update("name", name).Error; err != nil {
			return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return product.ID, nil
}

func upsertPresentation(tx *gorm.DB, productID, size string, unitCount int) (string, error) {
	size = strings.TrimSpace(size)
	if unitCount <= 0 {
		return "", apperrors.WithMessage(apperrors.ErrInvalidConfig, fmt.Sprintf("unit_count must be a positive integer, got %d", unitCount))
	}
	if size == "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidConfig, "Presentation size is required")
	}

	var count int64
	if err := tx.Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return "", apperrors.ErrProductNotFound
	}

	var presentation models.Presentation
	err := tx.Where(models.Presentation{ProductID: productID, Size: size}).
		Attrs(models.Presentation{UnitCount: unitCount}).
		FirstOrCreate(&presentation).Error
	if err != nil && isUniqueConstraintError(err) {
		err = tx.Where("product_id = ? AND size = ?", productID, size).First(&presentation).Error
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if presentation.UnitCount != unitCount {
		if err := tx.Model(&presentation).Update("unit_count", unitCount).Error; err != nil {
			return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return presentation.ID, nil
}

func upsertStore(tx *gorm.DB, presentationID, storeName, url string) (string, error) {
	storeName = strings.TrimSpace(storeName)
	url = strings.TrimSpace(url)
	if url == "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidConfig, "Store url is required")
	}
	if storeName == "" {
		return "", apperrors.WithMessage(apperrors.ErrInvalidConfig, "Store name is required")
	}

	var count int64
	if err := tx.Model(&models.Presentation{}).Where("id = ?", presentationID).Count(&count).Error; err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return "", apperrors.WithMessage(apperrors.ErrNotFound, "Presentation not found")
	}

	var store models.Store
	err := tx.Where(models.Store{URL: url}).
		Attrs(models.Store{PresentationID: presentationID, StoreName: storeName}).
		FirstOrCreate(&store).Error
	if err != nil && isUniqueConstraintError(err) {
		err = tx.Where("url = ?", url).First(&store).Error
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if store.PresentationID != presentationID {
		return "", apperrors.WithMessage(apperrors.ErrConflictingStoreMapping,
			fmt.Sprintf("url %s already belongs to presentation %s", url, store.PresentationID))
	}
	if store.StoreName != storeName {
		if err := tx.Model(&store).Update("store_name", storeName).Error; err != nil {
			return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return store.ID, nil
}

// SeedHierarchy upserts every product, presentation and store in one
// transaction. Any failure rolls the whole file back.
func (s *catalogService) SeedHierarchy(ctx context.Context, products []config.ProductConfig) (*SeedResult, error) {
	result := &SeedResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range products {
			productID, err := upsertProduct(tx, p.Name, p.Alias)
			if err != nil {
				return err
			}
			result.Products++

			for _, pr := range p.Presentations {
				presentationID, err := upsertPresentation(tx, productID, pr.Size, pr.UnitCount)
				if err != nil {
					return err
				}
				result.Presentations++

				for _, st := range pr.Stores {
					if _, err := upsertStore(tx, presentationID, st.Name, st.URL); err != nil {
						return err
					}
					result.Stores++
				}
			}
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

// RecordObservation appends a price observation for the store at url,
// timestamped with the service clock.
func (s *catalogService) RecordObservation(ctx context.Context, url, name string, official float64, discounted *float64) (*models.PriceObservation, error) {
	return s.RecordObservationAt(ctx, url, name, official, discounted, s.now())
}

// RecordObservationAt appends a price observation with an explicit timestamp.
// Writes for the same url are serialized; different urls proceed concurrently.
func (s *catalogService) RecordObservationAt(
	ctx context.Context,
	url, name string,
	official float64,
	discounted *float64,
	at time.Time,
) (*models.PriceObservation, error) {
	// Validation and price per unit work on the prices as stored.
	officialPrice := decimal.NewFromFloat(official).Round(priceScale)
	var discountedPrice decimal.NullDecimal
	if discounted != nil {
		discountedPrice = decimal.NewNullDecimal(decimal.NewFromFloat(*discounted).Round(priceScale))
	}
	if err := validateStoredPrices(officialPrice, discountedPrice); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(url)
	defer unlock()

	db := s.db.WithContext(ctx)
	store, err := findStore(db, url, apperrors.ErrPersistence)
	if err != nil {
		return nil, err
	}
	if store.Presentation == nil || store.Presentation.UnitCount <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidConfig, "Store presentation has no valid unit_count")
	}

	effective := officialPrice
	if discountedPrice.Valid {
		effective = discountedPrice.Decimal
	}
	obs := &models.PriceObservation{
		StoreID:         store.ID,
		ProductName:     name,
		OfficialPrice:   officialPrice,
		DiscountedPrice: discountedPrice,
		PricePerUnit:    effective.DivRound(decimal.NewFromInt(int64(store.Presentation.UnitCount)), pricePerUnitScale),
		ObservedAt:      at.UTC().Truncate(time.Microsecond),
	}

	if err := db.Create(obs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPersistence, err)
	}
	return obs, nil
}

// ValidatePrices checks the observation price invariants.
func ValidatePrices(official float64, discounted *float64) error {
	if official <= 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidPrice, fmt.Sprintf("official price must be positive, got %v", official))
	}
	if discounted != nil {
		if *discounted <= 0 {
			return apperrors.WithMessage(apperrors.ErrInvalidPrice, fmt.Sprintf("discounted price must be positive, got %v", *discounted))
		}
		if *discounted >= official {
			return apperrors.WithMessage(apperrors.ErrInvalidPrice,
				fmt.Sprintf("discounted price %v must be below official price %v", *discounted, official))
		}
	}
	return nil
}

func validateStoredPrices(official decimal.Decimal, discounted decimal.NullDecimal) error {
	if !discounted.Valid {
		return ValidatePrices(official.InexactFloat64(), nil)
	}
	d := discounted.Decimal.InexactFloat64()
	return ValidatePrices(official.InexactFloat64(), &d)
}

// LastObservation returns the observation with the latest timestamp for the
// store at url, or nil when the store has no history.
func (s *catalogService) LastObservation(ctx context.Context, url string) (*models.PriceObservation, error) {
	db := s.db.WithContext(ctx)
	store, err := findStore(db, url, apperrors.ErrInternalServer)
	if err != nil {
		return nil, err
	}

	var obs models.PriceObservation
	err = db.Where("store_id = ?", store.ID).
		Order("observed_at DESC").Order("id DESC").
		First(&obs).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &obs, nil
}

// History returns up to limit observations for the store at url, most recent first.
func (s *catalogService) History(ctx context.Context, url string, limit int) ([]models.PriceObservation, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	db := s.db.WithContext(ctx)
	store, err := findStore(db, url, apperrors.ErrInternalServer)
	if err != nil {
		return nil, err
	}

	var history []models.PriceObservation
	err = db.Where("store_id = ?", store.ID).
		Order("observed_at DESC").Order("id DESC").
		Limit(limit).
		Find(&history).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return history, nil
}

// ListTargets returns every configured store with its product and
// presentation, optionally restricted to the given product aliases.
func (s *catalogService) ListTargets(ctx context.Context, aliases ...string) ([]Target, error) {
	q := s.db.WithContext(ctx).Table("stores").
		Select("products.id AS product_id, products.name AS product_name, products.alias AS alias, " +
			"presentations.id AS presentation_id, presentations.size AS size, presentations.unit_count AS unit_count, " +
			"stores.id AS store_id, stores.store_name AS store_name, stores.url AS url").
		Joins("JOIN presentations ON presentations.id = stores.presentation_id").
		Joins("JOIN products ON products.id = presentations.product_id")
	if len(aliases) > 0 {
		q = q.Where("products.alias IN ?", aliases)
	}

	var targets []Target
	err := q.Order("products.name ASC").Order("presentations.size ASC").Order("stores.store_name ASC").
		Scan(&targets).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return targets, nil
}

// ListProducts returns all products with their presentations and stores.
func (s *catalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.WithContext(ctx).
		Preload("Presentations", func(db *gorm.DB) *gorm.DB { return db.Order("size ASC") }).
		Preload("Presentations.Stores", func(db *gorm.DB) *gorm.DB { return db.Order("store_name ASC") }).
		Order("name ASC").
		Find(&products).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return products, nil
}

// GetProduct returns the product with alias and its hierarchy.
func (s *catalogService) GetProduct(ctx context.Context, alias string) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).
		Preload("Presentations", func(db *gorm.DB) *gorm.DB { return db.Order("size ASC") }).
		Preload("Presentations.Stores", func(db *gorm.DB) *gorm.DB { return db.Order("store_name ASC") }).
		Where("alias = ?", alias).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrProductNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &product, nil
}

// HistoryByAlias returns paginated observations across every store of a product, most recent first.
func (s *catalogService) HistoryByAlias(ctx context.Context, alias string, page pagination.PageRequest) (*pagination.PageResponse[AliasObservation], error) {
	page.Defaults()

	if _, err := s.productIDByAlias(ctx, alias); err != nil {
		return nil, err
	}

	base := s.aliasPrices(ctx, alias)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var rows []AliasObservation
	err := base.Select("prices.id, prices.store_id, prices.product_name, prices.official_price, prices.discounted_price, " +
		"prices.price_per_unit, prices.observed_at, stores.store_name, stores.url, presentations.size, presentations.unit_count").
		Order("prices.observed_at DESC").Order("prices.id DESC").
		Scopes(pagination.Paginate(page)).
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(rows, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// BestPricesPerUnit returns the lowest price per unit ever seen at each store
// of a product, cheapest first.
func (s *catalogService) BestPricesPerUnit(ctx context.Context, alias string, limit int) ([]UnitPrice, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if _, err := s.productIDByAlias(ctx, alias); err != nil {
		return nil, err
	}

	var rows []UnitPrice
	err := s.aliasPrices(ctx, alias).
		Select("stores.id AS store_id, stores.store_name, stores.url, presentations.size, presentations.unit_count, " +
			"prices.official_price, prices.discounted_price, prices.price_per_unit, prices.observed_at").
		Order("prices.price_per_unit ASC").Order("prices.observed_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	// Rows arrive cheapest first, so the first row per store is its best.
	seen := make(map[string]bool)
	best := make([]UnitPrice, 0, limit)
	for _, r := range rows {
		if seen[r.StoreID] {
			continue
		}
		seen[r.StoreID] = true
		best = append(best, r)
		if len(best) == limit {
			break
		}
	}
	return best, nil
}

// RenameProduct changes the display name of the product with alias.
func (s *catalogService) RenameProduct(ctx context.Context, alias, name string) (*models.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Name is required")
	}

	db := s.db.WithContext(ctx)
	var product models.Product
	if err := db.Where("alias = ?", alias).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrProductNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := db.Model(&product).Update("name", name).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	product.Name = name
	return &product, nil
}

// DeleteProduct removes a product with its presentations and stores. A
// product with price history is only removed when cascade is set, in which
// case its observations go too.
func (s *catalogService) DeleteProduct(ctx context.Context, alias string, cascade bool) (*DeleteResult, error) {
	result := &DeleteResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.Where("alias = ?", alias).First(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrProductNotFound
			}
			return err
		}

		var storeIDs []string
		err := tx.Model(&models.Store{}).
			Joins("JOIN presentations ON presentations.id = stores.presentation_id").
			Where("presentations.product_id = ?", product.ID).
			Pluck("stores.id", &storeIDs).Error
		if err != nil {
			return err
		}

		if len(storeIDs) > 0 {
			var priceCount int64
			if err := tx.Model(&models.PriceObservation{}).Where("store_id IN ?", storeIDs).Count(&priceCount).Error; err != nil {
				return err
			}
			if priceCount > 0 && !cascade {
				return apperrors.WithMessage(apperrors.ErrProductHasHistory,
					fmt.Sprintf("Product %s has %d price observations; cascade is required to delete it", alias, priceCount))
			}

			res := tx.Where("store_id IN ?", storeIDs).Delete(&models.PriceObservation{})
			if res.Error != nil {
				return res.Error
			}
			result.Observations = res.RowsAffected

			res = tx.Where("id IN ?", storeIDs).Delete(&models.Store{})
			if res.Error != nil {
				return res.Error
			}
			result.Stores = res.RowsAffected
		}

		res := tx.Where("product_id = ?", product.ID).Delete(&models.Presentation{})
		if res.Error != nil {
			return res.Error
		}
		result.Presentations = res.RowsAffected

		return tx.Delete(&product).Error
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return result, nil
}

func (s *catalogService) productIDByAlias(ctx context.Context, alias string) (string, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).Select("id").Where("alias = ?", alias).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrProductNotFound
		}
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return product.ID, nil
}

// aliasPrices is the prices query joined up to the product with alias.
// The returned chain is safe to reuse for count and select.
func (s *catalogService) aliasPrices(ctx context.Context, alias string) *gorm.DB {
	return s.db.WithContext(ctx).Table("prices").
		Joins("JOIN stores ON stores.id = prices.store_id").
		Joins("JOIN presentations ON presentations.id = stores.presentation_id").
		Joins("JOIN products ON products.id = presentations.product_id").
		Where("products.alias = ?", alias).
		Session(&gorm.Session{})
}

// findStore resolves url to its store and presentation. Lookup failures
// other than a missing store are wrapped in failure.
func findStore(db *gorm.DB, url string, failure *apperrors.AppError) (*models.Store, error) {
	var store models.Store
	if err := db.Preload("Presentation").Where("url = ?", url).First(&store).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.WithMessage(apperrors.ErrUnknownStore, "Store URL is not in the catalog: "+url)
		}
		return nil, apperrors.Wrap(failure, err)
	}
	return &store, nil
}

// isUniqueConstraintError checks if a database error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "duplicate key value violates unique constraint") // PostgreSQL
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
