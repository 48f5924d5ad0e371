package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/config"
	"pricewatch/internal/models"
	"pricewatch/internal/pagination"
)

// CatalogServicer defines the contract for the product hierarchy and its
// append-only price history.
type CatalogServicer interface {
	UpsertProduct(ctx context.Context, name, alias string) (string, error)
	UpsertPresentation(ctx context.Context, productID, size string, unitCount int) (string, error)
	UpsertStore(ctx context.Context, presentationID, storeName, url string) (string, error)
	SeedHierarchy(ctx context.Context, products []config.ProductConfig) (*SeedResult, error)

	RecordObservation(ctx context.Context, url, name string, official float64, discounted *float64) (*models.PriceObservation, error)
	RecordObservationAt(ctx context.Context, url, name string, official float64, discounted *float64, at time.Time) (*models.PriceObservation, error)
	LastObservation(ctx context.Context, url string) (*models.PriceObservation, error)
	History(ctx context.Context, url string, limit int) ([]models.PriceObservation, error)

	ListTargets(ctx context.Context, aliases ...string) ([]Target, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, alias string) (*models.Product, error)
	HistoryByAlias(ctx context.Context, alias string, page pagination.PageRequest) (*pagination.PageResponse[AliasObservation], error)
	BestPricesPerUnit(ctx context.Context, alias string, limit int) ([]UnitPrice, error)
	RenameProduct(ctx context.Context, alias, name string) (*models.Product, error)
	DeleteProduct(ctx context.Context, alias string, cascade bool) (*DeleteResult, error)
}

// Target is one store the tracker visits, flattened with its product and presentation.
type Target struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Alias          string `json:"alias"`
	PresentationID string `json:"presentation_id"`
	Size           string `json:"size"`
	UnitCount      int    `json:"unit_count"`
	StoreID        string `json:"store_id"`
	StoreName      string `json:"store_name"`
	URL            string `json:"url"`
}

// Label is the human-readable name used in alerts, e.g. "Diapers (RetailerA)".
func (t Target) Label() string {
	return fmt.Sprintf("%s (%s)", t.ProductName, t.StoreName)
}

// SeedResult counts the entries applied by SeedHierarchy.
type SeedResult struct {
	Products      int `json:"products"`
	Presentations int `json:"presentations"`
	Stores        int `json:"stores"`
}

// DeleteResult counts the rows removed by DeleteProduct.
type DeleteResult struct {
	Presentations int64 `json:"presentations"`
	Stores        int64 `json:"stores"`
	Observations  int64 `json:"observations"`
}

// AliasObservation is a price observation with its store and presentation.
type AliasObservation struct {
	ID              string              `json:"id"`
	StoreID         string              `json:"store_id"`
	ProductName     string              `json:"product_name"`
	OfficialPrice   decimal.Decimal     `json:"official_price"`
	DiscountedPrice decimal.NullDecimal `json:"discounted_price"`
	PricePerUnit    decimal.Decimal     `json:"price_per_unit"`
	ObservedAt      time.Time           `json:"observed_at"`
	StoreName       string              `json:"store_name"`
	URL             string              `json:"url"`
	Size            string              `json:"size"`
	UnitCount       int                 `json:"unit_count"`
}

// UnitPrice is the best price per unit seen at one store.
type UnitPrice struct {
	StoreID         string              `json:"store_id"`
	StoreName       string              `json:"store_name"`
	URL             string              `json:"url"`
	Size            string              `json:"size"`
	UnitCount       int                 `json:"unit_count"`
	OfficialPrice   decimal.Decimal     `json:"official_price"`
	DiscountedPrice decimal.NullDecimal `json:"discounted_price"`
	PricePerUnit    decimal.Decimal     `json:"price_per_unit"`
	ObservedAt      time.Time           `json:"observed_at"`
}
