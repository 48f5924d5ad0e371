package models

import (
	"time"

	"pricewatch/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PriceObservation is one extracted price for a Store.
// Immutable time-series data: no Base embed, never updated.
type PriceObservation struct {
	ID              string              `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID         string              `gorm:"type:uuid;not null;index:idx_prices_store_observed,priority:1" json:"store_id"`
	ProductName     string              `gorm:"not null" json:"product_name"`
	OfficialPrice   decimal.Decimal     `gorm:"type:numeric(14,2);not null" json:"official_price"`
	DiscountedPrice decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"discounted_price"`
	PricePerUnit    decimal.Decimal     `gorm:"type:numeric(18,6);not null" json:"price_per_unit"`
	ObservedAt      time.Time           `gorm:"not null;index:idx_prices_store_observed,priority:2,sort:desc" json:"observed_at"`
	Store           *Store              `gorm:"foreignKey:StoreID" json:"store,omitempty"`
}

// TableName keeps the relation name used by the migrations.
func (PriceObservation) TableName() string { return "prices" }

// BeforeCreate hook generates a UUIDv7 for new records
func (p *PriceObservation) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	return nil
}

// Official returns the official price as a float.
func (p *PriceObservation) Official() float64 {
	return p.OfficialPrice.InexactFloat64()
}

// Discounted returns the discounted price, or nil when the observation had no discount.
func (p *PriceObservation) Discounted() *float64 {
	if !p.DiscountedPrice.Valid {
		return nil
	}
	v := p.DiscountedPrice.Decimal.InexactFloat64()
	return &v
}

// Effective returns the discounted price when present, else the official price.
func (p *PriceObservation) Effective() float64 {
	if d := p.Discounted(); d != nil {
		return *d
	}
	return p.Official()
}
