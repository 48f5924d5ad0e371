package models

// Product is a tracked item. Alias is the stable external key and never
// changes after creation; Name is the display name.
type Product struct {
	Base
	Name          string         `gorm:"not null" json:"name"`
	Alias         string         `gorm:"not null;uniqueIndex:uq_products_alias" json:"alias"`
	Presentations []Presentation `gorm:"foreignKey:ProductID" json:"presentations,omitempty"`
}

// Presentation is a packaged size of a Product. UnitCount divides the
// effective price to get the price per unit.
type Presentation struct {
	Base
	ProductID string   `gorm:"type:uuid;not null;uniqueIndex:uq_presentations_product_size" json:"product_id"`
	Size      string   `gorm:"not null;uniqueIndex:uq_presentations_product_size" json:"size"`
	UnitCount int      `gorm:"not null" json:"unit_count"`
	Stores    []Store  `gorm:"foreignKey:PresentationID" json:"stores,omitempty"`
	Product   *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

// Store is one retailer URL offering a Presentation. URL is globally unique.
type Store struct {
	Base
	PresentationID string        `gorm:"type:uuid;not null;index" json:"presentation_id"`
	StoreName      string        `gorm:"column:store_name;not null" json:"store_name"`
	URL            string        `gorm:"column:url;not null;uniqueIndex:uq_stores_url" json:"url"`
	Presentation   *Presentation `gorm:"foreignKey:PresentationID" json:"presentation,omitempty"`
}
