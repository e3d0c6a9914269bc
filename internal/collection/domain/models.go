// Package domain contains collection activity records and the item
// generator contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CollectionRecord is one pickup: a quantity of a waste item collected
// at a store, priced per unit. Records are raw activity; the generator
// rolls them into billing items once the month closes.
type CollectionRecord struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID   `gorm:"not null;index:ix_collection_records_org_month,priority:1" json:"org_id"`
	CollectorID snowflake.ID   `gorm:"not null;index" json:"collector_id"`
	StoreID     snowflake.ID   `gorm:"not null;index" json:"store_id"`
	WasteItem   string         `gorm:"type:text;not null" json:"waste_item"`
	Quantity    int64          `gorm:"not null" json:"quantity"`
	UnitPrice   int64          `gorm:"not null" json:"unit_price"`
	Amount      int64          `gorm:"not null" json:"amount"`
	// BillingMonth is derived from the pickup date at ingest so the
	// generator never re-bins records across timezones.
	BillingMonth string         `gorm:"type:text;not null;index:ix_collection_records_org_month,priority:2" json:"billing_month"`
	CollectedAt  time.Time      `gorm:"not null" json:"collected_at"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (CollectionRecord) TableName() string { return "collection_records" }
