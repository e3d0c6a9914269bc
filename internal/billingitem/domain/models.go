// Package domain contains the billing item model, its status machine and
// the service contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// BillingItem is one settleable line: a charge owed by a collector to
// the organization for a settlement month. Monetary values are integers
// in the smallest currency unit.
//
// Invariants: TotalAmount = BaseAmount + TaxAmount; when a commission is
// set, NetAmount = BaseAmount - CommissionAmount. Items in APPROVED or
// FINALIZED reject every commission and monetary edit.
type BillingItem struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID  `gorm:"not null;index:ix_billing_items_key,priority:1" json:"org_id"`
	CollectorID  snowflake.ID  `gorm:"not null;index:ix_billing_items_key,priority:2" json:"collector_id"`
	StoreID      *snowflake.ID `gorm:"index" json:"store_id,omitempty"`
	BillingMonth string        `gorm:"type:text;not null;index:ix_billing_items_key,priority:3" json:"billing_month"`
	BillingType  string        `gorm:"type:text;not null" json:"billing_type"`
	Description  string        `gorm:"type:text" json:"description"`

	Quantity  int64 `gorm:"not null;default:0" json:"quantity"`
	UnitPrice int64 `gorm:"not null;default:0" json:"unit_price"`

	BaseAmount  int64 `gorm:"not null" json:"base_amount"`
	TaxAmount   int64 `gorm:"not null" json:"tax_amount"`
	TotalAmount int64 `gorm:"not null" json:"total_amount"`

	CommissionType     *string       `gorm:"type:text" json:"commission_type,omitempty"`
	CommissionRate     *float64      `json:"commission_rate,omitempty"`
	CommissionAmount   int64         `gorm:"not null;default:0" json:"commission_amount"`
	NetAmount          int64         `gorm:"not null;default:0" json:"net_amount"`
	CommissionNote     string        `gorm:"type:text" json:"commission_note"`
	IsManualCommission bool          `gorm:"not null;default:false" json:"is_manual_commission"`
	SourceRuleID       *snowflake.ID `json:"source_rule_id,omitempty"`

	Status    string         `gorm:"type:text;not null;index" json:"status"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (BillingItem) TableName() string { return "billing_items" }
