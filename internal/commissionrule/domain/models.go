// Package domain contains the commission rule model and service contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CommissionRule configures how commission is computed for a scope. A
// nil CollectorID makes the rule org-wide. Commission type and value are
// immutable after creation so settled items stay traceable to the exact
// rule that produced them; rules are retired by deactivation or soft
// deletion, never edited in place.
type CommissionRule struct {
	ID               snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID   `gorm:"not null;index:ix_commission_rules_org" json:"org_id"`
	CollectorID      *snowflake.ID  `gorm:"index" json:"collector_id,omitempty"`
	BillingType      string         `gorm:"type:text;not null" json:"billing_type"`
	CommissionType   string         `gorm:"type:text;not null" json:"commission_type"`
	CommissionRate   *float64       `json:"commission_rate,omitempty"`
	CommissionAmount *int64         `json:"commission_amount,omitempty"`
	IsActive         bool           `gorm:"not null;default:true" json:"is_active"`
	EffectiveFrom    *time.Time     `json:"effective_from,omitempty"`
	EffectiveTo      *time.Time     `json:"effective_to,omitempty"`
	Notes            string         `gorm:"type:text" json:"notes"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (CommissionRule) TableName() string { return "commission_rules" }

// ResolvedDefault is the winning rule for one billing type.
type ResolvedDefault struct {
	CommissionType   string   `json:"commission_type"`
	CommissionRate   *float64 `json:"commission_rate,omitempty"`
	CommissionAmount *int64   `json:"commission_amount,omitempty"`
	SourceRuleID     string   `json:"source_rule_id"`
}
