// Package domain contains persistence models for collectors and the
// stores they serve.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Collector is a hauling company or crew settling with an organization.
type Collector struct {
	ID           snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID   `gorm:"not null;index;uniqueIndex:ux_collectors_org_code,priority:1" json:"org_id"`
	Name         string         `gorm:"type:text;not null" json:"name"`
	Code         string         `gorm:"type:text;not null;uniqueIndex:ux_collectors_org_code,priority:2" json:"code"`
	ContactName  string         `gorm:"type:text" json:"contact_name"`
	ContactPhone string         `gorm:"type:text" json:"contact_phone"`
	// Contracted flat fee billed each month as a FIXED item; zero means
	// the collector settles on metered activity only.
	MonthlyFee int64          `gorm:"not null;default:0" json:"monthly_fee"`
	IsActive   bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (Collector) TableName() string { return "collectors" }

// Store is a pickup location assigned to a collector.
type Store struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID   `gorm:"not null;index" json:"org_id"`
	CollectorID snowflake.ID   `gorm:"not null;index" json:"collector_id"`
	Name        string         `gorm:"type:text;not null" json:"name"`
	Address     string         `gorm:"type:text" json:"address"`
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (Store) TableName() string { return "stores" }
