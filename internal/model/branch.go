package model

import (
	"time"

	"gorm.io/gorm"
)

// Branch represents a support branch and its messaging redirect link
type Branch struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	BranchID   string         `json:"branch_id" gorm:"type:varchar(100);uniqueIndex;not null"`
	BranchName string         `json:"branch_name" gorm:"type:varchar(100);uniqueIndex;not null"`
	WaLink     string         `json:"wa_link" gorm:"type:varchar(255);not null"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}
