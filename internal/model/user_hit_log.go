package model

import (
	"time"
)

// UserHitLog is an append-only record of a directory resolution: which public
// identifier was looked up and which messaging link was handed out. Rows are
// never updated or deleted; the analytics endpoints aggregate over them.
type UserHitLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:varchar(100);index;not null"`
	WaLink    string    `json:"wa_link" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
