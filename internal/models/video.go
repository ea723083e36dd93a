package models

import (
	"time"

	"gorm.io/datatypes"
)

// Video is a playable clip identified by a stable uid
type Video struct {
	ID         uint                        `gorm:"primaryKey" json:"id"`
	VideoUID   string                      `gorm:"uniqueIndex;size:255;not null" json:"video_uid"`
	URL        string                      `gorm:"size:1000;not null" json:"url"`
	Metadata   datatypes.JSON              `json:"metadata"`
	Tags       datatypes.JSONSlice[string] `json:"tags"`
	IsArchived bool                        `gorm:"default:false" json:"is_archived"`
	CreatedAt  time.Time                   `json:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

func (Video) TableName() string { return "videos" }
