package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProjectVideoQuestionDisplay overrides how a question is shown for one video
// in one project. Only questions of non-reusable groups may be overridden.
type ProjectVideoQuestionDisplay struct {
	ID                     uint              `gorm:"primaryKey" json:"id"`
	ProjectID              uint              `gorm:"uniqueIndex:idx_display_cell;not null" json:"project_id"`
	Project                *Project          `gorm:"foreignKey:ProjectID" json:"-"`
	VideoID                uint              `gorm:"uniqueIndex:idx_display_cell;not null" json:"video_id"`
	Video                  *Video            `gorm:"foreignKey:VideoID" json:"-"`
	QuestionID             uint              `gorm:"uniqueIndex:idx_display_cell;not null" json:"question_id"`
	Question               *Question         `gorm:"foreignKey:QuestionID" json:"-"`
	CustomDisplayText      *string           `gorm:"type:text" json:"custom_display_text"`
	CustomOptionDisplayMap datatypes.JSONMap `json:"custom_option_display_map"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

func (ProjectVideoQuestionDisplay) TableName() string { return "project_video_question_displays" }

// OptionLabel returns the overridden label for an option value, if any.
func (d *ProjectVideoQuestionDisplay) OptionLabel(value string) (string, bool) {
	if d.CustomOptionDisplayMap == nil {
		return "", false
	}
	label, ok := d.CustomOptionDisplayMap[value].(string)
	return label, ok
}
