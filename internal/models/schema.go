package models

import "time"

// Schema is an ordered list of question groups defining a project's question set.
type Schema struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	HasCustomDisplay bool      `gorm:"default:false" json:"has_custom_display"`
	IsArchived       bool      `gorm:"default:false" json:"is_archived"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Schema) TableName() string { return "schemas" }

type SchemaQuestionGroup struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	SchemaID        uint           `gorm:"uniqueIndex:idx_schema_group;not null" json:"schema_id"`
	Schema          *Schema        `gorm:"foreignKey:SchemaID" json:"-"`
	QuestionGroupID uint           `gorm:"uniqueIndex:idx_schema_group;not null;index" json:"question_group_id"`
	QuestionGroup   *QuestionGroup `gorm:"foreignKey:QuestionGroupID" json:"question_group,omitempty"`
	DisplayOrder    int            `gorm:"not null;default:0" json:"display_order"`
}

func (SchemaQuestionGroup) TableName() string { return "schema_question_groups" }
