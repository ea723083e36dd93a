package models

import "time"

// QuestionGroup is a named, ordered collection of questions. Reusable groups
// may appear in many schemas and must yield consistent GT across projects.
type QuestionGroup struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	Title                string    `gorm:"uniqueIndex;size:255;not null" json:"title"`
	DisplayTitle         string    `gorm:"size:255" json:"display_title"`
	Description          string    `gorm:"type:text" json:"description"`
	IsReusable           bool      `gorm:"default:false" json:"is_reusable"`
	IsAutoSubmit         bool      `gorm:"default:false" json:"is_auto_submit"`
	VerificationFunction string    `gorm:"size:100" json:"verification_function"`
	IsArchived           bool      `gorm:"default:false" json:"is_archived"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (QuestionGroup) TableName() string { return "question_groups" }

// QuestionGroupQuestion places a question inside a group.
type QuestionGroupQuestion struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	QuestionGroupID uint           `gorm:"uniqueIndex:idx_group_question;not null" json:"question_group_id"`
	QuestionGroup   *QuestionGroup `gorm:"foreignKey:QuestionGroupID" json:"-"`
	QuestionID      uint           `gorm:"uniqueIndex:idx_group_question;not null;index" json:"question_id"`
	Question        *Question      `gorm:"foreignKey:QuestionID" json:"question,omitempty"`
	DisplayOrder    int            `gorm:"not null;default:0" json:"display_order"`
	Required        bool           `gorm:"not null" json:"required"`
}

func (QuestionGroupQuestion) TableName() string { return "question_group_questions" }
