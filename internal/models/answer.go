package models

import "time"

// Review statuses
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
	ReviewRejected = "rejected"
)

func ValidReviewStatus(status string) bool {
	return status == ReviewPending || status == ReviewApproved || status == ReviewRejected
}

// AnnotatorAnswer holds one annotator's answer to one question on one video.
type AnnotatorAnswer struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	VideoID         uint      `gorm:"uniqueIndex:idx_answer_cell;not null" json:"video_id"`
	Video           *Video    `gorm:"foreignKey:VideoID" json:"-"`
	ProjectID       uint      `gorm:"uniqueIndex:idx_answer_cell;not null;index" json:"project_id"`
	Project         *Project  `gorm:"foreignKey:ProjectID" json:"-"`
	UserID          uint      `gorm:"uniqueIndex:idx_answer_cell;not null;index" json:"user_id"`
	User            *User     `gorm:"foreignKey:UserID" json:"-"`
	QuestionID      uint      `gorm:"uniqueIndex:idx_answer_cell;not null" json:"question_id"`
	Question        *Question `gorm:"foreignKey:QuestionID" json:"-"`
	AnswerValue     string    `gorm:"type:text;not null" json:"answer_value"`
	ConfidenceScore *float64  `json:"confidence_score"`
	Notes           *string   `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
	ModifiedAt      time.Time `json:"modified_at"`
}

func (AnnotatorAnswer) TableName() string { return "annotator_answers" }

// AnswerReview is a reviewer's verdict on an annotator answer.
type AnswerReview struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	AnswerID   uint             `gorm:"uniqueIndex;not null" json:"answer_id"`
	Answer     *AnnotatorAnswer `gorm:"foreignKey:AnswerID" json:"-"`
	ReviewerID uint             `gorm:"not null;index" json:"reviewer_id"`
	Reviewer   *User            `gorm:"foreignKey:ReviewerID" json:"-"`
	Status     string           `gorm:"size:20;not null;default:pending" json:"status"`
	Comment    string           `gorm:"type:text" json:"comment"`
	ReviewedAt time.Time        `json:"reviewed_at"`
}

func (AnswerReview) TableName() string { return "answer_reviews" }
