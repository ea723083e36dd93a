package models

import "time"

// ReviewerGroundTruth is the authoritative answer for a (video, project, question).
// Once ModifiedByAdminID is set, only project admins may change the row until the
// override is reverted, which restores OriginalAnswerValue.
type ReviewerGroundTruth struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	VideoID             uint       `gorm:"uniqueIndex:idx_gt_cell;not null" json:"video_id"`
	Video               *Video     `gorm:"foreignKey:VideoID" json:"-"`
	ProjectID           uint       `gorm:"uniqueIndex:idx_gt_cell;not null;index" json:"project_id"`
	Project             *Project   `gorm:"foreignKey:ProjectID" json:"-"`
	QuestionID          uint       `gorm:"uniqueIndex:idx_gt_cell;not null" json:"question_id"`
	Question            *Question  `gorm:"foreignKey:QuestionID" json:"-"`
	ReviewerID          uint       `gorm:"not null;index" json:"reviewer_id"`
	Reviewer            *User      `gorm:"foreignKey:ReviewerID" json:"-"`
	AnswerValue         string     `gorm:"type:text;not null" json:"answer_value"`
	OriginalAnswerValue *string    `gorm:"type:text" json:"original_answer_value"`
	ModifiedByAdminID   *uint      `gorm:"index" json:"modified_by_admin_id"`
	ModifiedByAdmin     *User      `gorm:"foreignKey:ModifiedByAdminID" json:"-"`
	ModifiedByAdminAt   *time.Time `json:"modified_by_admin_at"`
	ConfidenceScore     *float64   `json:"confidence_score"`
	Notes               *string    `gorm:"type:text" json:"notes"`
	CreatedAt           time.Time  `json:"created_at"`
	ModifiedAt          time.Time  `json:"modified_at"`
}

func (ReviewerGroundTruth) TableName() string { return "reviewer_ground_truths" }

func (gt *ReviewerGroundTruth) AdminLocked() bool { return gt.ModifiedByAdminID != nil }
