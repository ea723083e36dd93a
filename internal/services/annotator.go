package services

import (
	"context"
	"time"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AnnotatorService struct {
	db    *gorm.DB
	cache *ProgressCache
}

func NewAnnotatorService(db *gorm.DB, cache *ProgressCache) *AnnotatorService {
	return &AnnotatorService{db: db, cache: cache}
}

type SubmitAnswersRequest struct {
	SubmissionInput
	UserID uint `json:"-"`
}

// SubmitAnswers validates and stores an annotator's answers for one question
// group on one video. All rows are written in one transaction or none are.
func (s *AnnotatorService) SubmitAnswers(ctx context.Context, req *SubmitAnswersRequest) error {
	sub, err := prepareSubmission(ctx, s.db, &req.SubmissionInput, req.UserID, models.RoleAnnotator, models.RoleModel)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertAnswers(tx, sub, time.Now())
	}); err != nil {
		return err
	}

	s.cache.Invalidate(sub.project.ID)
	logger.Debug().
		Uint("project_id", sub.project.ID).
		Uint("video_id", sub.videoID).
		Uint("user_id", sub.user.ID).
		Str("group", sub.group.Group.Title).
		Msg("[Annotator] Answers submitted")
	return nil
}

// upsertAnswers writes every answered question of sub. Omitted confidence
// scores and notes are stored as NULL, clearing earlier values.
func upsertAnswers(tx *gorm.DB, sub *submission, now time.Time) error {
	questions := sub.answered()
	if len(questions) == 0 {
		return nil
	}

	rows := make([]models.AnnotatorAnswer, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, models.AnnotatorAnswer{
			VideoID:         sub.videoID,
			ProjectID:       sub.project.ID,
			UserID:          sub.user.ID,
			QuestionID:      q.ID,
			AnswerValue:     sub.answers[q.Text],
			ConfidenceScore: sub.score(q.Text),
			Notes:           sub.note(q.Text),
			CreatedAt:       now,
			ModifiedAt:      now,
		})
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "video_id"}, {Name: "project_id"}, {Name: "user_id"}, {Name: "question_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"answer_value", "confidence_score", "notes", "modified_at"}),
	}).Create(&rows).Error
}

// AnswerView is a stored answer keyed by question text.
type AnswerView struct {
	Question        string    `json:"question"`
	AnswerValue     string    `json:"answer_value"`
	ConfidenceScore *float64  `json:"confidence_score"`
	Notes           *string   `json:"notes"`
	ModifiedAt      time.Time `json:"modified_at"`
}

// GetAnswers returns a user's stored answers for a group on a video.
func (s *AnnotatorService) GetAnswers(ctx context.Context, projectID, videoID, userID, groupID uint) ([]AnswerView, error) {
	group, err := LoadGroup(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}

	var rows []models.AnnotatorAnswer
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND video_id = ? AND user_id = ? AND question_id IN ?",
			projectID, videoID, userID, group.QuestionIDs()).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	byQuestion := make(map[uint]models.AnnotatorAnswer, len(rows))
	for _, r := range rows {
		byQuestion[r.QuestionID] = r
	}

	views := make([]AnswerView, 0, len(rows))
	for _, q := range group.Questions {
		r, ok := byQuestion[q.Question.ID]
		if !ok {
			continue
		}
		views = append(views, AnswerView{
			Question:        q.Question.Text,
			AnswerValue:     r.AnswerValue,
			ConfidenceScore: r.ConfidenceScore,
			Notes:           r.Notes,
			ModifiedAt:      r.ModifiedAt,
		})
	}
	return views, nil
}
