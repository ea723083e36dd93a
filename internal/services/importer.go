package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/gorm"
)

// AnnotationRow is one entry of an annotations import file.
type AnnotationRow struct {
	QuestionGroupTitle string             `json:"question_group_title"`
	ProjectName        string             `json:"project_name"`
	UserEmail          string             `json:"user_email"`
	VideoUID           string             `json:"video_uid"`
	Answers            map[string]string  `json:"answers"`
	ConfidenceScores   map[string]float64 `json:"confidence_scores,omitempty"`
	Notes              map[string]string  `json:"notes,omitempty"`
}

// ReviewRow is one entry of a ground truth import file.
type ReviewRow struct {
	QuestionGroupTitle string             `json:"question_group_title"`
	ProjectName        string             `json:"project_name"`
	ReviewerEmail      string             `json:"reviewer_email"`
	VideoUID           string             `json:"video_uid"`
	Answers            map[string]string  `json:"answers"`
	ConfidenceScores   map[string]float64 `json:"confidence_scores,omitempty"`
	Notes              map[string]string  `json:"notes,omitempty"`
}

// ImportResult summarises a successful import.
type ImportResult struct {
	Rows    int `json:"rows"`
	Answers int `json:"answers"`
}

// ImportService loads bulk answers in two phases: every row is resolved and
// validated first, and only if all rows pass are they written, in a single
// transaction.
type ImportService struct {
	db    *gorm.DB
	cache *ProgressCache
}

func NewImportService(db *gorm.DB, cache *ProgressCache) *ImportService {
	return &ImportService{db: db, cache: cache}
}

type importKeys struct {
	group   string
	project string
	email   string
	video   string
}

// resolve turns the name-based keys of a row into a SubmissionInput and user id.
func (s *ImportService) resolve(ctx context.Context, k importKeys) (*SubmissionInput, uint, error) {
	db := s.db.WithContext(ctx)

	var group models.QuestionGroup
	if err := db.Where("title = ?", k.group).First(&group).Error; err != nil {
		return nil, 0, lookupErr(err, "question group", k.group)
	}
	var project models.Project
	if err := db.Where("name = ?", k.project).First(&project).Error; err != nil {
		return nil, 0, lookupErr(err, "project", k.project)
	}
	// Model accounts have no email and are matched by username.
	var user models.User
	err := db.Where("email = ?", k.email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = db.Where("username = ? AND user_type = ?", k.email, models.UserTypeModel).First(&user).Error
	}
	if err != nil {
		return nil, 0, lookupErr(err, "user", k.email)
	}
	var video models.Video
	if err := db.Where("video_uid = ?", k.video).First(&video).Error; err != nil {
		return nil, 0, lookupErr(err, "video", k.video)
	}

	return &SubmissionInput{
		VideoID:         video.ID,
		ProjectID:       project.ID,
		QuestionGroupID: group.ID,
	}, user.ID, nil
}

func lookupErr(err error, entity, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(entity, key)
	}
	return err
}

// ImportAnnotations verifies and writes annotator answers.
func (s *ImportService) ImportAnnotations(ctx context.Context, rows []AnnotationRow) (*ImportResult, error) {
	subs := make([]*submission, 0, len(rows))
	var failed []RowError

	for i, row := range rows {
		in, userID, err := s.resolve(ctx, importKeys{row.QuestionGroupTitle, row.ProjectName, row.UserEmail, row.VideoUID})
		var sub *submission
		if err == nil {
			in.Answers = row.Answers
			in.ConfidenceScores = row.ConfidenceScores
			in.Notes = row.Notes
			sub, err = prepareSubmission(ctx, s.db, in, userID, models.RoleAnnotator, models.RoleModel)
		}
		if err != nil {
			failed = append(failed, RowError{Index: i, Error: err.Error()})
			continue
		}
		subs = append(subs, sub)
	}
	if len(failed) > 0 {
		return nil, &ImportError{Rows: failed}
	}

	now := time.Now()
	answers := 0
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sub := range subs {
			if err := upsertAnswers(tx, sub, now); err != nil {
				return fmt.Errorf("write answers for video %d: %w", sub.videoID, err)
			}
			answers += len(sub.answered())
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.invalidate(subs)
	logger.Info().Int("rows", len(rows)).Int("answers", answers).Msg("[Import] Annotations imported")
	return &ImportResult{Rows: len(rows), Answers: answers}, nil
}

// ImportReviews verifies and writes ground truth. Admin locks are checked in
// the verification phase so a locked cell fails the whole import up front.
func (s *ImportService) ImportReviews(ctx context.Context, rows []ReviewRow) (*ImportResult, error) {
	subs := make([]*submission, 0, len(rows))
	var failed []RowError

	for i, row := range rows {
		in, userID, err := s.resolve(ctx, importKeys{row.QuestionGroupTitle, row.ProjectName, row.ReviewerEmail, row.VideoUID})
		var sub *submission
		if err == nil {
			in.Answers = row.Answers
			in.ConfidenceScores = row.ConfidenceScores
			in.Notes = row.Notes
			sub, err = prepareSubmission(ctx, s.db, in, userID, models.RoleReviewer, models.RoleAdmin)
		}
		if err == nil {
			var existing map[uint]models.ReviewerGroundTruth
			existing, err = existingGroundTruth(s.db.WithContext(ctx), sub, false)
			if err == nil {
				err = checkAdminLock(s.db.WithContext(ctx), sub, existing)
			}
		}
		if err != nil {
			failed = append(failed, RowError{Index: i, Error: err.Error()})
			continue
		}
		subs = append(subs, sub)
	}
	if len(failed) > 0 {
		return nil, &ImportError{Rows: failed}
	}

	now := time.Now()
	answers := 0
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, sub := range subs {
			if err := writeGroundTruth(tx, sub, now); err != nil {
				return fmt.Errorf("write ground truth for video %d: %w", sub.videoID, err)
			}
			answers += len(sub.answered())
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.invalidate(subs)
	logger.Info().Int("rows", len(rows)).Int("answers", answers).Msg("[Import] Reviews imported")
	return &ImportResult{Rows: len(rows), Answers: answers}, nil
}

func (s *ImportService) invalidate(subs []*submission) {
	for _, sub := range subs {
		s.cache.Invalidate(sub.project.ID)
	}
}
