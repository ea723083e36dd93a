package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/labelpizza/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReviewService covers reviewer verdicts on annotator answers and the
// reconciliation helpers built on them.
type ReviewService struct {
	db       *gorm.DB
	progress *ProgressService
}

func NewReviewService(db *gorm.DB, progress *ProgressService) *ReviewService {
	return &ReviewService{db: db, progress: progress}
}

type SubmitAnswerReviewRequest struct {
	AnswerID   uint   `json:"answer_id" binding:"required"`
	Status     string `json:"status" binding:"required,oneof=pending approved rejected"`
	Comment    string `json:"comment"`
	ReviewerID uint   `json:"-"`
}

// SubmitAnswerReview records or replaces the verdict on an annotator answer.
func (s *ReviewService) SubmitAnswerReview(ctx context.Context, req *SubmitAnswerReviewRequest) (*models.AnswerReview, error) {
	if !models.ValidReviewStatus(req.Status) {
		return nil, invalid("invalid review status %q", req.Status)
	}

	var answer models.AnnotatorAnswer
	if err := s.db.WithContext(ctx).First(&answer, req.AnswerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("answer", req.AnswerID)
		}
		return nil, err
	}
	if _, err := activeProject(ctx, s.db, answer.ProjectID); err != nil {
		return nil, err
	}
	if _, err := activeUser(ctx, s.db, req.ReviewerID); err != nil {
		return nil, err
	}
	if _, err := requireRole(ctx, s.db, answer.ProjectID, req.ReviewerID, models.RoleReviewer, models.RoleAdmin); err != nil {
		return nil, err
	}

	review := models.AnswerReview{
		AnswerID:   answer.ID,
		ReviewerID: req.ReviewerID,
		Status:     req.Status,
		Comment:    req.Comment,
		ReviewedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "answer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"reviewer_id", "status", "comment", "reviewed_at"}),
	}).Create(&review).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

// Suggestion is the weighted vote outcome for one question.
type Suggestion struct {
	Question  string             `json:"question"`
	Suggested string             `json:"suggested,omitempty"`
	Totals    map[string]float64 `json:"totals"`
	Votes     int                `json:"votes"`
}

// SuggestGroundTruth tallies annotator answers for the single-choice questions
// of a group. Each answer counts with its annotator's project weight, approved
// answers count double and rejected answers are ignored. Ties go to the option
// listed first.
func (s *ReviewService) SuggestGroundTruth(ctx context.Context, projectID, videoID, groupID uint) ([]Suggestion, error) {
	if _, err := findProject(ctx, s.db, projectID); err != nil {
		return nil, err
	}
	group, err := LoadGroup(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}

	var answers []models.AnnotatorAnswer
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND video_id = ? AND question_id IN ?", projectID, videoID, group.QuestionIDs()).
		Find(&answers).Error; err != nil {
		return nil, err
	}

	var roles []models.ProjectUserRole
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND role IN ?", projectID, []string{models.RoleAnnotator, models.RoleModel}).
		Find(&roles).Error; err != nil {
		return nil, err
	}
	weights := make(map[uint]float64, len(roles))
	for _, r := range roles {
		if w, ok := weights[r.UserID]; !ok || r.UserWeight > w {
			weights[r.UserID] = r.UserWeight
		}
	}

	answerIDs := make([]uint, len(answers))
	for i, a := range answers {
		answerIDs[i] = a.ID
	}
	var reviews []models.AnswerReview
	if len(answerIDs) > 0 {
		if err := s.db.WithContext(ctx).Where("answer_id IN ?", answerIDs).Find(&reviews).Error; err != nil {
			return nil, err
		}
	}
	status := make(map[uint]string, len(reviews))
	for _, r := range reviews {
		status[r.AnswerID] = r.Status
	}

	byQuestion := make(map[uint][]models.AnnotatorAnswer)
	for _, a := range answers {
		byQuestion[a.QuestionID] = append(byQuestion[a.QuestionID], a)
	}

	var out []Suggestion
	for _, gq := range group.Questions {
		q := gq.Question
		if !q.IsSingleChoice() {
			continue
		}
		sug := Suggestion{Question: q.Text, Totals: make(map[string]float64, len(q.Options))}
		for _, a := range byQuestion[q.ID] {
			if status[a.ID] == models.ReviewRejected || !q.HasOption(a.AnswerValue) {
				continue
			}
			w, ok := weights[a.UserID]
			if !ok {
				w = 1
			}
			if status[a.ID] == models.ReviewApproved {
				w *= 2
			}
			sug.Totals[a.AnswerValue] += w
			sug.Votes++
		}
		best := 0.0
		for _, opt := range q.Options {
			if total := sug.Totals[opt]; total > best {
				best = total
				sug.Suggested = opt
			}
		}
		out = append(out, sug)
	}
	return out, nil
}

// AnswerFeedback compares one annotator answer with ground truth.
type AnswerFeedback struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	GroundTruth string `json:"ground_truth"`
	Graded      bool   `json:"graded"`
	Correct     bool   `json:"correct"`
}

// CheckAnswers gives training feedback on a user's answers. It is available
// only once the project has complete ground truth.
func (s *ReviewService) CheckAnswers(ctx context.Context, projectID, videoID, userID, groupID uint) ([]AnswerFeedback, error) {
	if _, err := requireRole(ctx, s.db, projectID, userID, models.RoleAnnotator); err != nil {
		return nil, err
	}
	mode, err := s.progress.ProjectMode(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if mode != models.ModeTraining {
		return nil, &StateError{Entity: "project", Key: strconv.FormatUint(uint64(projectID), 10), Reason: "feedback is only available in Training mode"}
	}

	group, err := LoadGroup(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}
	ids := group.QuestionIDs()

	var answers []models.AnnotatorAnswer
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND video_id = ? AND user_id = ? AND question_id IN ?", projectID, videoID, userID, ids).
		Find(&answers).Error; err != nil {
		return nil, err
	}
	var truths []models.ReviewerGroundTruth
	if err := s.db.WithContext(ctx).
		Where("project_id = ? AND video_id = ? AND question_id IN ?", projectID, videoID, ids).
		Find(&truths).Error; err != nil {
		return nil, err
	}

	given := make(map[uint]string, len(answers))
	for _, a := range answers {
		given[a.QuestionID] = a.AnswerValue
	}
	truth := make(map[uint]string, len(truths))
	for _, t := range truths {
		truth[t.QuestionID] = t.AnswerValue
	}

	var out []AnswerFeedback
	for _, gq := range group.Questions {
		q := gq.Question
		answer, ok := given[q.ID]
		if !ok {
			continue
		}
		fb := AnswerFeedback{Question: q.Text, Answer: answer, GroundTruth: truth[q.ID]}
		if q.IsSingleChoice() {
			fb.Graded = true
			fb.Correct = answer == fb.GroundTruth
		}
		out = append(out, fb)
	}
	return out, nil
}
