package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/labelpizza/backend/internal/models"
	"gorm.io/gorm"
)

func findProject(ctx context.Context, db *gorm.DB, id uint) (*models.Project, error) {
	var project models.Project
	if err := db.WithContext(ctx).First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("project", id)
		}
		return nil, err
	}
	return &project, nil
}

func findUser(ctx context.Context, db *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user", id)
		}
		return nil, err
	}
	return &user, nil
}

func findVideo(ctx context.Context, db *gorm.DB, id uint) (*models.Video, error) {
	var video models.Video
	if err := db.WithContext(ctx).First(&video, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("video", id)
		}
		return nil, err
	}
	return &video, nil
}

// activeProject loads a project that may still receive writes.
func activeProject(ctx context.Context, db *gorm.DB, id uint) (*models.Project, error) {
	project, err := findProject(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if project.IsArchived {
		return nil, &StateError{Entity: "project", Key: project.Name, Reason: "archived"}
	}
	return project, nil
}

func activeUser(ctx context.Context, db *gorm.DB, id uint) (*models.User, error) {
	user, err := findUser(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if user.IsArchived {
		return nil, &StateError{Entity: "user", Key: user.DisplayName(), Reason: "archived"}
	}
	return user, nil
}

// projectRoles returns the set of roles user holds on project.
func projectRoles(ctx context.Context, db *gorm.DB, projectID, userID uint) (map[string]bool, error) {
	var roles []string
	if err := db.WithContext(ctx).Model(&models.ProjectUserRole{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Pluck("role", &roles).Error; err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return set, nil
}

// requireRole fails unless user holds at least one of roles on project.
func requireRole(ctx context.Context, db *gorm.DB, projectID, userID uint, roles ...string) (map[string]bool, error) {
	held, err := projectRoles(ctx, db, projectID, userID)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if held[r] {
			return held, nil
		}
	}
	return nil, &PermissionError{UserID: userID, ProjectID: projectID, Required: roles}
}

func videoInProject(ctx context.Context, db *gorm.DB, projectID, videoID uint) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.ProjectVideo{}).
		Where("project_id = ? AND video_id = ?", projectID, videoID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return &NotFoundError{Entity: "video in project", Key: formatPair(videoID, projectID)}
	}
	return nil
}

func groupInSchema(ctx context.Context, db *gorm.DB, schemaID, groupID uint) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.SchemaQuestionGroup{}).
		Where("schema_id = ? AND question_group_id = ?", schemaID, groupID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return &NotFoundError{Entity: "question group in schema", Key: formatPair(groupID, schemaID)}
	}
	return nil
}

func formatPair(a, b uint) string { return fmt.Sprintf("%d/%d", a, b) }

// projectVideoIDs is a subquery selecting the videos of a project.
func projectVideoIDs(db *gorm.DB, projectID uint) *gorm.DB {
	return db.Model(&models.ProjectVideo{}).Select("video_id").Where("project_id = ?", projectID)
}

// schemaQuestionIDs is a subquery selecting every question of a schema.
func schemaQuestionIDs(db *gorm.DB, schemaID uint) *gorm.DB {
	return db.Model(&models.QuestionGroupQuestion{}).
		Select("DISTINCT question_group_questions.question_id").
		Joins("JOIN schema_question_groups ON schema_question_groups.question_group_id = question_group_questions.question_group_id").
		Where("schema_question_groups.schema_id = ?", schemaID)
}

// submission is a validated answer set ready to be written.
type submission struct {
	project *models.Project
	user    *models.User
	roles   map[string]bool
	videoID uint
	group   *GroupDefinition
	answers map[string]string
	scores  map[string]float64
	notes   map[string]string
}

// SubmissionInput is the common payload of answer and ground truth writes.
type SubmissionInput struct {
	VideoID          uint               `json:"video_id" binding:"required"`
	ProjectID        uint               `json:"project_id" binding:"required"`
	QuestionGroupID  uint               `json:"question_group_id" binding:"required"`
	Answers          map[string]string  `json:"answers" binding:"required"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	Notes            map[string]string  `json:"notes"`
}

// prepareSubmission runs every precondition and validation step for a write
// by userID holding one of roles. Nothing is written.
func prepareSubmission(ctx context.Context, db *gorm.DB, in *SubmissionInput, userID uint, roles ...string) (*submission, error) {
	project, err := activeProject(ctx, db, in.ProjectID)
	if err != nil {
		return nil, err
	}
	user, err := activeUser(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	held, err := requireRole(ctx, db, project.ID, user.ID, roles...)
	if err != nil {
		return nil, err
	}
	if err := videoInProject(ctx, db, project.ID, in.VideoID); err != nil {
		return nil, err
	}
	if err := groupInSchema(ctx, db, project.SchemaID, in.QuestionGroupID); err != nil {
		return nil, err
	}
	group, err := LoadGroup(ctx, db, in.QuestionGroupID)
	if err != nil {
		return nil, err
	}
	if err := Validate(group, in.Answers); err != nil {
		return nil, err
	}
	for text := range in.ConfidenceScores {
		if _, ok := group.QuestionByText(text); !ok {
			return nil, invalid("confidence score given for unknown question %q", text)
		}
	}
	for text := range in.Notes {
		if _, ok := group.QuestionByText(text); !ok {
			return nil, invalid("note given for unknown question %q", text)
		}
	}

	return &submission{
		project: project,
		user:    user,
		roles:   held,
		videoID: in.VideoID,
		group:   group,
		answers: in.Answers,
		scores:  in.ConfidenceScores,
		notes:   in.Notes,
	}, nil
}

// answered yields the group's questions that carry an answer, in group order.
func (s *submission) answered() []models.Question {
	out := make([]models.Question, 0, len(s.answers))
	for _, q := range s.group.Questions {
		if _, ok := s.answers[q.Question.Text]; ok {
			out = append(out, q.Question)
		}
	}
	return out
}

func (s *submission) score(text string) *float64 {
	if v, ok := s.scores[text]; ok {
		return &v
	}
	return nil
}

func (s *submission) note(text string) *string {
	if v, ok := s.notes[text]; ok {
		return &v
	}
	return nil
}
