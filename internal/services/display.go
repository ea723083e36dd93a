package services

import (
	"context"
	"errors"
	"time"

	"github.com/labelpizza/backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DisplayService manages per-video display overrides of questions.
type DisplayService struct {
	db *gorm.DB
}

func NewDisplayService(db *gorm.DB) *DisplayService {
	return &DisplayService{db: db}
}

type SetCustomDisplayRequest struct {
	ProjectID        uint              `json:"project_id" binding:"required"`
	VideoID          uint              `json:"video_id" binding:"required"`
	QuestionID       uint              `json:"question_id" binding:"required"`
	DisplayText      *string           `json:"display_text"`
	OptionDisplayMap map[string]string `json:"option_display_map"`
}

// SetCustomDisplay stores an override for one (project, video, question). The
// project's schema must allow custom display, the question must belong to a
// non-reusable group of that schema and every mapped option must exist.
func (s *DisplayService) SetCustomDisplay(ctx context.Context, req *SetCustomDisplayRequest) (*models.ProjectVideoQuestionDisplay, error) {
	project, err := activeProject(ctx, s.db, req.ProjectID)
	if err != nil {
		return nil, err
	}
	var schema models.Schema
	if err := s.db.WithContext(ctx).First(&schema, project.SchemaID).Error; err != nil {
		return nil, err
	}
	if !schema.HasCustomDisplay {
		return nil, &StateError{Entity: "schema", Key: schema.Name, Reason: "custom display is disabled"}
	}
	if err := videoInProject(ctx, s.db, project.ID, req.VideoID); err != nil {
		return nil, err
	}

	var question models.Question
	if err := s.db.WithContext(ctx).First(&question, req.QuestionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("question", req.QuestionID)
		}
		return nil, err
	}

	var groups []models.QuestionGroup
	if err := s.db.WithContext(ctx).
		Joins("JOIN question_group_questions ON question_group_questions.question_group_id = question_groups.id").
		Joins("JOIN schema_question_groups ON schema_question_groups.question_group_id = question_groups.id").
		Where("schema_question_groups.schema_id = ? AND question_group_questions.question_id = ?", schema.ID, question.ID).
		Find(&groups).Error; err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, &NotFoundError{Entity: "question in schema", Key: question.Text}
	}
	for _, g := range groups {
		if g.IsReusable {
			return nil, invalid("question %q belongs to reusable group %q and cannot be customised", question.Text, g.Title)
		}
	}

	optionMap := datatypes.JSONMap{}
	for value, label := range req.OptionDisplayMap {
		if !question.HasOption(value) {
			return nil, &IllegalValueError{Question: question.Text, Value: value, Options: question.Options}
		}
		optionMap[value] = label
	}

	row := &models.ProjectVideoQuestionDisplay{
		ProjectID:              project.ID,
		VideoID:                req.VideoID,
		QuestionID:             question.ID,
		CustomDisplayText:      req.DisplayText,
		CustomOptionDisplayMap: optionMap,
		UpdatedAt:              time.Now(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "video_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"custom_display_text", "custom_option_display_map", "updated_at"}),
	}).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// RemoveCustomDisplay drops an override.
func (s *DisplayService) RemoveCustomDisplay(ctx context.Context, projectID, videoID, questionID uint) error {
	res := s.db.WithContext(ctx).
		Where("project_id = ? AND video_id = ? AND question_id = ?", projectID, videoID, questionID).
		Delete(&models.ProjectVideoQuestionDisplay{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Entity: "custom display", Key: formatPair(videoID, questionID)}
	}
	return nil
}

type DisplayOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// DisplayQuestion is a question as it should be rendered for a video.
type DisplayQuestion struct {
	Text          string          `json:"text"`
	DisplayText   string          `json:"display_text"`
	Type          string          `json:"type"`
	Required      bool            `json:"required"`
	Options       []DisplayOption `json:"options,omitempty"`
	DefaultOption *string         `json:"default_option,omitempty"`
	Customized    bool            `json:"customized"`
}

// EffectiveDisplay resolves how every question of a group is shown on a video.
func (s *DisplayService) EffectiveDisplay(ctx context.Context, projectID, videoID, groupID uint) ([]DisplayQuestion, error) {
	group, err := LoadGroup(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}

	overrides := map[uint]models.ProjectVideoQuestionDisplay{}
	if !group.Group.IsReusable {
		var rows []models.ProjectVideoQuestionDisplay
		if err := s.db.WithContext(ctx).
			Where("project_id = ? AND video_id = ? AND question_id IN ?", projectID, videoID, group.QuestionIDs()).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, r := range rows {
			overrides[r.QuestionID] = r
		}
	}

	out := make([]DisplayQuestion, 0, len(group.Questions))
	for _, gq := range group.Questions {
		q := gq.Question
		dq := DisplayQuestion{
			Text:          q.Text,
			DisplayText:   q.DisplayText,
			Type:          q.Type,
			Required:      gq.Required,
			DefaultOption: q.DefaultOption,
		}
		override, customized := overrides[q.ID]
		if customized {
			dq.Customized = true
			if override.CustomDisplayText != nil && *override.CustomDisplayText != "" {
				dq.DisplayText = *override.CustomDisplayText
			}
		}
		for _, opt := range q.Options {
			label := q.DisplayFor(opt)
			if customized {
				if custom, ok := override.OptionLabel(opt); ok {
					label = custom
				}
			}
			dq.Options = append(dq.Options, DisplayOption{Value: opt, Label: label})
		}
		out = append(out, dq)
	}
	return out, nil
}
