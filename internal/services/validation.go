package services

import (
	"context"
	"errors"
	"sort"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/verification"
	"gorm.io/gorm"
)

// GroupQuestion is a question as placed in a group.
type GroupQuestion struct {
	Question     models.Question `json:"question"`
	Required     bool            `json:"required"`
	DisplayOrder int             `json:"display_order"`
}

// GroupDefinition is a question group with its ordered questions.
type GroupDefinition struct {
	Group     models.QuestionGroup `json:"group"`
	Questions []GroupQuestion      `json:"questions"`
}

// LoadGroup reads a group and its questions in display order.
func LoadGroup(ctx context.Context, db *gorm.DB, groupID uint) (*GroupDefinition, error) {
	var group models.QuestionGroup
	if err := db.WithContext(ctx).First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("question group", groupID)
		}
		return nil, err
	}

	var links []models.QuestionGroupQuestion
	if err := db.WithContext(ctx).
		Preload("Question").
		Where("question_group_id = ?", groupID).
		Order("display_order ASC, id ASC").
		Find(&links).Error; err != nil {
		return nil, err
	}

	def := &GroupDefinition{Group: group, Questions: make([]GroupQuestion, 0, len(links))}
	for _, link := range links {
		if link.Question == nil {
			continue
		}
		def.Questions = append(def.Questions, GroupQuestion{
			Question:     *link.Question,
			Required:     link.Required,
			DisplayOrder: link.DisplayOrder,
		})
	}
	return def, nil
}

// QuestionByText finds a question of the group by its text.
func (g *GroupDefinition) QuestionByText(text string) (*models.Question, bool) {
	for i := range g.Questions {
		if g.Questions[i].Question.Text == text {
			return &g.Questions[i].Question, true
		}
	}
	return nil, false
}

// QuestionIDs returns the ids of the group's questions in order.
func (g *GroupDefinition) QuestionIDs() []uint {
	ids := make([]uint, len(g.Questions))
	for i, q := range g.Questions {
		ids[i] = q.Question.ID
	}
	return ids
}

// DefaultAnswers returns the default option of every question and whether
// every question has one, which is what auto-submit requires.
func (g *GroupDefinition) DefaultAnswers() (map[string]string, bool) {
	answers := make(map[string]string, len(g.Questions))
	complete := len(g.Questions) > 0
	for _, q := range g.Questions {
		if q.Question.DefaultOption != nil && *q.Question.DefaultOption != "" {
			answers[q.Question.Text] = *q.Question.DefaultOption
		} else {
			complete = false
		}
	}
	return answers, complete
}

// Validate checks an answer map against a group definition. It never writes.
// Shape errors are reported first, then option legality, then the group's
// verification function.
func Validate(def *GroupDefinition, answers map[string]string) error {
	known := make(map[string]bool, len(def.Questions))
	var missing []string
	for _, q := range def.Questions {
		known[q.Question.Text] = true
		if _, ok := answers[q.Question.Text]; !ok && q.Required {
			missing = append(missing, q.Question.Text)
		}
	}
	var extra []string
	for text := range answers {
		if !known[text] {
			extra = append(extra, text)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return &AnswerShapeError{Missing: missing, Extra: extra}
	}

	for _, q := range def.Questions {
		value, ok := answers[q.Question.Text]
		if !ok || !q.Question.IsSingleChoice() {
			continue
		}
		if !q.Question.HasOption(value) {
			return &IllegalValueError{
				Question: q.Question.Text,
				Value:    value,
				Options:  append([]string(nil), q.Question.Options...),
			}
		}
	}

	if fn := def.Group.VerificationFunction; fn != "" {
		if err := verification.Run(fn, answers); err != nil {
			return &VerificationError{Function: fn, Reason: err.Error()}
		}
	}
	return nil
}
