package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Question types
const (
	QuestionTypeSingle      = "single"
	QuestionTypeDescription = "description"
)

// Question is keyed by its immutable Text. Single-choice questions carry an
// ordered option list with parallel display labels and optional weights.
type Question struct {
	ID            uint                         `gorm:"primaryKey" json:"id"`
	Text          string                       `gorm:"uniqueIndex;size:1000;not null" json:"text"`
	DisplayText   string                       `gorm:"size:1000" json:"display_text"`
	Type          string                       `gorm:"size:20;not null" json:"type"`
	Options       datatypes.JSONSlice[string]  `json:"options"`
	DisplayValues datatypes.JSONSlice[string]  `json:"display_values"`
	OptionWeights datatypes.JSONSlice[float64] `json:"option_weights"`
	DefaultOption *string                      `gorm:"size:500" json:"default_option"`
	IsArchived    bool                         `gorm:"default:false" json:"is_archived"`
	CreatedAt     time.Time                    `json:"created_at"`
	UpdatedAt     time.Time                    `json:"updated_at"`
}

func (Question) TableName() string { return "questions" }

func (q *Question) IsSingleChoice() bool { return q.Type == QuestionTypeSingle }

// HasOption reports whether value is one of the current options.
func (q *Question) HasOption(value string) bool {
	for _, opt := range q.Options {
		if opt == value {
			return true
		}
	}
	return false
}

// DisplayFor returns the display label of an option value.
func (q *Question) DisplayFor(value string) string {
	for i, opt := range q.Options {
		if opt == value && i < len(q.DisplayValues) {
			return q.DisplayValues[i]
		}
	}
	return value
}

// CheckOptions validates the option payload of a question definition.
func CheckOptions(questionType string, options, displayValues []string, weights []float64, defaultOption *string) error {
	switch questionType {
	case QuestionTypeDescription:
		if len(options) > 0 {
			return fmt.Errorf("description questions cannot have options")
		}
		if defaultOption != nil && *defaultOption != "" {
			return fmt.Errorf("description questions cannot have a default option")
		}
		return nil
	case QuestionTypeSingle:
	default:
		return fmt.Errorf("unknown question type %q", questionType)
	}

	if len(options) == 0 {
		return fmt.Errorf("single-choice questions need at least one option")
	}
	seen := make(map[string]bool, len(options))
	for _, opt := range options {
		if opt == "" {
			return fmt.Errorf("option values cannot be empty")
		}
		if seen[opt] {
			return fmt.Errorf("duplicate option %q", opt)
		}
		seen[opt] = true
	}
	if len(displayValues) > 0 && len(displayValues) != len(options) {
		return fmt.Errorf("display values (%d) must match options (%d)", len(displayValues), len(options))
	}
	if len(weights) > 0 && len(weights) != len(options) {
		return fmt.Errorf("option weights (%d) must match options (%d)", len(weights), len(options))
	}
	if defaultOption != nil && *defaultOption != "" && !seen[*defaultOption] {
		return fmt.Errorf("default option %q is not one of the options", *defaultOption)
	}
	return nil
}

// CheckOptionExtension enforces that edits only append options: every
// existing value must stay at its position so historical answers remain legal.
func CheckOptionExtension(current, next []string) error {
	if len(next) < len(current) {
		return fmt.Errorf("options can only be extended: %d existing, %d given", len(current), len(next))
	}
	for i, opt := range current {
		if next[i] != opt {
			return fmt.Errorf("option %q cannot be removed or reordered", opt)
		}
	}
	return nil
}
