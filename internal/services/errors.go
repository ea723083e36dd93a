package services

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// NotFoundError reports a missing entity looked up by key.
type NotFoundError struct {
	Entity string `json:"entity"`
	Key    string `json:"key"`
}

func (e *NotFoundError) Error() string   { return fmt.Sprintf("%s %s not found", e.Entity, e.Key) }
func (e *NotFoundError) StatusCode() int { return http.StatusNotFound }

func notFound(entity string, key interface{}) error {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(key)}
}

// PermissionError reports that a user lacks every role in Required.
type PermissionError struct {
	UserID    uint     `json:"user_id"`
	ProjectID uint     `json:"project_id"`
	Required  []string `json:"required"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %d needs role %s on project %d", e.UserID, strings.Join(e.Required, " or "), e.ProjectID)
}
func (e *PermissionError) StatusCode() int { return http.StatusForbidden }

// StateError reports an operation that the current state of an entity forbids,
// such as writing to an archived project.
type StateError struct {
	Entity string `json:"entity"`
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

func (e *StateError) Error() string   { return fmt.Sprintf("%s %s: %s", e.Entity, e.Key, e.Reason) }
func (e *StateError) StatusCode() int { return http.StatusConflict }

// AnswerShapeError lists missing required and unexpected question texts.
type AnswerShapeError struct {
	Missing []string `json:"missing,omitempty"`
	Extra   []string `json:"extra,omitempty"`
}

func (e *AnswerShapeError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required questions: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unknown questions: "+strings.Join(e.Extra, ", "))
	}
	return strings.Join(parts, "; ")
}
func (e *AnswerShapeError) StatusCode() int { return http.StatusUnprocessableEntity }

// IllegalValueError reports a single-choice answer outside the option set.
type IllegalValueError struct {
	Question string   `json:"question"`
	Value    string   `json:"value"`
	Options  []string `json:"options"`
}

func (e *IllegalValueError) Error() string {
	return fmt.Sprintf("answer %q is not a valid option for %q (options: %s)", e.Value, e.Question, strings.Join(e.Options, ", "))
}
func (e *IllegalValueError) StatusCode() int { return http.StatusUnprocessableEntity }

// VerificationError wraps the failure of a group's verification function.
type VerificationError struct {
	Function string `json:"function"`
	Reason   string `json:"reason"`
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification %s failed: %s", e.Function, e.Reason)
}
func (e *VerificationError) StatusCode() int { return http.StatusUnprocessableEntity }

// LockedCell is a ground truth cell overridden by an admin.
type LockedCell struct {
	Question   string     `json:"question"`
	AdminID    uint       `json:"admin_id"`
	Admin      string     `json:"admin"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}

// AdminLockError rejects a reviewer write over admin-modified cells.
type AdminLockError struct {
	Cells []LockedCell `json:"cells"`
}

func (e *AdminLockError) Error() string {
	parts := make([]string, len(e.Cells))
	for i, c := range e.Cells {
		parts[i] = fmt.Sprintf("%q (modified by admin %s)", c.Question, c.Admin)
	}
	return "ground truth locked by admin override: " + strings.Join(parts, ", ")
}
func (e *AdminLockError) StatusCode() int { return http.StatusConflict }

// Conflict is one disagreement between two projects on a reusable group cell.
type Conflict struct {
	VideoUID   string `json:"video_uid"`
	Question   string `json:"question"`
	GroupTitle string `json:"group_title"`
	ProjectA   string `json:"project_a"`
	ValueA     string `json:"value_a"`
	ProjectB   string `json:"project_b"`
	ValueB     string `json:"value_b"`
}

// InconsistencyError aborts an export whose reusable groups disagree across projects.
type InconsistencyError struct {
	Conflicts []Conflict `json:"conflicts"`
}

func (e *InconsistencyError) Error() string {
	lines := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		lines = append(lines, fmt.Sprintf("video %s, question %q (group %s): %s=%q vs %s=%q",
			c.VideoUID, c.Question, c.GroupTitle, c.ProjectA, c.ValueA, c.ProjectB, c.ValueB))
	}
	return fmt.Sprintf("%d cross-project inconsistencies: %s", len(e.Conflicts), strings.Join(lines, "; "))
}
func (e *InconsistencyError) StatusCode() int { return http.StatusConflict }

func sortConflicts(conflicts []Conflict) {
	sort.Slice(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
		if a.VideoUID != b.VideoUID {
			return a.VideoUID < b.VideoUID
		}
		if a.Question != b.Question {
			return a.Question < b.Question
		}
		if a.GroupTitle != b.GroupTitle {
			return a.GroupTitle < b.GroupTitle
		}
		return a.ProjectB < b.ProjectB
	})
}

// RowError is a failed row of a bulk import.
type RowError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// ImportError collects every row that failed verification.
type ImportError struct {
	Rows []RowError `json:"rows"`
}

func (e *ImportError) Error() string {
	parts := make([]string, len(e.Rows))
	for i, r := range e.Rows {
		parts[i] = fmt.Sprintf("row %d: %s", r.Index, r.Error)
	}
	return fmt.Sprintf("%d rows failed verification: %s", len(e.Rows), strings.Join(parts, "; "))
}
func (e *ImportError) StatusCode() int { return http.StatusUnprocessableEntity }

// InvalidError reports a malformed request.
type InvalidError struct {
	Reason string `json:"reason"`
}

func (e *InvalidError) Error() string   { return e.Reason }
func (e *InvalidError) StatusCode() int { return http.StatusBadRequest }

func invalid(format string, args ...interface{}) error {
	return &InvalidError{Reason: fmt.Sprintf(format, args...)}
}
