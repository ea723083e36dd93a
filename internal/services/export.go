package services

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/gorm"
)

type ExportService struct {
	db *gorm.DB
}

func NewExportService(db *gorm.DB) *ExportService {
	return &ExportService{db: db}
}

// ExportRow is the merged ground truth of one video.
type ExportRow struct {
	VideoUID string            `json:"video_uid"`
	Answers  map[string]string `json:"answers"`
}

// ResolveProjects maps project ids or names to ids, preserving order.
func (s *ExportService) ResolveProjects(ctx context.Context, refs []string) ([]uint, error) {
	ids := make([]uint, 0, len(refs))
	seen := make(map[uint]bool, len(refs))
	for _, ref := range refs {
		var project models.Project
		q := s.db.WithContext(ctx)
		if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
			q = q.Where("id = ? OR name = ?", id, ref)
		} else {
			q = q.Where("name = ?", ref)
		}
		if err := q.First(&project).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("project", ref)
			}
			return nil, err
		}
		if !seen[project.ID] {
			seen[project.ID] = true
			ids = append(ids, project.ID)
		}
	}
	return ids, nil
}

// gtCell is a ground truth row joined with the keys export needs.
type gtCell struct {
	VideoID     uint
	VideoUID    string
	QuestionID  uint
	Question    string
	AnswerValue string
}

type groupRef struct {
	id       uint
	title    string
	reusable bool
}

type firstSeen struct {
	project string
	value   string
}

// ExportGroundTruth merges the ground truth of the given projects per video.
// Every reusable group shared by several projects must agree on every cell
// present in more than one of them; otherwise the export fails with all
// conflicts listed. Rows are sorted by video uid.
func (s *ExportService) ExportGroundTruth(ctx context.Context, projectIDs []uint) ([]ExportRow, error) {
	if len(projectIDs) == 0 {
		return nil, invalid("at least one project is required")
	}

	db := s.db.WithContext(ctx)
	reusableSeen := make(map[[3]uint]firstSeen)
	merged := make(map[string]map[string]string)
	mergedFrom := make(map[string]map[string]string)
	var conflicts []Conflict

	for _, projectID := range projectIDs {
		project, err := findProject(ctx, s.db, projectID)
		if err != nil {
			return nil, err
		}

		groups, err := s.schemaGroups(ctx, project.SchemaID)
		if err != nil {
			return nil, err
		}

		var cells []gtCell
		if err := db.Table("reviewer_ground_truths").
			Select("reviewer_ground_truths.video_id, videos.video_uid, reviewer_ground_truths.question_id, questions.text AS question, reviewer_ground_truths.answer_value").
			Joins("JOIN videos ON videos.id = reviewer_ground_truths.video_id").
			Joins("JOIN questions ON questions.id = reviewer_ground_truths.question_id").
			Where("reviewer_ground_truths.project_id = ?", projectID).
			Where("reviewer_ground_truths.video_id IN (?)", projectVideoIDs(db, projectID)).
			Order("videos.video_uid, questions.text").
			Scan(&cells).Error; err != nil {
			return nil, err
		}

		for _, c := range cells {
			for _, g := range groups[c.QuestionID] {
				if !g.reusable {
					continue
				}
				key := [3]uint{g.id, c.VideoID, c.QuestionID}
				prev, ok := reusableSeen[key]
				if !ok {
					reusableSeen[key] = firstSeen{project: project.Name, value: c.AnswerValue}
					continue
				}
				if prev.value != c.AnswerValue {
					conflicts = append(conflicts, Conflict{
						VideoUID:   c.VideoUID,
						Question:   c.Question,
						GroupTitle: g.title,
						ProjectA:   prev.project,
						ValueA:     prev.value,
						ProjectB:   project.Name,
						ValueB:     c.AnswerValue,
					})
				}
			}

			answers, ok := merged[c.VideoUID]
			if !ok {
				answers = make(map[string]string)
				merged[c.VideoUID] = answers
				mergedFrom[c.VideoUID] = make(map[string]string)
			}
			if existing, ok := answers[c.Question]; ok {
				if existing != c.AnswerValue && !sharesReusableGroup(groups[c.QuestionID]) {
					logger.Warn().
						Str("video_uid", c.VideoUID).
						Str("question", c.Question).
						Str("kept_project", mergedFrom[c.VideoUID][c.Question]).
						Str("dropped_project", project.Name).
						Msg("[Export] Conflicting answers outside reusable groups, keeping first project")
				}
				continue
			}
			answers[c.Question] = c.AnswerValue
			mergedFrom[c.VideoUID][c.Question] = project.Name
		}
	}

	if len(conflicts) > 0 {
		sortConflicts(conflicts)
		return nil, &InconsistencyError{Conflicts: conflicts}
	}

	rows := make([]ExportRow, 0, len(merged))
	for uid, answers := range merged {
		rows = append(rows, ExportRow{VideoUID: uid, Answers: answers})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].VideoUID < rows[j].VideoUID })
	return rows, nil
}

func sharesReusableGroup(groups []groupRef) bool {
	for _, g := range groups {
		if g.reusable {
			return true
		}
	}
	return false
}

// schemaGroups maps each question of a schema to the groups containing it.
func (s *ExportService) schemaGroups(ctx context.Context, schemaID uint) (map[uint][]groupRef, error) {
	type row struct {
		QuestionID uint
		GroupID    uint
		Title      string
		IsReusable bool
	}
	var rows []row
	if err := s.db.WithContext(ctx).Table("question_group_questions").
		Select("question_group_questions.question_id, question_groups.id AS group_id, question_groups.title, question_groups.is_reusable").
		Joins("JOIN question_groups ON question_groups.id = question_group_questions.question_group_id").
		Joins("JOIN schema_question_groups ON schema_question_groups.question_group_id = question_groups.id").
		Where("schema_question_groups.schema_id = ?", schemaID).
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[uint][]groupRef, len(rows))
	for _, r := range rows {
		out[r.QuestionID] = append(out[r.QuestionID], groupRef{id: r.GroupID, title: r.Title, reusable: r.IsReusable})
	}
	return out, nil
}

// QuestionColumns returns the question texts present in rows, sorted, for
// tabular writers.
func QuestionColumns(rows []ExportRow) []string {
	set := map[string]bool{}
	for _, r := range rows {
		for q := range r.Answers {
			set[q] = true
		}
	}
	cols := make([]string, 0, len(set))
	for q := range set {
		cols = append(cols, q)
	}
	sort.Strings(cols)
	return cols
}
