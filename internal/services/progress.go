package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/labelpizza/backend/internal/models"
	"gorm.io/gorm"
)

// ProgressService counts answered (video, question) cells against the full
// project grid of project videos times schema questions.
type ProgressService struct {
	db    *gorm.DB
	cache *ProgressCache
}

func NewProgressService(db *gorm.DB, cache *ProgressCache) *ProgressService {
	return &ProgressService{db: db, cache: cache}
}

func (s *ProgressService) Cache() *ProgressCache { return s.cache }

// totalCells returns project videos times schema questions.
func (s *ProgressService) totalCells(ctx context.Context, project *models.Project) (int64, error) {
	db := s.db.WithContext(ctx)

	var videos int64
	if err := db.Model(&models.ProjectVideo{}).Where("project_id = ?", project.ID).Count(&videos).Error; err != nil {
		return 0, err
	}
	if videos == 0 {
		return 0, nil
	}

	var questions int64
	if err := db.Table("(?) AS schema_questions", schemaQuestionIDs(db, project.SchemaID)).Count(&questions).Error; err != nil {
		return 0, err
	}
	return videos * questions, nil
}

func percent(done, total int64) float64 {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return float64(done) * 100 / float64(total)
}

// UserProgress returns the share of the project grid userID has answered.
func (s *ProgressService) UserProgress(ctx context.Context, projectID, userID uint) (float64, error) {
	key := fmt.Sprintf("user:%d", userID)
	if v, ok := s.cache.Get(projectID, key); ok {
		return v, nil
	}

	project, err := findProject(ctx, s.db, projectID)
	if err != nil {
		return 0, err
	}
	total, err := s.totalCells(ctx, project)
	if err != nil {
		return 0, err
	}

	var done int64
	if total > 0 {
		db := s.db.WithContext(ctx)
		if err := db.Model(&models.AnnotatorAnswer{}).
			Where("project_id = ? AND user_id = ?", projectID, userID).
			Where("video_id IN (?)", projectVideoIDs(db, projectID)).
			Where("question_id IN (?)", schemaQuestionIDs(db, project.SchemaID)).
			Count(&done).Error; err != nil {
			return 0, err
		}
	}

	p := percent(done, total)
	s.cache.Set(projectID, key, p)
	return p, nil
}

// GroundTruthProgress returns the share of the project grid with ground truth.
func (s *ProgressService) GroundTruthProgress(ctx context.Context, projectID uint) (float64, error) {
	const key = "gt"
	if v, ok := s.cache.Get(projectID, key); ok {
		return v, nil
	}

	project, err := findProject(ctx, s.db, projectID)
	if err != nil {
		return 0, err
	}
	total, err := s.totalCells(ctx, project)
	if err != nil {
		return 0, err
	}

	var done int64
	if total > 0 {
		db := s.db.WithContext(ctx)
		if err := db.Model(&models.ReviewerGroundTruth{}).
			Where("project_id = ?", projectID).
			Where("video_id IN (?)", projectVideoIDs(db, projectID)).
			Where("question_id IN (?)", schemaQuestionIDs(db, project.SchemaID)).
			Count(&done).Error; err != nil {
			return 0, err
		}
	}

	p := percent(done, total)
	s.cache.Set(projectID, key, p)
	return p, nil
}

// ProjectMode is Training once every cell has ground truth, Annotation otherwise.
// An empty project stays in Annotation.
func (s *ProgressService) ProjectMode(ctx context.Context, projectID uint) (string, error) {
	p, err := s.GroundTruthProgress(ctx, projectID)
	if err != nil {
		return "", err
	}
	if p >= 100 {
		return models.ModeTraining, nil
	}
	return models.ModeAnnotation, nil
}

// AnnotatorProgress is one row of a project overview.
type AnnotatorProgress struct {
	UserID   uint    `json:"user_id"`
	Username string  `json:"username"`
	Answered int64   `json:"answered"`
	Total    int64   `json:"total"`
	Percent  float64 `json:"percent"`
}

// ProjectProgress summarises a project.
type ProjectProgress struct {
	ProjectID           uint                `json:"project_id"`
	Name                string              `json:"name"`
	Mode                string              `json:"mode"`
	TotalCells          int64               `json:"total_cells"`
	GroundTruthProgress float64             `json:"ground_truth_progress"`
	Annotators          []AnnotatorProgress `json:"annotators"`
}

// ProjectOverview reports every annotator's progress with one grouped count.
func (s *ProgressService) ProjectOverview(ctx context.Context, projectID uint) (*ProjectProgress, error) {
	project, err := findProject(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	total, err := s.totalCells(ctx, project)
	if err != nil {
		return nil, err
	}
	gt, err := s.GroundTruthProgress(ctx, projectID)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var annotators []models.User
	if err := db.Model(&models.User{}).
		Joins("JOIN project_user_roles ON project_user_roles.user_id = users.id").
		Where("project_user_roles.project_id = ? AND project_user_roles.role = ?", projectID, models.RoleAnnotator).
		Find(&annotators).Error; err != nil {
		return nil, err
	}

	type countRow struct {
		UserID   uint
		Answered int64
	}
	var counts []countRow
	if total > 0 {
		if err := db.Model(&models.AnnotatorAnswer{}).
			Select("user_id, COUNT(*) AS answered").
			Where("project_id = ?", projectID).
			Where("video_id IN (?)", projectVideoIDs(db, projectID)).
			Where("question_id IN (?)", schemaQuestionIDs(db, project.SchemaID)).
			Group("user_id").
			Scan(&counts).Error; err != nil {
			return nil, err
		}
	}
	answered := make(map[uint]int64, len(counts))
	for _, c := range counts {
		answered[c.UserID] = c.Answered
	}

	rows := make([]AnnotatorProgress, 0, len(annotators))
	for _, u := range annotators {
		n := answered[u.ID]
		rows = append(rows, AnnotatorProgress{
			UserID:   u.ID,
			Username: u.Username,
			Answered: n,
			Total:    total,
			Percent:  percent(n, total),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Username < rows[j].Username })

	mode := models.ModeAnnotation
	if gt >= 100 {
		mode = models.ModeTraining
	}
	return &ProjectProgress{
		ProjectID:           project.ID,
		Name:                project.Name,
		Mode:                mode,
		TotalCells:          total,
		GroundTruthProgress: gt,
		Annotators:          rows,
	}, nil
}
