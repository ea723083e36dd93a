package services

import (
	"context"
	"errors"
	"time"

	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProjectService struct {
	db    *gorm.DB
	cache *ProgressCache
}

func NewProjectService(db *gorm.DB, cache *ProgressCache) *ProjectService {
	return &ProjectService{db: db, cache: cache}
}

type ProjectListRequest struct {
	Page            int    `form:"page" binding:"omitempty,min=1"`
	PageSize        int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Name            string `form:"name"`
	IncludeArchived bool   `form:"include_archived"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	SchemaID    uint   `json:"schema_id" binding:"required"`
	VideoIDs    []uint `json:"video_ids"`
}

// List returns paginated projects
func (s *ProjectService) List(ctx context.Context, req *ProjectListRequest) (*ProjectListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 10
	}

	var projects []models.Project
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Project{})
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}
	if !req.IncludeArchived {
		query = query.Where("is_archived = ?", false)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("id ASC").Find(&projects).Error; err != nil {
		return nil, err
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    projects,
	}, nil
}

// ListForUser returns the active projects a user holds any role on.
func (s *ProjectService) ListForUser(ctx context.Context, userID uint) ([]models.Project, error) {
	var projects []models.Project
	err := s.db.WithContext(ctx).
		Where("is_archived = ? AND id IN (?)", false,
			s.db.Model(&models.ProjectUserRole{}).Select("project_id").Where("user_id = ?", userID)).
		Order("id ASC").
		Find(&projects).Error
	return projects, err
}

func (s *ProjectService) GetByID(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).Preload("Schema").First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("project", id)
		}
		return nil, err
	}
	return &project, nil
}

// Create makes a project over an active schema and attaches videos.
func (s *ProjectService) Create(ctx context.Context, req *CreateProjectRequest) (*models.Project, error) {
	var schema models.Schema
	if err := s.db.WithContext(ctx).First(&schema, req.SchemaID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("schema", req.SchemaID)
		}
		return nil, err
	}
	if schema.IsArchived {
		return nil, &StateError{Entity: "schema", Key: schema.Name, Reason: "archived"}
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Where("name = ?", req.Name).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, invalid("project %q already exists", req.Name)
	}

	project := &models.Project{
		Name:        req.Name,
		Description: req.Description,
		SchemaID:    schema.ID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		return addVideos(tx, project.ID, req.VideoIDs)
	})
	if err != nil {
		return nil, err
	}
	logger.Info().Uint("project_id", project.ID).Str("name", project.Name).Msg("[Project] Created")
	return project, nil
}

func addVideos(tx *gorm.DB, projectID uint, videoIDs []uint) error {
	if len(videoIDs) == 0 {
		return nil
	}
	var found int64
	if err := tx.Model(&models.Video{}).Where("id IN ?", videoIDs).Count(&found).Error; err != nil {
		return err
	}
	if int(found) != len(uniqueUints(videoIDs)) {
		return notFound("video", "in request")
	}

	links := make([]models.ProjectVideo, 0, len(videoIDs))
	for _, id := range uniqueUints(videoIDs) {
		links = append(links, models.ProjectVideo{ProjectID: projectID, VideoID: id})
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&links).Error
}

func uniqueUints(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// AddVideos attaches existing videos to a project.
func (s *ProjectService) AddVideos(ctx context.Context, projectID uint, videoIDs []uint) error {
	if _, err := activeProject(ctx, s.db, projectID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return addVideos(tx, projectID, videoIDs)
	}); err != nil {
		return err
	}
	s.cache.Invalidate(projectID)
	return nil
}

// Videos lists a project's videos ordered by uid.
func (s *ProjectService) Videos(ctx context.Context, projectID uint) ([]models.Video, error) {
	var videos []models.Video
	err := s.db.WithContext(ctx).
		Where("id IN (?)", projectVideoIDs(s.db, projectID)).
		Order("video_uid ASC").
		Find(&videos).Error
	return videos, err
}

// Groups returns the question groups of a project's schema in display order.
func (s *ProjectService) Groups(ctx context.Context, projectID uint) ([]*GroupDefinition, error) {
	project, err := findProject(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}
	var links []models.SchemaQuestionGroup
	if err := s.db.WithContext(ctx).
		Where("schema_id = ?", project.SchemaID).
		Order("display_order ASC, id ASC").
		Find(&links).Error; err != nil {
		return nil, err
	}
	defs := make([]*GroupDefinition, 0, len(links))
	for _, l := range links {
		def, err := LoadGroup(ctx, s.db, l.QuestionGroupID)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

type AssignRoleRequest struct {
	UserID     uint     `json:"user_id" binding:"required"`
	Role       string   `json:"role" binding:"required,oneof=annotator reviewer admin model"`
	UserWeight *float64 `json:"user_weight"`
}

// AssignRole grants role and the roles it implies. Model accounts may only
// hold the model role and only model accounts may hold it.
func (s *ProjectService) AssignRole(ctx context.Context, projectID uint, req *AssignRoleRequest) error {
	if !models.ValidRole(req.Role) {
		return invalid("unknown role %q", req.Role)
	}
	if _, err := activeProject(ctx, s.db, projectID); err != nil {
		return err
	}
	user, err := activeUser(ctx, s.db, req.UserID)
	if err != nil {
		return err
	}
	isModel := user.UserType == models.UserTypeModel
	if isModel != (req.Role == models.RoleModel) {
		return invalid("user %s of type %s cannot hold role %s", user.Username, user.UserType, req.Role)
	}

	weight := 1.0
	if req.UserWeight != nil {
		if *req.UserWeight < 0 {
			return invalid("user weight cannot be negative")
		}
		weight = *req.UserWeight
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, role := range models.ImpliedRoles(req.Role) {
			row := models.ProjectUserRole{
				ProjectID:  projectID,
				UserID:     user.ID,
				Role:       role,
				UserWeight: weight,
				AssignedAt: now,
			}
			onConflict := clause.OnConflict{
				Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}, {Name: "role"}},
				DoNothing: true,
			}
			if role == req.Role && req.UserWeight != nil {
				onConflict.DoNothing = false
				onConflict.DoUpdates = clause.AssignmentColumns([]string{"user_weight"})
			}
			if err := tx.Clauses(onConflict).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(projectID)
	logger.Info().Uint("project_id", projectID).Uint("user_id", user.ID).Str("role", req.Role).Msg("[Project] Role assigned")
	return nil
}

// RemoveUserRole deletes one role row. Removing an admin reverts every ground
// truth cell that admin overrode in the project, in the same transaction.
func (s *ProjectService) RemoveUserRole(ctx context.Context, projectID, userID uint, role string) (int64, error) {
	var reverted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("project_id = ? AND user_id = ? AND role = ?", projectID, userID, role).
			Delete(&models.ProjectUserRole{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Entity: "role " + role, Key: formatPair(userID, projectID)}
		}
		if role == models.RoleAdmin {
			n, err := RevertAdminModifications(tx, projectID, userID)
			if err != nil {
				return err
			}
			reverted = n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.cache.Invalidate(projectID)
	return reverted, nil
}

// Members lists role assignments of a project.
func (s *ProjectService) Members(ctx context.Context, projectID uint) ([]models.ProjectUserRole, error) {
	var roles []models.ProjectUserRole
	err := s.db.WithContext(ctx).Preload("User").
		Where("project_id = ?", projectID).
		Order("user_id ASC, role ASC").
		Find(&roles).Error
	return roles, err
}

// RequireAccess fails with a PermissionError unless userID holds one of roles
// on the project. Global admins pass every check.
func (s *ProjectService) RequireAccess(ctx context.Context, projectID, userID uint, roles ...string) error {
	user, err := findUser(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if user.IsAdmin() {
		return nil
	}
	if len(roles) == 0 {
		roles = []string{models.RoleAnnotator, models.RoleReviewer, models.RoleAdmin, models.RoleModel}
	}
	_, err = requireRole(ctx, s.db, projectID, userID, roles...)
	return err
}
