package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/labelpizza/backend/internal/middleware"
	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/services"
	"github.com/labelpizza/backend/pkg/response"
)

type ProjectHandler struct {
	projectService  *services.ProjectService
	progressService *services.ProgressService
}

func NewProjectHandler(projects *services.ProjectService, progress *services.ProgressService) *ProjectHandler {
	return &ProjectHandler{projectService: projects, progressService: progress}
}

// access loads the :id project after checking that the caller holds one of
// roles on it (any role when none are given).
func (h *ProjectHandler) access(c *gin.Context, roles ...string) (uint, bool) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return 0, false
	}
	if err := h.projectService.RequireAccess(c.Request.Context(), projectID, middleware.GetUserID(c), roles...); err != nil {
		response.Error(c, err)
		return 0, false
	}
	return projectID, true
}

// List returns paginated projects
// GET /api/admin/projects
func (h *ProjectHandler) List(c *gin.Context) {
	var req services.ProjectListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.projectService.List(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// Mine returns the active projects the caller holds a role on
// GET /api/projects
func (h *ProjectHandler) Mine(c *gin.Context) {
	projects, err := h.projectService.ListForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, projects)
}

// GetByID returns a project by ID
// GET /api/projects/:id
func (h *ProjectHandler) GetByID(c *gin.Context) {
	projectID, ok := h.access(c)
	if !ok {
		return
	}
	project, err := h.projectService.GetByID(c.Request.Context(), projectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, project)
}

// Create creates a new project
// POST /api/admin/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req services.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, project)
}

type addVideosRequest struct {
	VideoIDs []uint `json:"video_ids" binding:"required,min=1"`
}

// AddVideos attaches videos to a project
// POST /api/admin/projects/:id/videos
func (h *ProjectHandler) AddVideos(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req addVideosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.projectService.AddVideos(c.Request.Context(), projectID, req.VideoIDs); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"added": len(req.VideoIDs)})
}

// Videos lists the videos of a project
// GET /api/projects/:id/videos
func (h *ProjectHandler) Videos(c *gin.Context) {
	projectID, ok := h.access(c)
	if !ok {
		return
	}
	videos, err := h.projectService.Videos(c.Request.Context(), projectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, videos)
}

// Groups lists the question groups of a project's schema in display order
// GET /api/projects/:id/groups
func (h *ProjectHandler) Groups(c *gin.Context) {
	projectID, ok := h.access(c)
	if !ok {
		return
	}
	groups, err := h.projectService.Groups(c.Request.Context(), projectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, groups)
}

// Members lists role assignments
// GET /api/projects/:id/members
func (h *ProjectHandler) Members(c *gin.Context) {
	projectID, ok := h.access(c)
	if !ok {
		return
	}
	members, err := h.projectService.Members(c.Request.Context(), projectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, members)
}

// AssignRole grants a project role
// POST /api/admin/projects/:id/roles
func (h *ProjectHandler) AssignRole(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.projectService.AssignRole(c.Request.Context(), projectID, &req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"project_id": projectID, "user_id": req.UserID, "role": req.Role})
}

// RemoveRole revokes a project role
// DELETE /api/admin/projects/:id/roles/:user_id/:role
func (h *ProjectHandler) RemoveRole(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID, ok := paramID(c, "user_id")
	if !ok {
		return
	}
	reverted, err := h.projectService.RemoveUserRole(c.Request.Context(), projectID, userID, c.Param("role"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"reverted": reverted})
}

// Progress reports the caller's completion, ground truth completion and mode
// GET /api/projects/:id/progress
func (h *ProjectHandler) Progress(c *gin.Context) {
	projectID, ok := h.access(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	mine, err := h.progressService.UserProgress(ctx, projectID, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	gt, err := h.progressService.GroundTruthProgress(ctx, projectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	mode, err := h.progressService.ProjectMode(ctx, projectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{
		"project_id":            projectID,
		"user_progress":         mine,
		"ground_truth_progress": gt,
		"mode":                  mode,
	})
}

// Overview reports every annotator's progress
// GET /api/projects/:id/overview
func (h *ProjectHandler) Overview(c *gin.Context) {
	projectID, ok := h.access(c, models.RoleReviewer, models.RoleAdmin)
	if !ok {
		return
	}
	overview, err := h.progressService.ProjectOverview(c.Request.Context(), projectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, overview)
}
