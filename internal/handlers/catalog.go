package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/labelpizza/backend/internal/services"
	"github.com/labelpizza/backend/pkg/response"
)

// CatalogHandler administers users, videos, questions, question groups and
// schemas.
type CatalogHandler struct {
	catalog *services.CatalogService
	display *services.DisplayService
}

func NewCatalogHandler(catalog *services.CatalogService, display *services.DisplayService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, display: display}
}

// ListUsers
// GET /api/admin/users
func (h *CatalogHandler) ListUsers(c *gin.Context) {
	users, err := h.catalog.ListUsers(c.Request.Context(), queryBool(c, "include_archived"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, users)
}

// CreateUser
// POST /api/admin/users
func (h *CatalogHandler) CreateUser(c *gin.Context) {
	var req services.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, err := h.catalog.CreateUser(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// ListVideos
// GET /api/admin/videos
func (h *CatalogHandler) ListVideos(c *gin.Context) {
	videos, err := h.catalog.ListVideos(c.Request.Context(), queryBool(c, "include_archived"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, videos)
}

// CreateVideo
// POST /api/admin/videos
func (h *CatalogHandler) CreateVideo(c *gin.Context) {
	var req services.CreateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	video, err := h.catalog.CreateVideo(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, video)
}

// ListQuestions
// GET /api/admin/questions
func (h *CatalogHandler) ListQuestions(c *gin.Context) {
	questions, err := h.catalog.ListQuestions(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, questions)
}

// CreateQuestion
// POST /api/admin/questions
func (h *CatalogHandler) CreateQuestion(c *gin.Context) {
	var req services.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	question, err := h.catalog.CreateQuestion(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, question)
}

// UpdateQuestion edits display fields and appends options
// PUT /api/admin/questions/:id
func (h *CatalogHandler) UpdateQuestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	question, err := h.catalog.UpdateQuestion(c.Request.Context(), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, question)
}

// ListQuestionGroups
// GET /api/admin/question-groups
func (h *CatalogHandler) ListQuestionGroups(c *gin.Context) {
	groups, err := h.catalog.ListQuestionGroups(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, groups)
}

// CreateQuestionGroup
// POST /api/admin/question-groups
func (h *CatalogHandler) CreateQuestionGroup(c *gin.Context) {
	var req services.CreateQuestionGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	group, err := h.catalog.CreateQuestionGroup(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// ListSchemas
// GET /api/admin/schemas
func (h *CatalogHandler) ListSchemas(c *gin.Context) {
	schemas, err := h.catalog.ListSchemas(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, schemas)
}

// CreateSchema
// POST /api/admin/schemas
func (h *CatalogHandler) CreateSchema(c *gin.Context) {
	var req services.CreateSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	schema, err := h.catalog.CreateSchema(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, schema)
}

type archiveRequest struct {
	Entity   string `json:"entity" binding:"required"`
	ID       uint   `json:"id" binding:"required"`
	Archived *bool  `json:"archived" binding:"required"`
}

// SetArchived archives or restores any catalog entity
// POST /api/admin/archive
func (h *CatalogHandler) SetArchived(c *gin.Context) {
	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.catalog.SetArchived(c.Request.Context(), req.Entity, req.ID, *req.Archived); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, req)
}

// SetDisplay stores a per-video display override
// PUT /api/admin/displays
func (h *CatalogHandler) SetDisplay(c *gin.Context) {
	var req services.SetCustomDisplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	row, err := h.display.SetCustomDisplay(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, row)
}

// RemoveDisplay drops a per-video display override
// DELETE /api/admin/displays/:id/:video_id/:question_id
func (h *CatalogHandler) RemoveDisplay(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	videoID, ok := paramID(c, "video_id")
	if !ok {
		return
	}
	questionID, ok := paramID(c, "question_id")
	if !ok {
		return
	}
	if err := h.display.RemoveCustomDisplay(c.Request.Context(), projectID, videoID, questionID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"removed": true})
}
