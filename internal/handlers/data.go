package handlers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labelpizza/backend/internal/export"
	"github.com/labelpizza/backend/internal/middleware"
	"github.com/labelpizza/backend/internal/services"
	"github.com/labelpizza/backend/pkg/response"
)

const excelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DataHandler moves answers in and out: ground truth export, bulk import and
// cascading deletes.
type DataHandler struct {
	exportService  *services.ExportService
	cascadeService *services.CascadeService
	queue          services.TaskQueue
}

func NewDataHandler(exportService *services.ExportService, cascadeService *services.CascadeService, queue services.TaskQueue) *DataHandler {
	return &DataHandler{exportService: exportService, cascadeService: cascadeService, queue: queue}
}

type exportRequest struct {
	Projects []string `json:"projects" binding:"required,min=1"`
	Format   string   `json:"format" binding:"omitempty,oneof=json excel"`
}

// Export downloads the merged ground truth of one or more projects. Any
// reusable group disagreement aborts with the full conflict list.
// POST /api/admin/export
func (h *DataHandler) Export(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()

	ids, err := h.exportService.ResolveProjects(ctx, req.Projects)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.exportService.ExportGroundTruth(ctx, ids)
	if err != nil {
		response.Error(c, err)
		return
	}

	format := req.Format
	if format == "" {
		format = export.FormatJSON
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, rows); err != nil {
		response.Error(c, err)
		return
	}

	name := fmt.Sprintf("ground_truth_%s", time.Now().Format("20060102_150405"))
	contentType := "application/json"
	if format == export.FormatExcel {
		name += ".xlsx"
		contentType = excelContentType
	} else {
		name += ".json"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(200, contentType, buf.Bytes())
}

// ImportAnnotations loads an annotations file
// POST /api/admin/import/annotations
func (h *DataHandler) ImportAnnotations(c *gin.Context) {
	var rows []services.AnnotationRow
	if err := c.ShouldBindJSON(&rows); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	task, err := services.NewImportTask(services.TaskTypeImportAnnotations, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	task.Annotations = rows
	h.enqueue(c, task)
}

// ImportReviews loads a ground truth file
// POST /api/admin/import/reviews
func (h *DataHandler) ImportReviews(c *gin.Context) {
	var rows []services.ReviewRow
	if err := c.ShouldBindJSON(&rows); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	task, err := services.NewImportTask(services.TaskTypeImportReviews, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	task.Reviews = rows
	h.enqueue(c, task)
}

// enqueue answers 202 with the task id when the queue is asynchronous and
// the import result otherwise.
func (h *DataHandler) enqueue(c *gin.Context, task *services.ImportTask) {
	if h.queue == nil {
		response.ServerError(c, "import queue not initialized")
		return
	}
	result, err := h.queue.Enqueue(c.Request.Context(), task)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.queue.IsAsync() {
		response.Accepted(c, gin.H{"task_id": task.ID, "type": task.Type})
		return
	}
	response.Success(c, gin.H{"task_id": task.ID, "type": task.Type, "result": result})
}

type cascadeRequest struct {
	Table string `json:"table" binding:"required"`
	IDs   []uint `json:"ids" binding:"required,min=1"`
}

// CascadePlan previews a cascading delete
// POST /api/admin/cascade/plan
func (h *DataHandler) CascadePlan(c *gin.Context) {
	var req cascadeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	plan, err := h.cascadeService.Plan(c.Request.Context(), req.Table, req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, plan)
}

// Cascade deletes rows and everything that depends on them
// POST /api/admin/cascade/delete
func (h *DataHandler) Cascade(c *gin.Context) {
	var req cascadeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	result, err := h.cascadeService.Cascade(c.Request.Context(), req.Table, req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
