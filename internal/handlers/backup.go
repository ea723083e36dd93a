package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/labelpizza/backend/internal/backup"
	"github.com/labelpizza/backend/pkg/response"
)

// BackupHandler lists and takes database backups. Restores go through the
// operator CLI only.
type BackupHandler struct {
	backups   *backup.Service
	scheduler *backup.Scheduler
}

func NewBackupHandler(backups *backup.Service, scheduler *backup.Scheduler) *BackupHandler {
	return &BackupHandler{backups: backups, scheduler: scheduler}
}

// List returns the backup files, newest first
// GET /api/admin/backups
func (h *BackupHandler) List(c *gin.Context) {
	files, err := h.backups.List()
	if err != nil {
		response.Error(c, err)
		return
	}
	data := gin.H{"dir": h.backups.Dir(), "files": files}
	if h.scheduler != nil {
		if next := h.scheduler.Next(); !next.IsZero() {
			data["next_scheduled"] = next
		}
	}
	response.Success(c, data)
}

type createBackupRequest struct {
	Compress bool `json:"compress"`
}

// Create takes a backup now
// POST /api/admin/backups
func (h *BackupHandler) Create(c *gin.Context) {
	var req createBackupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	result, err := h.backups.Backup(c.Request.Context(), backup.BackupOptions{Compress: req.Compress})
	if err != nil {
		if errors.Is(err, backup.ErrLocked) {
			response.Error(c, response.NewConflict(err.Error()))
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
