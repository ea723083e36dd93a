package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/labelpizza/backend/pkg/response"
)

// paramID parses a numeric path parameter, writing a 400 when it is invalid.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// cellParams reads the project, video and group ids shared by the per-video
// routes.
func cellParams(c *gin.Context) (projectID, videoID, groupID uint, ok bool) {
	if projectID, ok = paramID(c, "id"); !ok {
		return
	}
	if videoID, ok = paramID(c, "video_id"); !ok {
		return
	}
	groupID, ok = paramID(c, "group_id")
	return
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}
