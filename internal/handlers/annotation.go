package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/labelpizza/backend/internal/middleware"
	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/internal/services"
	"github.com/labelpizza/backend/pkg/response"
)

// AnnotationHandler serves annotator answers, reviews of those answers and
// ground truth.
type AnnotationHandler struct {
	projects    *services.ProjectService
	annotator   *services.AnnotatorService
	groundTruth *services.GroundTruthService
	review      *services.ReviewService
	display     *services.DisplayService
}

func NewAnnotationHandler(
	projects *services.ProjectService,
	annotator *services.AnnotatorService,
	groundTruth *services.GroundTruthService,
	review *services.ReviewService,
	display *services.DisplayService,
) *AnnotationHandler {
	return &AnnotationHandler{
		projects:    projects,
		annotator:   annotator,
		groundTruth: groundTruth,
		review:      review,
		display:     display,
	}
}

// SubmitAnswers stores the caller's answers for one group on one video
// POST /api/answers
func (h *AnnotationHandler) SubmitAnswers(c *gin.Context) {
	var in services.SubmissionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	req := &services.SubmitAnswersRequest{SubmissionInput: in, UserID: middleware.GetUserID(c)}
	if err := h.annotator.SubmitAnswers(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"submitted": len(in.Answers)})
}

// GetAnswers returns stored answers. Reviewers may read another user's
// answers with ?user_id=.
// GET /api/projects/:id/videos/:video_id/groups/:group_id/answers
func (h *AnnotationHandler) GetAnswers(c *gin.Context) {
	projectID, videoID, groupID, ok := cellParams(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	caller := middleware.GetUserID(c)

	userID := caller
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			response.BadRequest(c, "invalid user_id")
			return
		}
		userID = uint(id)
	}
	roles := []string{}
	if userID != caller {
		roles = append(roles, models.RoleReviewer, models.RoleAdmin)
	}
	if err := h.projects.RequireAccess(ctx, projectID, caller, roles...); err != nil {
		response.Error(c, err)
		return
	}

	answers, err := h.annotator.GetAnswers(ctx, projectID, videoID, userID, groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, answers)
}

// Feedback compares the caller's answers with ground truth in training mode
// GET /api/projects/:id/videos/:video_id/groups/:group_id/feedback
func (h *AnnotationHandler) Feedback(c *gin.Context) {
	projectID, videoID, groupID, ok := cellParams(c)
	if !ok {
		return
	}
	feedback, err := h.review.CheckAnswers(c.Request.Context(), projectID, videoID, middleware.GetUserID(c), groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, feedback)
}

// Display returns the group's questions as they render on this video
// GET /api/projects/:id/videos/:video_id/groups/:group_id/display
func (h *AnnotationHandler) Display(c *gin.Context) {
	projectID, videoID, groupID, ok := cellParams(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.projects.RequireAccess(ctx, projectID, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	questions, err := h.display.EffectiveDisplay(ctx, projectID, videoID, groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, questions)
}

// SubmitGroundTruth stores reviewer or admin ground truth
// POST /api/ground-truth
func (h *AnnotationHandler) SubmitGroundTruth(c *gin.Context) {
	var in services.SubmissionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	req := &services.SubmitGroundTruthRequest{SubmissionInput: in, ReviewerID: middleware.GetUserID(c)}
	if err := h.groundTruth.SubmitGroundTruth(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"submitted": len(in.Answers)})
}

// GetGroundTruth returns the ground truth of a group on a video
// GET /api/projects/:id/videos/:video_id/groups/:group_id/ground-truth
func (h *AnnotationHandler) GetGroundTruth(c *gin.Context) {
	projectID, videoID, groupID, ok := cellParams(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.projects.RequireAccess(ctx, projectID, middleware.GetUserID(c), models.RoleReviewer, models.RoleAdmin); err != nil {
		response.Error(c, err)
		return
	}
	cells, err := h.groundTruth.GetGroundTruth(ctx, projectID, videoID, groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cells)
}

// RevertOverride restores the reviewer value of an admin-modified cell
// DELETE /api/projects/:id/videos/:video_id/questions/:question_id/override
func (h *AnnotationHandler) RevertOverride(c *gin.Context) {
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
	if err := h.groundTruth.RevertGroundTruthCell(c.Request.Context(), projectID, videoID, questionID, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"reverted": true})
}

// Suggestions returns the weighted annotator vote per question
// GET /api/projects/:id/videos/:video_id/groups/:group_id/suggestions
func (h *AnnotationHandler) Suggestions(c *gin.Context) {
	projectID, videoID, groupID, ok := cellParams(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.projects.RequireAccess(ctx, projectID, middleware.GetUserID(c), models.RoleReviewer, models.RoleAdmin); err != nil {
		response.Error(c, err)
		return
	}
	suggestions, err := h.review.SuggestGroundTruth(ctx, projectID, videoID, groupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, suggestions)
}

// ReviewAnswer records a verdict on an annotator answer
// POST /api/reviews
func (h *AnnotationHandler) ReviewAnswer(c *gin.Context) {
	var req services.SubmitAnswerReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.ReviewerID = middleware.GetUserID(c)

	review, err := h.review.SubmitAnswerReview(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, review)
}
