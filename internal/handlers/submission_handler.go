package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/grading-service/internal/services"
	"github.com/SAP-F-2025/grading-service/internal/utils"
)

type SubmissionHandler struct {
	BaseHandler
	submissionService services.SubmissionService
}

func NewSubmissionHandler(submissionService services.SubmissionService, logger utils.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
	}
}

// SubmitCode submits code for an auto-graded task
// @Summary Submit code
// @Tags submissions
// @Accept json
// @Produce json
// @Param id path uint true "Task ID"
// @Param submission body services.SubmitCodeRequest true "Source code"
// @Success 202 {object} services.SubmissionResponse
// @Failure 400 {object} ErrorResponse "Forbidden construct"
// @Failure 409 {object} ErrorResponse "Rejected, see reason"
// @Failure 429 {object} ErrorResponse "throttled"
// @Router /tasks/{id}/submissions [post]
func (h *SubmissionHandler) SubmitCode(c *gin.Context) {
	taskID := h.parseIDParam(c, "id")
	if taskID == 0 {
		return
	}

	h.LogRequest(c, "Submitting code", "task_id", taskID)

	var req services.SubmitCodeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	submission, err := h.submissionService.Submit(c.Request.Context(), taskID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, submission)
}

// GetSubmission returns a submission and whether it is still queued
// @Summary Get submission
// @Tags submissions
// @Produce json
// @Param id path uint true "Submission ID"
// @Success 200 {object} services.SubmissionResponse
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	submission, err := h.submissionService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// GetVerdicts returns per-case verdicts ordered by case index
// @Summary Submission verdicts
// @Tags submissions
// @Produce json
// @Param id path uint true "Submission ID"
// @Success 200 {array} models.CaseVerdict
// @Router /submissions/{id}/verdicts [get]
func (h *SubmissionHandler) GetVerdicts(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	verdicts, err := h.submissionService.Verdicts(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, verdicts)
}

// EvaluateSubmission records a teacher's mark
// @Summary Mark submission
// @Tags submissions
// @Accept json
// @Produce json
// @Param id path uint true "Submission ID"
// @Param mark body services.EvaluateSubmissionRequest true "Mark"
// @Success 200 {object} models.SubmissionMark
// @Router /submissions/{id}/evaluate [post]
func (h *SubmissionHandler) EvaluateSubmission(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Evaluating submission", "submission_id", id)

	var req services.EvaluateSubmissionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	mark, err := h.submissionService.Evaluate(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, mark)
}

// ListRunning lists submissions waiting for results
// @Summary Running submissions
// @Tags submissions
// @Produce json
// @Success 200 {array} models.TaskSubmission
// @Router /submissions/running [get]
func (h *SubmissionHandler) ListRunning(c *gin.Context) {
	running, err := h.submissionService.ListRunning(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, running)
}

// ReclaimSubmission releases a submission stuck in the running state
// @Summary Reclaim submission
// @Tags submissions
// @Param id path uint true "Submission ID"
// @Success 200 {object} SuccessResponse
// @Router /submissions/{id}/reclaim [post]
func (h *SubmissionHandler) ReclaimSubmission(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Reclaiming submission", "submission_id", id)

	if err := h.submissionService.Reclaim(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "Submission reclaimed"})
}
