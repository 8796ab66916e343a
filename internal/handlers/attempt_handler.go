package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/grading-service/internal/services"
	"github.com/SAP-F-2025/grading-service/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
}

func NewAttemptHandler(attemptService services.AttemptService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
	}
}

// StartAttempt starts a new attempt at a test
// @Summary Start test attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Test ID"
// @Success 201 {object} services.AttemptResponse
// @Failure 403 {object} ErrorResponse "Not enrolled"
// @Failure 409 {object} ErrorResponse "Rejected, see reason"
// @Router /tests/{id}/attempts [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}

	h.LogRequest(c, "Starting test attempt", "test_id", testID)

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), testID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attempt)
}

// ListAttempts lists the caller's attempts at a test
// @Summary List attempts
// @Tags attempts
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {array} services.AttemptResponse
// @Router /tests/{id}/attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	attempts, err := h.attemptService.List(c.Request.Context(), testID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempts)
}

// GetBestScore returns the caller's best score at a test
// @Summary Best score
// @Tags attempts
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} services.BestScoreResponse
// @Router /tests/{id}/best-score [get]
func (h *AttemptHandler) GetBestScore(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	best, err := h.attemptService.BestScore(c.Request.Context(), testID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, best)
}

// GetAttempt returns an attempt with its slots
// @Summary Get attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// CompleteAttempt ends an attempt early
// @Summary Complete attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptResponse
// @Failure 409 {object} ErrorResponse "attempt_finished"
// @Router /attempts/{id}/complete [post]
func (h *AttemptHandler) CompleteAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Completing test attempt", "attempt_id", id)

	userID, ok := h.userID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Complete(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetScore returns the attempt score, null while the attempt is open
// @Summary Attempt score
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.ScoreResponse
// @Router /attempts/{id}/score [get]
func (h *AttemptHandler) GetScore(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	score, err := h.attemptService.Score(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, score)
}

// GetAccessibleQuestions lists the questions the caller may answer now
// @Summary Accessible questions
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AccessibleResponse
// @Router /attempts/{id}/questions [get]
func (h *AttemptHandler) GetAccessibleQuestions(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	accessible, err := h.attemptService.AccessibleQuestions(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, accessible)
}

// GetQuestion returns one slot of an attempt
// @Summary Get attempt question
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param question_id path uint true "Question ID"
// @Success 200 {object} services.SlotView
// @Failure 409 {object} ErrorResponse "question_locked"
// @Router /attempts/{id}/questions/{question_id} [get]
func (h *AttemptHandler) GetQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	slot, err := h.attemptService.GetQuestion(c.Request.Context(), id, questionID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, slot)
}

// SubmitAnswer sets or clears the answer to one question
// @Summary Answer question
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param question_id path uint true "Question ID"
// @Param answer body services.AnswerRequest true "Answer"
// @Success 200 {object} services.SlotView
// @Failure 400 {object} ErrorResponse "Malformed answer"
// @Failure 409 {object} ErrorResponse "attempt_finished or question_locked"
// @Router /attempts/{id}/questions/{question_id}/answer [put]
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	h.LogRequest(c, "Submitting answer", "attempt_id", id, "question_id", questionID)

	var req services.AnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	slot, err := h.attemptService.Answer(c.Request.Context(), id, questionID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, slot)
}

// EvaluateAttempt sets a manual override score
// @Summary Override attempt score
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param score body services.OverrideScoreRequest true "Score"
// @Success 200 {object} services.AttemptResponse
// @Router /attempts/{id}/evaluate [post]
func (h *AttemptHandler) EvaluateAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Evaluating test attempt", "attempt_id", id)

	var req services.OverrideScoreRequest
	if !h.bindJSON(c, &req) {
		return
	}
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Evaluate(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}
