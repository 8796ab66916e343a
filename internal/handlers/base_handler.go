package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/grading-service/internal/services"
	"github.com/SAP-F-2025/grading-service/internal/utils"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string                    `json:"message"`
	Details string                    `json:"details,omitempty"`
	Reason  services.RejectionReason  `json:"reason,omitempty"`
	Errors  services.ValidationErrors `json:"errors,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	args = append(args, "method", c.Request.Method, "path", c.FullPath())
	if userID, err := GetUserIDFromContext(c); err == nil {
		args = append(args, "user_id", userID)
	}
	utils.GetLogger(c, h.logger).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err, "path", c.FullPath())
	utils.GetLogger(c, h.logger).Error(msg, args...)
}

func (h *BaseHandler) RespondWithError(c *gin.Context, status int, msg string, err error) {
	resp := ErrorResponse{Message: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	c.JSON(status, resp)
}

// userID returns the authenticated caller, writing 401 when there is none.
func (h *BaseHandler) userID(c *gin.Context) (string, bool) {
	id, err := GetUserIDFromContext(c)
	if err != nil || id == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}
	return id, true
}

// parseIDParam returns 0 after writing 400 when the parameter is not a
// positive integer.
func (h *BaseHandler) parseIDParam(c *gin.Context, name string) uint {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + name,
			Details: "must be a positive integer",
		})
		return 0
	}
	return uint(id)
}

// bindJSON decodes the request body, writing 400 on failure.
func (h *BaseHandler) bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return false
	}
	return true
}

// ===== ERROR HANDLING =====

func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var (
		verrs services.ValidationErrors
		perr  *services.PermissionError
	)

	if rejection, ok := services.RejectionOf(err); ok {
		status := http.StatusConflict
		if rejection.Reason == services.ReasonNotEnrolled {
			status = http.StatusForbidden
		}
		if rejection.Reason == services.ReasonThrottled {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, ErrorResponse{
			Message: rejection.Message,
			Reason:  rejection.Reason,
		})
		return
	}

	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: verrs.Error(),
			Errors:  verrs,
		})
	case errors.As(err, &perr):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Forbidden",
			Details: perr.Error(),
		})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Not found",
			Details: err.Error(),
		})
	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
