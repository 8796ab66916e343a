package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/services"
	"github.com/SAP-F-2025/grading-service/internal/utils"
)

type HandlerManager struct {
	testHandler       *TestHandler
	attemptHandler    *AttemptHandler
	submissionHandler *SubmissionHandler
	reportHandler     *ReportHandler
	authMiddleware    *CasdoorAuthMiddleware
	health            func(ctx context.Context) error
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	verifier TokenVerifier,
) *HandlerManager {
	return &HandlerManager{
		testHandler:       NewTestHandler(serviceManager.Test(), logger),
		attemptHandler:    NewAttemptHandler(serviceManager.Attempt(), logger),
		submissionHandler: NewSubmissionHandler(serviceManager.Submission(), logger),
		reportHandler:     NewReportHandler(serviceManager.Report(), logger),
		authMiddleware:    NewCasdoorAuthMiddleware(verifier),
		health:            serviceManager.HealthCheck,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	teacherOnly := hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		tests := v1.Group("/tests")
		{
			tests.POST("", teacherOnly, hm.testHandler.CreateTest)
			tests.GET("/:id", hm.testHandler.GetTest)
			tests.DELETE("/:id", teacherOnly, hm.testHandler.DeleteTest)

			tests.POST("/:id/attempts", hm.attemptHandler.StartAttempt)
			tests.GET("/:id/attempts", hm.attemptHandler.ListAttempts)
			tests.GET("/:id/best-score", hm.attemptHandler.GetBestScore)

			tests.GET("/:id/report", teacherOnly, hm.reportHandler.ExportTestScores)
		}

		attempts := v1.Group("/attempts")
		{
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.POST("/:id/complete", hm.attemptHandler.CompleteAttempt)
			attempts.GET("/:id/score", hm.attemptHandler.GetScore)
			attempts.GET("/:id/questions", hm.attemptHandler.GetAccessibleQuestions)
			attempts.GET("/:id/questions/:question_id", hm.attemptHandler.GetQuestion)
			attempts.PUT("/:id/questions/:question_id/answer", hm.attemptHandler.SubmitAnswer)
			attempts.POST("/:id/evaluate", teacherOnly, hm.attemptHandler.EvaluateAttempt)
		}

		tasks := v1.Group("/tasks")
		{
			tasks.POST("", teacherOnly, hm.testHandler.CreateTask)
			tasks.GET("/:id", hm.testHandler.GetTask)
			tasks.POST("/:id/submissions", hm.submissionHandler.SubmitCode)
		}

		submissions := v1.Group("/submissions")
		{
			submissions.GET("/running", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.submissionHandler.ListRunning)
			submissions.GET("/:id", hm.submissionHandler.GetSubmission)
			submissions.GET("/:id/verdicts", hm.submissionHandler.GetVerdicts)
			submissions.POST("/:id/evaluate", teacherOnly, hm.submissionHandler.EvaluateSubmission)
			submissions.POST("/:id/reclaim", hm.authMiddleware.RequireRoleMiddleware(models.RoleAdmin), hm.submissionHandler.ReclaimSubmission)
		}
	}

	router.GET("/health", hm.HealthCheck)
}

func (hm *HandlerManager) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := hm.health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "grading-service",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "grading-service",
	})
}
