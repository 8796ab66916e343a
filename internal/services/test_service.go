package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

type testService struct {
	repo      repositories.Repository
	logger    *slog.Logger
	validator *validator.Validator
	now       Clock
}

func NewTestService(repo repositories.Repository, logger *slog.Logger, validator *validator.Validator) TestService {
	return &testService{
		repo:      repo,
		logger:    logger,
		validator: validator,
		now:       systemClock,
	}
}

// ===== TESTS =====

func (s *testService) CreateTest(ctx context.Context, req *CreateTestRequest, userID string) (*TestResponse, error) {
	s.logger.Info("Creating test",
		"course_id", req.CourseID,
		"user_id", userID,
		"questions", len(req.Questions))

	if errs := s.validator.GetBusinessValidator().ValidateTestCreate(req, s.now()); len(errs) > 0 {
		return nil, errs
	}
	if err := requireOwner(ctx, s.repo, req.CourseID, userID, "course", req.CourseID, "create_test"); err != nil {
		return nil, err
	}

	test := &models.Test{
		CourseID:      req.CourseID,
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		OuterMark:     req.OuterMark,
		AttemptBudget: req.AttemptBudget,
		Shuffle:       req.Shuffle,
		Mode:          req.Mode,
		StartsAt:      req.StartsAt.UTC(),
		EndsAt:        req.EndsAt.UTC(),
		Duration:      req.Duration(),
		CreatedBy:     userID,
		Questions:     make([]models.Question, 0, len(req.Questions)),
	}
	for _, q := range req.Questions {
		question := models.Question{
			Text:       q.Text,
			Type:       q.Type,
			TrueAnswer: q.TrueAnswer,
			MaxScore:   q.MaxScore,
		}
		if q.Type.IsChoice() {
			question.Options = datatypes.JSONSlice[string](q.Options)
			question.TrueAnswer = strings.Join(strings.Fields(q.TrueAnswer), " ")
		}
		test.Questions = append(test.Questions, question)
	}

	if err := s.repo.Test().Create(ctx, test); err != nil {
		return nil, fmt.Errorf("failed to create test: %w", err)
	}

	s.logger.Info("Test created", "test_id", test.ID, "course_id", test.CourseID)
	return &TestResponse{Test: test, MaxScore: test.MaxScore(), CanEdit: true}, nil
}

func (s *testService) GetTest(ctx context.Context, id uint, userID string) (*TestResponse, error) {
	test, err := loadTest(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	enrollment, err := getEnrollment(ctx, s.repo, test.CourseID, userID)
	if err != nil {
		return nil, err
	}

	resp := &TestResponse{Test: test, MaxScore: test.MaxScore()}
	if enrollment.IsOwner {
		resp.CanEdit = !test.HasStarted(s.now())
	} else {
		// questions are delivered through attempts only
		resp.Test.Questions = nil
	}
	return resp, nil
}

func (s *testService) DeleteTest(ctx context.Context, id uint, userID string) error {
	s.logger.Info("Deleting test", "test_id", id, "user_id", userID)

	test, err := loadTest(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if err := requireOwner(ctx, s.repo, test.CourseID, userID, "test", id, "delete"); err != nil {
		return err
	}
	if test.HasStarted(s.now()) {
		return NewRejection(ReasonAlreadyStarted, "test %d has already started and can no longer be changed", id)
	}

	if err := s.repo.Test().Delete(ctx, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrTestNotFound
		}
		return fmt.Errorf("failed to delete test: %w", err)
	}

	s.logger.Info("Test deleted", "test_id", id)
	return nil
}

// ===== TASKS =====

func (s *testService) CreateTask(ctx context.Context, req *CreateTaskRequest, userID string) (*models.Task, error) {
	s.logger.Info("Creating task",
		"course_id", req.CourseID,
		"user_id", userID,
		"auto_graded", req.AutoGraded,
		"cases", len(req.Cases))

	if errs := s.validator.GetBusinessValidator().ValidateTaskCreate(req); len(errs) > 0 {
		return nil, errs
	}
	if err := requireOwner(ctx, s.repo, req.CourseID, userID, "course", req.CourseID, "create_task"); err != nil {
		return nil, err
	}

	task := &models.Task{
		CourseID:      req.CourseID,
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		AutoGraded:    req.AutoGraded,
		Deadline:      req.Deadline.UTC(),
		MarkMax:       req.MarkMax,
		MarkOuter:     req.MarkOuter,
		LimitTime:     models.DefaultLimitTime,
		LimitMemoryMB: models.DefaultLimitMemoryMB,
		Cases:         make([]models.TaskCase, 0, len(req.Cases)),
	}
	if req.LimitTimeSeconds > 0 {
		task.LimitTime = time.Duration(req.LimitTimeSeconds) * time.Second
	}
	if req.LimitMemoryMB > 0 {
		task.LimitMemoryMB = req.LimitMemoryMB
	}
	for _, c := range req.Cases {
		task.Cases = append(task.Cases, models.TaskCase{
			Input:          c.Input,
			ExpectedOutput: c.ExpectedOutput,
			Hidden:         c.Hidden,
		})
	}

	if err := s.repo.Task().Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.logger.Info("Task created", "task_id", task.ID, "course_id", task.CourseID)
	return task, nil
}

func (s *testService) GetTask(ctx context.Context, id uint, userID string) (*models.Task, error) {
	task, err := loadTask(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	enrollment, err := getEnrollment(ctx, s.repo, task.CourseID, userID)
	if err != nil {
		return nil, err
	}

	if !enrollment.IsOwner {
		visible := task.Cases[:0]
		for _, c := range task.Cases {
			if !c.Hidden {
				visible = append(visible, c)
			}
		}
		task.Cases = visible
	}
	return task, nil
}
