package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/SAP-F-2025/grading-service/internal/events"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
	"github.com/SAP-F-2025/grading-service/internal/scoring"
	"github.com/SAP-F-2025/grading-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	now       Clock
	shuffle   func(n int, swap func(i, j int))
}

func NewAttemptService(repo repositories.Repository, publisher events.EventPublisher, logger *slog.Logger, validator *validator.Validator) AttemptService {
	return &attemptService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		now:       systemClock,
		shuffle:   rand.Shuffle,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, testID uint, userID string) (*AttemptResponse, error) {
	s.logger.Info("Starting test attempt",
		"test_id", testID,
		"user_id", userID)

	var (
		attempt *models.TestAttempt
		test    *models.Test
	)
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		var err error
		test, err = loadTest(ctx, tx, testID)
		if err != nil {
			return err
		}
		if _, err := lockEnrollment(ctx, tx, test.CourseID, userID); err != nil {
			return err
		}

		now := s.now()
		if !test.HasStarted(now) {
			return NewRejection(ReasonNotYetOpen, "test opens at %s", test.StartsAt.Format(time.RFC3339))
		}
		if !test.IsOpen(now) {
			return NewRejection(ReasonAlreadyClosed, "test closed at %s", test.EndsAt.Format(time.RFC3339))
		}

		previous, err := tx.Attempt().ListByTestAndUser(ctx, testID, userID)
		if err != nil {
			return fmt.Errorf("failed to list attempts: %w", err)
		}
		for _, p := range previous {
			if !p.IsFinished(test, now) {
				return NewRejection(ReasonAttemptInProgress, "attempt %d is still open", p.ID)
			}
		}
		if len(previous) >= test.AttemptBudget {
			return NewRejection(ReasonAttemptsExhausted, "all %d attempts used", test.AttemptBudget)
		}

		attempt = &models.TestAttempt{
			TestID:    testID,
			UserID:    userID,
			StartedAt: now,
		}
		if err := tx.Attempt().Create(ctx, attempt); err != nil {
			return fmt.Errorf("failed to create attempt: %w", err)
		}

		slots := s.buildSlots(attempt.ID, test)
		if err := tx.AnswerSlot().CreateBatch(ctx, slots); err != nil {
			return fmt.Errorf("failed to create answer slots: %w", err)
		}
		attempt.Slots = make([]models.AnswerSlot, len(slots))
		for i, slot := range slots {
			attempt.Slots[i] = *slot
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "Test attempt not started", err, "test_id", testID, "user_id", userID)
		return nil, err
	}

	s.logger.Info("Test attempt started",
		"attempt_id", attempt.ID,
		"test_id", testID,
		"user_id", userID,
		"slots", len(attempt.Slots))

	return s.buildResponse(attempt, test, attempt.Slots, s.now()), nil
}

// buildSlots fixes the delivery order once: question ID order, or a uniform
// random permutation when the test shuffles.
func (s *attemptService) buildSlots(attemptID uint, test *models.Test) []*models.AnswerSlot {
	order := make([]uint, len(test.Questions))
	for i, q := range test.Questions {
		order[i] = q.ID
	}
	if test.Shuffle {
		s.shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	slots := make([]*models.AnswerSlot, len(order))
	for i, questionID := range order {
		slots[i] = &models.AnswerSlot{
			AttemptID:  attemptID,
			QuestionID: questionID,
			Position:   i,
		}
	}
	return slots
}

func (s *attemptService) Complete(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	s.logger.Info("Completing test attempt",
		"attempt_id", attemptID,
		"user_id", userID)

	var (
		attempt *models.TestAttempt
		test    *models.Test
		slots   []*models.AnswerSlot
		now     time.Time
	)
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		var err error
		attempt, err = loadAttempt(ctx, tx, attemptID, true)
		if err != nil {
			return err
		}
		if attempt.UserID != userID {
			return NewPermissionError(userID, attemptID, "attempt", "complete", "not owned by user")
		}
		test, err = loadTest(ctx, tx, attempt.TestID)
		if err != nil {
			return err
		}

		now = s.now()
		if attempt.IsFinished(test, now) {
			return NewRejection(ReasonAttemptFinished, "attempt %d is already finished", attemptID)
		}

		attempt.EndedAt = &now
		if err := tx.Attempt().Update(ctx, attempt); err != nil {
			return fmt.Errorf("failed to complete attempt: %w", err)
		}

		slots, err = tx.AnswerSlot().ListByAttempt(ctx, attemptID)
		if err != nil {
			return fmt.Errorf("failed to list answer slots: %w", err)
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "Test attempt not completed", err, "attempt_id", attemptID, "user_id", userID)
		return nil, err
	}

	resp := s.buildResponse(attempt, test, derefSlots(slots), now)
	s.publishCompleted(ctx, attempt, resp.Score)

	s.logger.Info("Test attempt completed", "attempt_id", attemptID, "score", resp.Score)
	return resp, nil
}

// Answer sets the answer of the slot holding questionID and rescores it. The
// finished predicate is re-evaluated under the attempt's row lock.
func (s *attemptService) Answer(ctx context.Context, attemptID, questionID uint, req *AnswerRequest, userID string) (*SlotView, error) {
	s.logger.Info("Answering question",
		"attempt_id", attemptID,
		"question_id", questionID,
		"user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var view *SlotView
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		attempt, err := loadAttempt(ctx, tx, attemptID, true)
		if err != nil {
			return err
		}
		if attempt.UserID != userID {
			return NewPermissionError(userID, attemptID, "attempt", "answer", "not owned by user")
		}
		test, err := loadTest(ctx, tx, attempt.TestID)
		if err != nil {
			return err
		}

		now := s.now()
		if attempt.IsFinished(test, now) {
			return NewRejection(ReasonAttemptFinished, "attempt %d is finished", attemptID)
		}

		slots, err := tx.AnswerSlot().ListByAttempt(ctx, attemptID)
		if err != nil {
			return fmt.Errorf("failed to list answer slots: %w", err)
		}
		slot := findSlot(slots, questionID)
		if slot == nil {
			return ErrQuestionNotFound
		}
		if !slotAccessible(test.Mode, slots, slot) {
			return NewRejection(ReasonQuestionLocked, "question %d is not accessible", questionID)
		}
		question, ok := test.QuestionByID(questionID)
		if !ok {
			return ErrQuestionNotFound
		}

		score, err := scoring.Score(question, req.Answer)
		if err != nil {
			var ae *scoring.AnswerError
			if errors.As(err, &ae) {
				return answerValidationErrors(ae)
			}
			return err
		}

		slot.Answer = req.Answer
		slot.Score = score
		if req.Answer == "" {
			slot.AnsweredAt = nil
		} else {
			slot.AnsweredAt = &now
		}
		if err := tx.AnswerSlot().Update(ctx, slot); err != nil {
			return fmt.Errorf("failed to save answer: %w", err)
		}

		view = newSlotView(slot, question)
		return nil
	})
	if err != nil {
		logFailure(s.logger, "Answer not saved", err, "attempt_id", attemptID, "question_id", questionID, "user_id", userID)
		return nil, err
	}

	s.logger.Info("Answer saved", "attempt_id", attemptID, "question_id", questionID, "score", view.Score)
	return view, nil
}

// Evaluate sets a manual override score on a finished attempt.
func (s *attemptService) Evaluate(ctx context.Context, attemptID uint, req *OverrideScoreRequest, teacherID string) (*AttemptResponse, error) {
	s.logger.Info("Evaluating test attempt",
		"attempt_id", attemptID,
		"teacher_id", teacherID,
		"score", req.Score)

	var (
		attempt *models.TestAttempt
		test    *models.Test
		slots   []*models.AnswerSlot
		now     time.Time
	)
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		var err error
		attempt, err = loadAttempt(ctx, tx, attemptID, true)
		if err != nil {
			return err
		}
		test, err = loadTest(ctx, tx, attempt.TestID)
		if err != nil {
			return err
		}
		if err := requireOwner(ctx, tx, test.CourseID, teacherID, "attempt", attemptID, "evaluate"); err != nil {
			return err
		}

		now = s.now()
		if !attempt.IsFinished(test, now) {
			return NewRejection(ReasonAttemptOpen, "attempt %d is still open", attemptID)
		}
		if errs := s.validator.GetBusinessValidator().ValidateOverride(req, test); len(errs) > 0 {
			return errs
		}

		score := scoring.Round(req.Score)
		attempt.OverrideScore = &score
		attempt.EvaluatedBy = &teacherID
		if err := tx.Attempt().Update(ctx, attempt); err != nil {
			return fmt.Errorf("failed to save override score: %w", err)
		}

		slots, err = tx.AnswerSlot().ListByAttempt(ctx, attemptID)
		if err != nil {
			return fmt.Errorf("failed to list answer slots: %w", err)
		}
		return nil
	})
	if err != nil {
		logFailure(s.logger, "Test attempt not evaluated", err, "attempt_id", attemptID, "teacher_id", teacherID)
		return nil, err
	}

	s.logger.Info("Test attempt evaluated", "attempt_id", attemptID, "score", *attempt.OverrideScore)
	return s.buildResponse(attempt, test, derefSlots(slots), now), nil
}

// ===== READ-ONLY ACCESSORS =====

func (s *attemptService) GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, test, slots, err := s.loadForRead(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	return s.buildResponse(attempt, test, derefSlots(slots), s.now()), nil
}

func (s *attemptService) Score(ctx context.Context, attemptID uint, userID string) (*ScoreResponse, error) {
	attempt, test, slots, err := s.loadForRead(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &ScoreResponse{
		AttemptID:  attemptID,
		IsFinished: attempt.IsFinished(test, now),
		Score:      attemptScore(attempt, test, derefSlots(slots), now),
	}, nil
}

func (s *attemptService) IsFinished(ctx context.Context, attemptID uint) (bool, error) {
	attempt, err := loadAttempt(ctx, s.repo, attemptID, false)
	if err != nil {
		return false, err
	}
	test, err := loadTest(ctx, s.repo, attempt.TestID)
	if err != nil {
		return false, err
	}
	return attempt.IsFinished(test, s.now()), nil
}

func (s *attemptService) AccessibleQuestions(ctx context.Context, attemptID uint, userID string) (*AccessibleResponse, error) {
	attempt, test, slots, err := s.loadForRead(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}

	resp := &AccessibleResponse{AttemptID: attemptID, Mode: test.Mode, Slots: []SlotView{}}
	if attempt.UserID != userID || attempt.IsFinished(test, s.now()) {
		return resp, nil
	}
	for _, slot := range slots {
		if !slotAccessible(test.Mode, slots, slot) {
			continue
		}
		question, ok := test.QuestionByID(slot.QuestionID)
		if !ok {
			return nil, ErrQuestionNotFound
		}
		resp.Slots = append(resp.Slots, *newSlotView(slot, question))
	}
	return resp, nil
}

func (s *attemptService) GetQuestion(ctx context.Context, attemptID, questionID uint, userID string) (*SlotView, error) {
	attempt, test, slots, err := s.loadForRead(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	slot := findSlot(slots, questionID)
	if slot == nil {
		return nil, ErrQuestionNotFound
	}
	question, ok := test.QuestionByID(questionID)
	if !ok {
		return nil, ErrQuestionNotFound
	}

	// the owner of an open attempt sees only what navigation allows;
	// finished attempts are open for review
	if attempt.UserID == userID && !attempt.IsFinished(test, s.now()) && !slotAccessible(test.Mode, slots, slot) {
		return nil, NewRejection(ReasonQuestionLocked, "question %d is not accessible", questionID)
	}
	return newSlotView(slot, question), nil
}

// List returns the user's attempts at a test ordered by ID.
func (s *attemptService) List(ctx context.Context, testID uint, userID string) ([]*AttemptResponse, error) {
	test, err := loadTest(ctx, s.repo, testID)
	if err != nil {
		return nil, err
	}
	if _, err := getEnrollment(ctx, s.repo, test.CourseID, userID); err != nil {
		return nil, err
	}

	attempts, err := s.repo.Attempt().ListByTestAndUser(ctx, testID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	now := s.now()
	responses := make([]*AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		slots, err := s.repo.AnswerSlot().ListByAttempt(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list answer slots: %w", err)
		}
		resp := s.buildResponse(attempt, test, derefSlots(slots), now)
		// listings carry state only
		resp.Slots = nil
		responses = append(responses, resp)
	}
	return responses, nil
}

// BestScore is the user's best attempt score. Once the test's end has
// passed every attempt counts and no attempt means 0; until then, the end
// instant included, only finished attempts count and none means unscored.
func (s *attemptService) BestScore(ctx context.Context, testID uint, userID string) (*BestScoreResponse, error) {
	test, err := loadTest(ctx, s.repo, testID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.repo.Attempt().ListByTestAndUser(ctx, testID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	now := s.now()
	resp := &BestScoreResponse{TestID: testID, UserID: userID}
	if now.After(test.EndsAt) {
		zero := 0.0
		resp.Score = &zero
	}
	for _, attempt := range attempts {
		slots, err := s.repo.AnswerSlot().ListByAttempt(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list answer slots: %w", err)
		}
		score := attemptScore(attempt, test, derefSlots(slots), now)
		if score != nil && (resp.Score == nil || *score > *resp.Score) {
			resp.Score = score
		}
	}
	return resp, nil
}

// ===== HELPERS =====

// loadForRead returns an attempt visible to userID: the owner or a teacher
// of the course.
func (s *attemptService) loadForRead(ctx context.Context, attemptID uint, userID string) (*models.TestAttempt, *models.Test, []*models.AnswerSlot, error) {
	attempt, err := loadAttempt(ctx, s.repo, attemptID, false)
	if err != nil {
		return nil, nil, nil, err
	}
	test, err := loadTest(ctx, s.repo, attempt.TestID)
	if err != nil {
		return nil, nil, nil, err
	}
	if attempt.UserID != userID {
		if err := requireOwner(ctx, s.repo, test.CourseID, userID, "attempt", attemptID, "read"); err != nil {
			return nil, nil, nil, err
		}
	}
	slots, err := s.repo.AnswerSlot().ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to list answer slots: %w", err)
	}
	return attempt, test, slots, nil
}

func (s *attemptService) buildResponse(attempt *models.TestAttempt, test *models.Test, slots []models.AnswerSlot, now time.Time) *AttemptResponse {
	attempt.Slots = slots
	return &AttemptResponse{
		TestAttempt: attempt,
		IsFinished:  attempt.IsFinished(test, now),
		CloseTime:   attempt.CloseTime(test),
		Score:       attemptScore(attempt, test, slots, now),
	}
}

func (s *attemptService) publishCompleted(ctx context.Context, attempt *models.TestAttempt, score *float64) {
	if s.publisher == nil {
		return
	}
	event := events.NewEvent(events.EventAttemptCompleted)
	event.AttemptID = attempt.ID
	event.UserID = attempt.UserID
	event.Data = map[string]interface{}{"test_id": attempt.TestID}
	if score != nil {
		event.Data["score"] = *score
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish attempt event", "attempt_id", attempt.ID, "error", err)
	}
}

// attemptScore is nil while the attempt is open, the override when one is
// set, and otherwise outer_mark scaled by the earned share of the maximum.
func attemptScore(attempt *models.TestAttempt, test *models.Test, slots []models.AnswerSlot, now time.Time) *float64 {
	if !attempt.IsFinished(test, now) {
		return nil
	}
	if attempt.OverrideScore != nil {
		score := *attempt.OverrideScore
		return &score
	}
	var earned float64
	for _, slot := range slots {
		if slot.Score != nil {
			earned += *slot.Score
		}
	}
	score := scoring.AttemptScore(test.OuterMark, earned, test.MaxScore())
	return &score
}

// slotAccessible applies the navigation rule. In sequential mode only the
// first unanswered slot by position is accessible.
func slotAccessible(mode models.NavigationMode, slots []*models.AnswerSlot, slot *models.AnswerSlot) bool {
	if mode != models.NavigationSequential {
		return true
	}
	for _, s := range slots {
		if !s.IsAnswered() {
			return s.ID == slot.ID
		}
	}
	return false
}

func findSlot(slots []*models.AnswerSlot, questionID uint) *models.AnswerSlot {
	for _, slot := range slots {
		if slot.QuestionID == questionID {
			return slot
		}
	}
	return nil
}

func newSlotView(slot *models.AnswerSlot, question *models.Question) *SlotView {
	return &SlotView{
		SlotID:   slot.ID,
		Position: slot.Position,
		Question: question,
		Answer:   slot.Answer,
		Score:    slot.Score,
	}
}

func derefSlots(slots []*models.AnswerSlot) []models.AnswerSlot {
	out := make([]models.AnswerSlot, len(slots))
	for i, slot := range slots {
		out[i] = *slot
	}
	return out
}

func answerValidationErrors(ae *scoring.AnswerError) ValidationErrors {
	return ValidationErrors{{
		Field:   "answer",
		Message: ae.Message,
		Value:   ae.Value,
		Rule:    string(ae.Kind),
	}}
}
