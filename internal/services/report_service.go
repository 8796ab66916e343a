package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

const scoresSheet = "Scores"

type reportService struct {
	repo   repositories.Repository
	users  repositories.UserRepository
	logger *slog.Logger
	now    Clock
}

// NewReportService builds the export service. users may be nil, in which
// case rows carry user IDs only.
func NewReportService(repo repositories.Repository, users repositories.UserRepository, logger *slog.Logger) ReportService {
	return &reportService{
		repo:   repo,
		users:  users,
		logger: logger,
		now:    systemClock,
	}
}

func (s *reportService) ExportTestScores(ctx context.Context, testID uint, userID string) ([]byte, error) {
	s.logger.Info("Exporting test scores", "test_id", testID, "user_id", userID)

	test, err := loadTest(ctx, s.repo, testID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(ctx, s.repo, test.CourseID, userID, "test", testID, "export"); err != nil {
		return nil, err
	}

	attempts, err := s.repo.Attempt().ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", scoresSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(scoresSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream writer: %w", err)
	}

	headers := []interface{}{"Attempt", "User ID", "User", "Started", "Closes", "Finished", "Score", "Override"}
	if err := sw.SetRow("A1", headers); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	now := s.now()
	names := map[string]string{}
	for i, attempt := range attempts {
		slots, err := s.repo.AnswerSlot().ListByAttempt(ctx, attempt.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list answer slots: %w", err)
		}

		finished := attempt.IsFinished(test, now)
		var score interface{} = ""
		if v := attemptScore(attempt, test, derefSlots(slots), now); v != nil {
			score = *v
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			attempt.ID,
			attempt.UserID,
			sanitizeForExcel(s.userName(ctx, names, attempt.UserID)),
			attempt.StartedAt.Format(time.RFC3339),
			attempt.CloseTime(test).Format(time.RFC3339),
			finished,
			score,
			attempt.OverrideScore != nil,
		}
		if err := sw.SetRow(cell, row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush sheet: %w", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	s.logger.Info("Test scores exported", "test_id", testID, "attempts", len(attempts))
	return buf.Bytes(), nil
}

// userName resolves a display name once per user and falls back to the ID.
func (s *reportService) userName(ctx context.Context, cache map[string]string, userID string) string {
	if name, ok := cache[userID]; ok {
		return name
	}
	name := userID
	if s.users != nil {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			s.logger.Warn("Failed to resolve user name", "user_id", userID, "error", err)
		} else if user.FullName != "" {
			name = user.FullName
		}
	}
	cache[userID] = name
	return name
}

// sanitizeForExcel keeps user-controlled text from being read as a formula.
func sanitizeForExcel(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
