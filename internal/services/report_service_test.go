package services

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/grading-service/internal/models"
)

type stubUsers map[string]*models.User

func (s stubUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, errors.New("user not found")
}

func TestExportTestScores(t *testing.T) {
	env := newTestEnv(t)
	test := env.createOpenTest(t, nil)

	finished, err := env.attempts.Start(env.ctx, test.ID, studentID)
	require.NoError(t, err)
	_, err = env.attempts.Answer(env.ctx, finished.ID, test.Questions[1].ID, answer("1"), studentID)
	require.NoError(t, err)
	_, err = env.attempts.Complete(env.ctx, finished.ID, studentID)
	require.NoError(t, err)
	_, err = env.attempts.Start(env.ctx, test.ID, otherID)
	require.NoError(t, err)

	reports := NewReportService(env.repo, stubUsers{
		studentID: {ID: studentID, FullName: "=Ada Lovelace"},
	}, env.logger).(*reportService)
	reports.now = env.clock.Now

	data, err := reports.ExportTestScores(env.ctx, test.ID, teacherID)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(scoresSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Attempt", "User ID", "User", "Started", "Closes", "Finished", "Score", "Override"}, rows[0])

	assert.Equal(t, studentID, rows[1][1])
	assert.Equal(t, "'=Ada Lovelace", rows[1][2])
	assert.Equal(t, "4", rows[1][6])

	// unknown users fall back to their ID and open attempts have no score
	assert.Equal(t, otherID, rows[2][1])
	assert.Equal(t, otherID, rows[2][2])
	if len(rows[2]) > 6 {
		assert.Empty(t, rows[2][6])
	}
}

func TestExportTestScores_OwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	test := env.createOpenTest(t, nil)
	reports := NewReportService(env.repo, nil, env.logger)

	_, err := reports.ExportTestScores(env.ctx, test.ID, studentID)
	assert.True(t, IsPermissionError(err), "got %v", err)

	_, err = reports.ExportTestScores(env.ctx, 999, teacherID)
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestSanitizeForExcel(t *testing.T) {
	assert.Equal(t, "'=SUM(A1)", sanitizeForExcel("=SUM(A1)"))
	assert.Equal(t, "'+1", sanitizeForExcel("+1"))
	assert.Equal(t, "Ada", sanitizeForExcel("Ada"))
	assert.Equal(t, "", sanitizeForExcel(""))
}
