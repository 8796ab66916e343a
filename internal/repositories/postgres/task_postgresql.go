package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/grading-service/internal/cache"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

type TaskPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewTaskPostgreSQL(db *gorm.DB, cm *cache.CacheManager) repositories.TaskRepository {
	return &TaskPostgreSQL{db: db, cacheManager: cm}
}

func (t *TaskPostgreSQL) Create(ctx context.Context, task *models.Task) error {
	return translateError(t.db.WithContext(ctx).Create(task).Error, "failed to create task")
}

func (t *TaskPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Task, error) {
	var task models.Task
	err := t.cacheManager.Task.CacheOrExecute(ctx, cache.IDKey(id), &task, cache.TaskCacheConfig.TTL, func() (interface{}, error) {
		var dbTask models.Task
		err := t.db.WithContext(ctx).
			Preload("Cases", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
			First(&dbTask, id).Error
		if err != nil {
			return nil, translateError(err, "failed to get task")
		}
		return &dbTask, nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

type SubmissionPostgreSQL struct {
	db *gorm.DB
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{db: db}
}

func (s *SubmissionPostgreSQL) Create(ctx context.Context, submission *models.TaskSubmission) error {
	err := s.db.WithContext(ctx).Omit("Task", "Mark", "Verdicts").Create(submission).Error
	return translateError(err, "failed to create submission")
}

func (s *SubmissionPostgreSQL) GetByID(ctx context.Context, id uint) (*models.TaskSubmission, error) {
	var submission models.TaskSubmission
	err := s.db.WithContext(ctx).
		Preload("Mark").
		Preload("Verdicts", func(db *gorm.DB) *gorm.DB { return db.Order("case_index ASC") }).
		First(&submission, id).Error
	if err != nil {
		return nil, translateError(err, "failed to get submission")
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByIDForUpdate(ctx context.Context, id uint) (*models.TaskSubmission, error) {
	var submission models.TaskSubmission
	if err := forUpdate(s.db.WithContext(ctx)).First(&submission, id).Error; err != nil {
		return nil, translateError(err, "failed to lock submission")
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByTaskAndUserForUpdate(ctx context.Context, taskID uint, userID string) (*models.TaskSubmission, error) {
	var submission models.TaskSubmission
	err := forUpdate(s.db.WithContext(ctx)).
		Where("task_id = ? AND user_id = ?", taskID, userID).
		First(&submission).Error
	if err != nil {
		return nil, translateError(err, "failed to lock submission")
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) Delete(ctx context.Context, id uint) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("submission_id = ?", id).Delete(&models.CaseVerdict{}).Error; err != nil {
		return translateError(err, "failed to delete verdicts")
	}
	if err := db.Where("submission_id = ?", id).Delete(&models.SubmissionMark{}).Error; err != nil {
		return translateError(err, "failed to delete mark")
	}
	return requireAffected(db.Delete(&models.TaskSubmission{}, id), "failed to delete submission")
}

func (s *SubmissionPostgreSQL) SetRunning(ctx context.Context, id uint, running bool) error {
	result := s.db.WithContext(ctx).Model(&models.TaskSubmission{}).
		Where("id = ?", id).
		Update("is_running", running)
	return requireAffected(result, "failed to update submission")
}

func (s *SubmissionPostgreSQL) ListRunning(ctx context.Context) ([]*models.TaskSubmission, error) {
	var submissions []*models.TaskSubmission
	err := s.db.WithContext(ctx).
		Where("is_running = ?", true).
		Order("submitted_at ASC").
		Find(&submissions).Error
	if err != nil {
		return nil, translateError(err, "failed to list running submissions")
	}
	return submissions, nil
}

func (s *SubmissionPostgreSQL) GetMark(ctx context.Context, submissionID uint) (*models.SubmissionMark, error) {
	var mark models.SubmissionMark
	if err := s.db.WithContext(ctx).Where("submission_id = ?", submissionID).First(&mark).Error; err != nil {
		return nil, translateError(err, "failed to get mark")
	}
	return &mark, nil
}

// SaveMark inserts the mark or replaces the existing one for the submission.
func (s *SubmissionPostgreSQL) SaveMark(ctx context.Context, mark *models.SubmissionMark) error {
	if mark.EvaluatedAt.IsZero() {
		mark.EvaluatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "submission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"teacher_id", "mark", "review", "evaluated_at"}),
	}).Create(mark).Error
	return translateError(err, "failed to save mark")
}

type VerdictPostgreSQL struct {
	db *gorm.DB
}

func NewVerdictPostgreSQL(db *gorm.DB) repositories.VerdictRepository {
	return &VerdictPostgreSQL{db: db}
}

func (v *VerdictPostgreSQL) ReplaceForSubmission(ctx context.Context, submissionID uint, verdicts []*models.CaseVerdict) error {
	db := v.db.WithContext(ctx)
	if err := db.Where("submission_id = ?", submissionID).Delete(&models.CaseVerdict{}).Error; err != nil {
		return translateError(err, "failed to clear verdicts")
	}
	if len(verdicts) == 0 {
		return nil
	}
	for _, verdict := range verdicts {
		verdict.SubmissionID = submissionID
	}
	return translateError(db.CreateInBatches(verdicts, 100).Error, "failed to create verdicts")
}

func (v *VerdictPostgreSQL) ListBySubmission(ctx context.Context, submissionID uint) ([]*models.CaseVerdict, error) {
	var verdicts []*models.CaseVerdict
	err := v.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("case_index ASC").
		Find(&verdicts).Error
	if err != nil {
		return nil, translateError(err, "failed to list verdicts")
	}
	return verdicts, nil
}

type EnrollmentPostgreSQL struct {
	db *gorm.DB
}

func NewEnrollmentPostgreSQL(db *gorm.DB) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{db: db}
}

func (e *EnrollmentPostgreSQL) Create(ctx context.Context, enrollment *models.Enrollment) error {
	return translateError(e.db.WithContext(ctx).Create(enrollment).Error, "failed to create enrollment")
}

func (e *EnrollmentPostgreSQL) Get(ctx context.Context, courseID uint, userID string) (*models.Enrollment, error) {
	return e.get(e.db.WithContext(ctx), courseID, userID)
}

func (e *EnrollmentPostgreSQL) GetForUpdate(ctx context.Context, courseID uint, userID string) (*models.Enrollment, error) {
	return e.get(forUpdate(e.db.WithContext(ctx)), courseID, userID)
}

func (e *EnrollmentPostgreSQL) get(db *gorm.DB, courseID uint, userID string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := db.Where("course_id = ? AND user_id = ?", courseID, userID).First(&enrollment).Error
	if err != nil {
		return nil, translateError(err, "failed to get enrollment")
	}
	return &enrollment, nil
}
