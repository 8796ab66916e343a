package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db *gorm.DB
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{db: db}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, attempt *models.TestAttempt) error {
	return translateError(a.db.WithContext(ctx).Omit("Test", "Slots").Create(attempt).Error, "failed to create attempt")
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, id uint) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := a.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, translateError(err, "failed to get attempt")
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDForUpdate(ctx context.Context, id uint) (*models.TestAttempt, error) {
	var attempt models.TestAttempt
	if err := forUpdate(a.db.WithContext(ctx)).First(&attempt, id).Error; err != nil {
		return nil, translateError(err, "failed to lock attempt")
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) ListByTestAndUser(ctx context.Context, testID uint, userID string) ([]*models.TestAttempt, error) {
	var attempts []*models.TestAttempt
	err := a.db.WithContext(ctx).
		Where("test_id = ? AND user_id = ?", testID, userID).
		Order("id ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, translateError(err, "failed to list attempts")
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) ListByTest(ctx context.Context, testID uint) ([]*models.TestAttempt, error) {
	var attempts []*models.TestAttempt
	err := a.db.WithContext(ctx).
		Where("test_id = ?", testID).
		Order("user_id ASC, id ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, translateError(err, "failed to list attempts")
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, attempt *models.TestAttempt) error {
	result := a.db.WithContext(ctx).Model(attempt).
		Select("ended_at", "override_score", "evaluated_by", "updated_at").
		Updates(attempt)
	return requireAffected(result, "failed to update attempt")
}

type AnswerSlotPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerSlotPostgreSQL(db *gorm.DB) repositories.AnswerSlotRepository {
	return &AnswerSlotPostgreSQL{db: db}
}

func (s *AnswerSlotPostgreSQL) CreateBatch(ctx context.Context, slots []*models.AnswerSlot) error {
	if len(slots) == 0 {
		return nil
	}
	// slots are inserted in position order; batches keep that order
	return translateError(s.db.WithContext(ctx).CreateInBatches(&slots, 100).Error, "failed to create answer slots")
}

func (s *AnswerSlotPostgreSQL) ListByAttempt(ctx context.Context, attemptID uint) ([]*models.AnswerSlot, error) {
	var slots []*models.AnswerSlot
	err := s.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("position ASC").
		Find(&slots).Error
	if err != nil {
		return nil, translateError(err, "failed to list answer slots")
	}
	return slots, nil
}

func (s *AnswerSlotPostgreSQL) Update(ctx context.Context, slot *models.AnswerSlot) error {
	result := s.db.WithContext(ctx).Model(slot).
		Select("answer", "score", "answered_at").
		Updates(slot)
	return requireAffected(result, "failed to update answer slot")
}
