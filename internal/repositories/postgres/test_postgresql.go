package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/SAP-F-2025/grading-service/internal/cache"
	"github.com/SAP-F-2025/grading-service/internal/models"
	"github.com/SAP-F-2025/grading-service/internal/repositories"
)

type TestPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewTestPostgreSQL(db *gorm.DB, cm *cache.CacheManager) repositories.TestRepository {
	return &TestPostgreSQL{db: db, cacheManager: cm}
}

// cachedTest carries the answer keys that models.Question hides from JSON.
type cachedTest struct {
	Test  *models.Test    `json:"test"`
	Truth map[uint]string `json:"truth"`
}

func (t *TestPostgreSQL) Create(ctx context.Context, test *models.Test) error {
	return translateError(t.db.WithContext(ctx).Create(test).Error, "failed to create test")
}

func (t *TestPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Test, error) {
	var entry cachedTest
	err := t.cacheManager.Test.CacheOrExecute(ctx, cache.IDKey(id), &entry, cache.TestCacheConfig.TTL, func() (interface{}, error) {
		var test models.Test
		err := t.db.WithContext(ctx).
			Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
			First(&test, id).Error
		if err != nil {
			return nil, translateError(err, "failed to get test")
		}
		truth := make(map[uint]string, len(test.Questions))
		for _, q := range test.Questions {
			truth[q.ID] = q.TrueAnswer
		}
		return &cachedTest{Test: &test, Truth: truth}, nil
	})
	if err != nil {
		return nil, err
	}

	for i := range entry.Test.Questions {
		entry.Test.Questions[i].TrueAnswer = entry.Truth[entry.Test.Questions[i].ID]
	}
	return entry.Test, nil
}

func (t *TestPostgreSQL) Delete(ctx context.Context, id uint) error {
	result := t.db.WithContext(ctx).Delete(&models.Test{}, id)
	if err := requireAffected(result, "failed to delete test"); err != nil {
		return err
	}
	cache.InvalidateTestCache(ctx, t.cacheManager, id)
	return nil
}
