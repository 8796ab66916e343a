package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// IDKey is the entry key for an entity cached by primary key; the helper
// prefix tells entity types apart.
func IDKey(id uint) string {
	return fmt.Sprintf("id:%d", id)
}

// InvalidateTestCache drops the cached test and its questions.
func InvalidateTestCache(ctx context.Context, cm *CacheManager, testID uint) {
	SafeDelete(ctx, cm.Test, IDKey(testID))
}
