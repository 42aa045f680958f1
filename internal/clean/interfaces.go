package clean

import (
	"context"
	"time"
)

// RawDataStore fetches raw payload documents and flips their status.
type RawDataStore interface {
	GetRawData(ctx context.Context, id string) (RawDataRecord, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, message string, at time.Time) error
}

// EntityStore deduplicates and upserts normalized records, returning
// natural-key to internal-id maps for foreign-key resolution.
type EntityStore interface {
	UpsertUsers(ctx context.Context, users []User) (map[string]int64, error)
	UpsertPosts(ctx context.Context, posts []Post, userIDs map[string]int64) (map[string]int64, error)
	GetPostByPlatformID(ctx context.Context, platformID string) (StoredPost, error)
	UpsertComments(ctx context.Context, comments []Comment, post StoredPost, userIDs map[string]int64) (map[string]int64, error)
	InsertUserStats(ctx context.Context, stats UserStats, userID int64) error
}

// Publisher pushes outbound events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
