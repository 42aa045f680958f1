package task

import (
	"context"
	"fmt"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
	"github.com/sinofeed/weibo-cleaner/internal/normalize"
)

// ProfileTask cleans user-profile payloads: it upserts the embedded user
// and appends a point-in-time stats snapshot tagged with the raw source
// type as its provenance label.
type ProfileTask struct {
	deps Deps
}

// Name implements Task.
func (t *ProfileTask) Name() string { return "creator-profile" }

// Clean implements Task.
func (t *ProfileTask) Clean(ctx context.Context, in Input) (clean.TaskResult, error) {
	payload, ok := normalize.Payload(in.Raw.RawContent)
	if !ok {
		return clean.TaskResult{Note: "payload is not parseable"}, nil
	}
	user := normalize.ProfileUser(payload)
	if user == nil {
		return clean.TaskResult{Note: "no user in profile payload"}, nil
	}

	userIDs, err := t.deps.Store.UpsertUsers(ctx, []clean.User{*user})
	if err != nil {
		return clean.TaskResult{}, fmt.Errorf("persist profile user: %w", err)
	}

	if stats := normalize.ProfileSnapshot(payload, string(in.Raw.SourceType), t.deps.Clock.Now()); stats != nil {
		userID, ok := userIDs[user.PlatformUserID]
		if ok {
			if err := t.deps.Store.InsertUserStats(ctx, *stats, userID); err != nil {
				return clean.TaskResult{}, fmt.Errorf("append user stats snapshot: %w", err)
			}
		}
	}

	return clean.TaskResult{
		UserIDs: mapKeys(userIDs),
		Total:   1,
		Success: len(userIDs),
	}, nil
}
