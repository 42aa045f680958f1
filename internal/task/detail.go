package task

import (
	"context"
	"fmt"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
	"github.com/sinofeed/weibo-cleaner/internal/normalize"
)

// DetailTask cleans status-detail payloads: the primary status and, when a
// repost is embedded, the repost as a second post.
type DetailTask struct {
	deps Deps
}

// Name implements Task.
func (t *DetailTask) Name() string { return "note-detail" }

// Clean implements Task.
func (t *DetailTask) Clean(ctx context.Context, in Input) (clean.TaskResult, error) {
	payload, ok := normalize.Payload(in.Raw.RawContent)
	if !ok {
		return clean.TaskResult{Note: "payload is not parseable"}, nil
	}
	statusRaw := normalize.DetailStatus(payload)

	var (
		users []clean.User
		posts []clean.Post
	)
	if primary := normalize.Status(statusRaw); primary != nil {
		posts = append(posts, *primary)
		if author := normalize.AuthorOf(statusRaw); author != nil {
			users = append(users, *author)
		}
	}
	if repostRaw := normalize.Repost(statusRaw); repostRaw != nil {
		if repost := normalize.Status(repostRaw); repost != nil {
			posts = append(posts, *repost)
			if author := normalize.AuthorOf(repostRaw); author != nil {
				users = append(users, *author)
			}
		}
	}
	if len(posts) == 0 {
		return clean.TaskResult{Note: "no status in detail payload"}, nil
	}

	userIDs, err := t.deps.Store.UpsertUsers(ctx, users)
	if err != nil {
		return clean.TaskResult{}, fmt.Errorf("persist users: %w", err)
	}
	postIDs, err := t.deps.Store.UpsertPosts(ctx, posts, userIDs)
	if err != nil {
		return clean.TaskResult{}, fmt.Errorf("persist posts: %w", err)
	}

	return clean.TaskResult{
		PostIDs: mapKeys(postIDs),
		UserIDs: mapKeys(userIDs),
		Total:   len(posts),
		Success: len(postIDs),
		Skipped: len(posts) - len(postIDs),
	}, nil
}
