package task

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
	"github.com/sinofeed/weibo-cleaner/internal/normalize"
)

// commentPostIDKeys are the metadata fields checked, in order, for the
// platform id of the post a comment batch belongs to.
var commentPostIDKeys = []string{"statusId", "weiboId", "postId", "mid"}

// CommentsTask cleans comment-thread payloads: it flattens the reply tree,
// persists comment authors (including authors of nested replies) and then
// the comments, attached to a post that must already exist in the store.
type CommentsTask struct {
	deps Deps
}

// Name implements Task.
func (t *CommentsTask) Name() string { return "comments" }

// Clean implements Task.
func (t *CommentsTask) Clean(ctx context.Context, in Input) (clean.TaskResult, error) {
	postPlatformID := firstMetadataString(in.Event.Metadata, commentPostIDKeys)
	if postPlatformID == "" {
		return clean.TaskResult{}, fmt.Errorf("comment batch carries no status id in metadata (checked %v)", commentPostIDKeys)
	}

	payload, ok := normalize.Payload(in.Raw.RawContent)
	if !ok {
		return clean.TaskResult{Note: "payload is not parseable"}, nil
	}
	entries := normalize.CommentEntries(payload)
	if len(entries) == 0 {
		return clean.TaskResult{Note: "payload contained no comments"}, nil
	}

	// Comments cannot be attached to an unknown post.
	post, err := t.deps.Store.GetPostByPlatformID(ctx, postPlatformID)
	if err != nil {
		return clean.TaskResult{}, err
	}

	users := normalize.CommentAuthors(entries)
	comments := normalize.Comments(entries, postPlatformID)

	userIDs, err := t.deps.Store.UpsertUsers(ctx, users)
	if err != nil {
		return clean.TaskResult{}, fmt.Errorf("persist comment authors: %w", err)
	}
	commentIDs, err := t.deps.Store.UpsertComments(ctx, comments, post, userIDs)
	if err != nil {
		return clean.TaskResult{}, fmt.Errorf("persist comments: %w", err)
	}

	return clean.TaskResult{
		CommentIDs: mapKeys(commentIDs),
		UserIDs:    mapKeys(userIDs),
		Total:      len(comments),
		Success:    len(commentIDs),
		Skipped:    len(comments) - len(commentIDs),
	}, nil
}

func firstMetadataString(metadata map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := metadata[k]; ok {
			if s := cast.ToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}
