package task

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
	"github.com/sinofeed/weibo-cleaner/internal/normalize"
)

// statusLinkRE matches a direct status link path: /{uid}/{mid}.
var statusLinkRE = regexp.MustCompile(`^/(\d+)/([A-Za-z0-9]+)$`)

// SearchTask cleans keyword-search timeline payloads. Beyond persisting
// users and posts it emits a detail-crawl request when the source URL is a
// direct status link, and runs the pagination continuation decision.
type SearchTask struct {
	deps Deps
}

// Name implements Task.
func (t *SearchTask) Name() string { return "keyword-search" }

// Clean implements Task.
func (t *SearchTask) Clean(ctx context.Context, in Input) (clean.TaskResult, error) {
	payload, ok := normalize.Payload(in.Raw.RawContent)
	if !ok {
		return clean.TaskResult{Note: "payload is not parseable"}, nil
	}
	statuses := normalize.Timeline(payload)
	if len(statuses) == 0 {
		return clean.TaskResult{Note: "timeline contained no statuses"}, nil
	}

	var (
		users        []clean.User
		posts        []clean.Post
		minCreatedAt *time.Time
	)
	trackMin := func(ts *time.Time) {
		if ts != nil && (minCreatedAt == nil || ts.Before(*minCreatedAt)) {
			minCreatedAt = ts
		}
	}
	for _, raw := range statuses {
		post := normalize.Status(raw)
		if post == nil {
			continue
		}
		posts = append(posts, *post)
		trackMin(post.PublishedAt)
		if author := normalize.AuthorOf(raw); author != nil {
			users = append(users, *author)
		}
		if repost := normalize.Repost(raw); repost != nil {
			if rp := normalize.Status(repost); rp != nil {
				trackMin(rp.PublishedAt)
			}
			if author := normalize.AuthorOf(repost); author != nil {
				users = append(users, *author)
			}
		}
	}

	userIDs, err := t.deps.Store.UpsertUsers(ctx, users)
	if err != nil {
		return clean.TaskResult{}, fmt.Errorf("persist users: %w", err)
	}
	// Posts whose author failed to persist are excluded by the store; that
	// is the data-integrity guard, not an error.
	postIDs, err := t.deps.Store.UpsertPosts(ctx, posts, userIDs)
	if err != nil {
		return clean.TaskResult{}, fmt.Errorf("persist posts: %w", err)
	}

	if statusID := directStatusLink(in.Raw.SourceURL); statusID != "" {
		if err := t.deps.publish(ctx, t.deps.Topics.DetailCrawl, "detail-crawl",
			clean.DetailCrawlEvent{StatusID: statusID},
		); err != nil {
			return clean.TaskResult{}, fmt.Errorf("publish detail crawl request: %w", err)
		}
	}

	if err := t.continueSearch(ctx, in, minCreatedAt); err != nil {
		return clean.TaskResult{}, err
	}

	return clean.TaskResult{
		PostIDs: mapKeys(postIDs),
		UserIDs: mapKeys(userIDs),
		Total:   len(statuses),
		Success: len(postIDs),
		Skipped: len(statuses) - len(postIDs),
	}, nil
}

// continueSearch runs the pagination decision and emits the resulting
// crawl request, carrying the original keyword forward.
func (t *SearchTask) continueSearch(ctx context.Context, in Input, minCreatedAt *time.Time) error {
	cont := decideContinuation(in.Raw.SourceURL, in.StartedAt, minCreatedAt)
	if cont == nil {
		return nil
	}
	keyword := cast.ToString(in.Event.Metadata["keyword"])

	var ev clean.SearchCrawlEvent
	switch cont.kind {
	case continueNextPage:
		ev = clean.SearchCrawlEvent{
			Keyword: keyword,
			Page:    cont.nextPage,
			Reason:  "next-page",
		}
		t.deps.Logger.Info("requesting next search page",
			zap.Int("page", cont.nextPage),
			zap.String("keyword", keyword),
		)
	case continueTimeWindow:
		start, end := cont.windowStart, cont.windowEnd
		ev = clean.SearchCrawlEvent{
			Keyword:   keyword,
			StartTime: &start,
			EndTime:   &end,
			Reason:    "time-window",
		}
		t.deps.Logger.Info("requesting time-window re-search",
			zap.Time("window_start", start),
			zap.Time("window_end", end),
			zap.String("keyword", keyword),
		)
	}
	if err := t.deps.publish(ctx, t.deps.Topics.SearchCrawl, "search-crawl", ev); err != nil {
		return fmt.Errorf("publish search continuation: %w", err)
	}
	return nil
}

// directStatusLink extracts the status id when the source URL path encodes
// a /{uid}/{mid} link; otherwise it returns "".
func directStatusLink(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	m := statusLinkRE.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return m[2]
}

func mapKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
