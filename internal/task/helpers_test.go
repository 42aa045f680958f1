package task

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
	"github.com/sinofeed/weibo-cleaner/internal/publisher/memory"
)

// fakeEntityStore records every persistence call and resolves ids
// sequentially. Posts and comments whose author is absent from the id map
// are dropped, mirroring the author gate of the real store.
type fakeEntityStore struct {
	nextID int64

	users    []clean.User
	posts    []clean.Post
	comments []clean.Comment
	stats    []clean.UserStats
	statsFor []int64

	postByPlatformID map[string]clean.StoredPost

	usersErr    error
	postsErr    error
	commentsErr error
	getPostErr  error
	statsErr    error
}

func newFakeEntityStore() *fakeEntityStore {
	return &fakeEntityStore{postByPlatformID: map[string]clean.StoredPost{}}
}

func (s *fakeEntityStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeEntityStore) UpsertUsers(_ context.Context, users []clean.User) (map[string]int64, error) {
	if s.usersErr != nil {
		return nil, s.usersErr
	}
	ids := make(map[string]int64, len(users))
	for _, u := range users {
		s.users = append(s.users, u)
		if _, seen := ids[u.PlatformUserID]; !seen {
			ids[u.PlatformUserID] = s.id()
		}
	}
	return ids, nil
}

func (s *fakeEntityStore) UpsertPosts(_ context.Context, posts []clean.Post, userIDs map[string]int64) (map[string]int64, error) {
	if s.postsErr != nil {
		return nil, s.postsErr
	}
	ids := make(map[string]int64, len(posts))
	for _, p := range posts {
		if _, ok := userIDs[p.AuthorPlatformID]; !ok {
			continue
		}
		s.posts = append(s.posts, p)
		ids[p.PlatformPostID] = s.id()
	}
	return ids, nil
}

func (s *fakeEntityStore) GetPostByPlatformID(_ context.Context, platformID string) (clean.StoredPost, error) {
	if s.getPostErr != nil {
		return clean.StoredPost{}, s.getPostErr
	}
	post, ok := s.postByPlatformID[platformID]
	if !ok {
		return clean.StoredPost{}, clean.ErrPostNotFound
	}
	return post, nil
}

func (s *fakeEntityStore) UpsertComments(_ context.Context, comments []clean.Comment, _ clean.StoredPost, userIDs map[string]int64) (map[string]int64, error) {
	if s.commentsErr != nil {
		return nil, s.commentsErr
	}
	ids := make(map[string]int64, len(comments))
	for _, c := range comments {
		if _, ok := userIDs[c.AuthorPlatformID]; !ok {
			continue
		}
		s.comments = append(s.comments, c)
		ids[c.PlatformCommentID] = s.id()
	}
	return ids, nil
}

func (s *fakeEntityStore) InsertUserStats(_ context.Context, stats clean.UserStats, userID int64) error {
	if s.statsErr != nil {
		return s.statsErr
	}
	s.stats = append(s.stats, stats)
	s.statsFor = append(s.statsFor, userID)
	return nil
}

// fixedClock pins Now to a known instant.
type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var taskStart = time.Date(2025, 8, 29, 12, 0, 0, 0, time.UTC)

func newTestDeps(store *fakeEntityStore, pub *memory.Publisher) Deps {
	return Deps{
		Store:     store,
		Publisher: pub,
		Topics:    Topics{DetailCrawl: "detail-crawl-topic", SearchCrawl: "search-crawl-topic"},
		Clock:     fixedClock{now: taskStart},
		Logger:    zap.NewNop(),
	}
}
