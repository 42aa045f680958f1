package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
)

func newEntityStoreMock(t *testing.T) (*EntityStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewEntityStore(mock)
	require.NoError(t, err)
	return store, mock
}

func TestUpsertUsersLastWriteWins(t *testing.T) {
	t.Parallel()

	store, mock := newEntityStoreMock(t)

	// The same platform user appears twice; only the later row is written.
	users := []clean.User{
		{PlatformUserID: "u1", ScreenName: "stale"},
		{PlatformUserID: "u1", ScreenName: "fresh", FollowersCount: 10},
	}

	mock.ExpectExec("INSERT INTO weibo_users").
		WithArgs("u1", "fresh", false, int64(0), int64(10), int64(0), int64(0), "", "", []byte("null")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id, platform_user_id FROM weibo_users").
		WithArgs([]string{"u1"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "platform_user_id"}).AddRow(int64(11), "u1"))

	ids, err := store.UpsertUsers(context.Background(), users)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"u1": 11}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUsersEmptyBatch(t *testing.T) {
	t.Parallel()

	store, mock := newEntityStoreMock(t)

	ids, err := store.UpsertUsers(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, ids)

	// A batch of key-less users degenerates to the same no-op.
	ids, err = store.UpsertUsers(context.Background(), []clean.User{{ScreenName: "ghost"}})
	require.NoError(t, err)
	require.Empty(t, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPostsAuthorGate(t *testing.T) {
	t.Parallel()

	store, mock := newEntityStoreMock(t)

	publishedAt := time.Unix(1756000000, 0).UTC()
	posts := []clean.Post{
		{PlatformPostID: "9001", AuthorPlatformID: "u1", Text: "kept", Visibility: clean.VisibilityPublic, PublishedAt: &publishedAt},
		{PlatformPostID: "9002", AuthorPlatformID: "ghost", Text: "dropped"},
	}
	userIDs := map[string]int64{"u1": 11}

	mock.ExpectExec("INSERT INTO weibo_posts").
		WithArgs(
			"9001", "", int64(11), "kept",
			int64(0), int64(0), int64(0),
			"public", nil, "", &publishedAt, []byte("null"),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id, platform_post_id FROM weibo_posts").
		WithArgs([]string{"9001"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "platform_post_id"}).AddRow(int64(21), "9001"))

	ids, err := store.UpsertPosts(context.Background(), posts, userIDs)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"9001": 21}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPostsAllAuthorsUnknown(t *testing.T) {
	t.Parallel()

	store, mock := newEntityStoreMock(t)

	ids, err := store.UpsertPosts(context.Background(), []clean.Post{
		{PlatformPostID: "9001", AuthorPlatformID: "ghost"},
	}, map[string]int64{})
	require.NoError(t, err)
	require.Empty(t, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPostsWritesHashtagLinks(t *testing.T) {
	t.Parallel()

	store, mock := newEntityStoreMock(t)

	posts := []clean.Post{{
		PlatformPostID:   "9001",
		AuthorPlatformID: "u1",
		Visibility:       clean.VisibilityPublic,
		Hashtags:         []clean.Hashtag{{TagID: "t1", TagName: "热搜", TagType: "topic"}},
	}}

	mock.ExpectExec("INSERT INTO weibo_posts").
		WithArgs(
			"9001", "", int64(11), "",
			int64(0), int64(0), int64(0),
			"public", nil, "", (*time.Time)(nil), []byte("null"),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id, platform_post_id FROM weibo_posts").
		WithArgs([]string{"9001"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "platform_post_id"}).AddRow(int64(21), "9001"))
	mock.ExpectExec("INSERT INTO weibo_hashtags").
		WithArgs("t1", "热搜", "topic").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id, tag_id FROM weibo_hashtags").
		WithArgs([]string{"t1"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "tag_id"}).AddRow(int64(31), "t1"))
	// Link rows ignore conflicts so reprocessing never duplicates them.
	mock.ExpectExec("INSERT INTO weibo_post_hashtags").
		WithArgs(int64(21), int64(31)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err := store.UpsertPosts(context.Background(), posts, map[string]int64{"u1": 11})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPostByPlatformID(t *testing.T) {
	t.Parallel()

	store, mock := newEntityStoreMock(t)

	mock.ExpectQuery("SELECT id, platform_post_id FROM weibo_posts").
		WithArgs("9001").
		WillReturnRows(pgxmock.NewRows([]string{"id", "platform_post_id"}).AddRow(int64(21), "9001"))

	post, err := store.GetPostByPlatformID(context.Background(), "9001")
	require.NoError(t, err)
	require.Equal(t, clean.StoredPost{ID: 21, PlatformPostID: "9001"}, post)

	mock.ExpectQuery("SELECT id, platform_post_id FROM weibo_posts").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "platform_post_id"}))

	_, err = store.GetPostByPlatformID(context.Background(), "missing")
	require.ErrorIs(t, err, clean.ErrPostNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCommentsRequiresLocatedPost(t *testing.T) {
	t.Parallel()

	store, mock := newEntityStoreMock(t)

	_, err := store.UpsertComments(context.Background(), []clean.Comment{{PlatformCommentID: "c1"}}, clean.StoredPost{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "located post")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCommentsAuthorGateAndNullableParent(t *testing.T) {
	t.Parallel()

	store, mock := newEntityStoreMock(t)

	post := clean.StoredPost{ID: 21, PlatformPostID: "9001"}
	comments := []clean.Comment{
		{PlatformCommentID: "c1", AuthorPlatformID: "u1", RootPlatformID: "c1", Path: "c1", Text: "top"},
		{PlatformCommentID: "c2", AuthorPlatformID: "u1", RootPlatformID: "c1", ReplyCommentID: "c1", Path: "c1.c2", Text: "reply"},
		{PlatformCommentID: "c3", AuthorPlatformID: "ghost", Text: "dropped"},
	}

	mock.ExpectExec("INSERT INTO weibo_comments").
		WithArgs(
			"c1", int64(21), int64(11),
			"c1", "", nil, "c1", int64(0),
			"top", int64(0), (*time.Time)(nil), []byte("null"),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO weibo_comments").
		WithArgs(
			"c2", int64(21), int64(11),
			"c1", "", "c1", "c1.c2", int64(0),
			"reply", int64(0), (*time.Time)(nil), []byte("null"),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT id, platform_comment_id FROM weibo_comments").
		WithArgs([]string{"c1", "c2"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "platform_comment_id"}).
			AddRow(int64(41), "c1").
			AddRow(int64(42), "c2"))

	ids, err := store.UpsertComments(context.Background(), comments, post, map[string]int64{"u1": 11})
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"c1": 41, "c2": 42}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUserStats(t *testing.T) {
	t.Parallel()

	store, mock := newEntityStoreMock(t)

	capturedAt := time.Unix(1756000000, 0).UTC()
	stats := clean.UserStats{
		PlatformUserID: "u1",
		FollowersCount: 12000,
		FollowingCount: 300,
		StatusesCount:  4500,
		LikesCount:     77,
		Source:         "creator-profile",
		CapturedAt:     capturedAt,
	}

	mock.ExpectExec("INSERT INTO weibo_user_stats").
		WithArgs(int64(11), int64(12000), int64(300), int64(4500), int64(77), "creator-profile", capturedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertUserStats(context.Background(), stats, 11))
	require.NoError(t, mock.ExpectationsWereMet())
}
