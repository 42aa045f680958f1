package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
)

// EntityStore deduplicates and upserts normalized records. After each upsert
// pass it re-reads the affected rows to hand callers a natural-key to
// internal-id map for foreign-key resolution.
type EntityStore struct {
	pool dbconn
}

// NewEntityStore constructs a store over an existing pool.
func NewEntityStore(pool dbconn) (*EntityStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &EntityStore{pool: pool}, nil
}

const upsertUserSQL = `
INSERT INTO weibo_users (
	platform_user_id, screen_name, verified, verified_type,
	followers_count, following_count, statuses_count,
	avatar_url, avatar_hd_url, raw, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
ON CONFLICT (platform_user_id) DO UPDATE SET
	screen_name = EXCLUDED.screen_name,
	verified = EXCLUDED.verified,
	verified_type = EXCLUDED.verified_type,
	followers_count = EXCLUDED.followers_count,
	following_count = EXCLUDED.following_count,
	statuses_count = EXCLUDED.statuses_count,
	avatar_url = EXCLUDED.avatar_url,
	avatar_hd_url = EXCLUDED.avatar_hd_url,
	raw = EXCLUDED.raw,
	updated_at = now()`

const selectUserIDsSQL = `
SELECT id, platform_user_id FROM weibo_users WHERE platform_user_id = ANY($1)`

// UpsertUsers deduplicates the batch by platform user id (last write wins),
// upserts every row, and returns platform id -> internal id.
func (s *EntityStore) UpsertUsers(ctx context.Context, users []clean.User) (map[string]int64, error) {
	deduped := dedupeUsers(users)
	if len(deduped) == 0 {
		return map[string]int64{}, nil
	}
	keys := make([]string, 0, len(deduped))
	for _, u := range deduped {
		raw, err := json.Marshal(u.Raw)
		if err != nil {
			return nil, fmt.Errorf("marshal user %s raw: %w", u.PlatformUserID, err)
		}
		if _, err := s.pool.Exec(ctx, upsertUserSQL,
			u.PlatformUserID, u.ScreenName, u.Verified, u.VerifiedType,
			u.FollowersCount, u.FollowingCount, u.StatusesCount,
			u.AvatarURL, u.AvatarHDURL, raw,
		); err != nil {
			return nil, fmt.Errorf("upsert user %s: %w", u.PlatformUserID, err)
		}
		keys = append(keys, u.PlatformUserID)
	}
	return s.readIDMap(ctx, selectUserIDsSQL, keys, "users")
}

const upsertPostSQL = `
INSERT INTO weibo_posts (
	platform_post_id, mid, author_id, text,
	reposts_count, comments_count, attitudes_count,
	visibility, repost_of_platform_id, source_app, published_at, raw, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
ON CONFLICT (platform_post_id) DO UPDATE SET
	mid = EXCLUDED.mid,
	author_id = EXCLUDED.author_id,
	text = EXCLUDED.text,
	reposts_count = EXCLUDED.reposts_count,
	comments_count = EXCLUDED.comments_count,
	attitudes_count = EXCLUDED.attitudes_count,
	visibility = EXCLUDED.visibility,
	repost_of_platform_id = EXCLUDED.repost_of_platform_id,
	source_app = EXCLUDED.source_app,
	published_at = EXCLUDED.published_at,
	raw = EXCLUDED.raw,
	updated_at = now()`

const selectPostIDsSQL = `
SELECT id, platform_post_id FROM weibo_posts WHERE platform_post_id = ANY($1)`

// UpsertPosts deduplicates by platform post id, drops posts whose author is
// absent from the supplied user map (the ownership dependency), upserts the
// remainder plus their hashtag and media sub-structures, and returns
// platform id -> internal id for the retained posts.
func (s *EntityStore) UpsertPosts(ctx context.Context, posts []clean.Post, userIDs map[string]int64) (map[string]int64, error) {
	deduped := dedupePosts(posts)
	retained := make([]clean.Post, 0, len(deduped))
	keys := make([]string, 0, len(deduped))
	for _, p := range deduped {
		authorID, ok := userIDs[p.AuthorPlatformID]
		if !ok {
			continue
		}
		raw, err := json.Marshal(p.Raw)
		if err != nil {
			return nil, fmt.Errorf("marshal post %s raw: %w", p.PlatformPostID, err)
		}
		if _, err := s.pool.Exec(ctx, upsertPostSQL,
			p.PlatformPostID, p.MID, authorID, p.Text,
			p.RepostsCount, p.CommentsCount, p.AttitudesCount,
			string(p.Visibility), nullable(p.RepostOfPlatformID), p.SourceApp, p.PublishedAt, raw,
		); err != nil {
			return nil, fmt.Errorf("upsert post %s: %w", p.PlatformPostID, err)
		}
		retained = append(retained, p)
		keys = append(keys, p.PlatformPostID)
	}
	if len(retained) == 0 {
		return map[string]int64{}, nil
	}
	postIDs, err := s.readIDMap(ctx, selectPostIDsSQL, keys, "posts")
	if err != nil {
		return nil, err
	}
	if err := s.upsertHashtags(ctx, retained, postIDs); err != nil {
		return nil, err
	}
	if err := s.upsertMedia(ctx, retained, postIDs); err != nil {
		return nil, err
	}
	return postIDs, nil
}

const upsertHashtagSQL = `
INSERT INTO weibo_hashtags (tag_id, tag_name, tag_type)
VALUES ($1,$2,$3)
ON CONFLICT (tag_id) DO UPDATE SET
	tag_name = EXCLUDED.tag_name,
	tag_type = EXCLUDED.tag_type`

const selectHashtagIDsSQL = `
SELECT id, tag_id FROM weibo_hashtags WHERE tag_id = ANY($1)`

const linkPostHashtagSQL = `
INSERT INTO weibo_post_hashtags (post_id, hashtag_id)
VALUES ($1,$2)
ON CONFLICT (post_id, hashtag_id) DO NOTHING`

// upsertHashtags writes the tag rows, then the post<->tag link rows with
// conflict-ignored semantics so reprocessing never duplicates links.
func (s *EntityStore) upsertHashtags(ctx context.Context, posts []clean.Post, postIDs map[string]int64) error {
	tags := map[string]clean.Hashtag{}
	for _, p := range posts {
		for _, t := range p.Hashtags {
			tags[t.TagID] = t
		}
	}
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, err := s.pool.Exec(ctx, upsertHashtagSQL, t.TagID, t.TagName, t.TagType); err != nil {
			return fmt.Errorf("upsert hashtag %s: %w", t.TagID, err)
		}
		keys = append(keys, t.TagID)
	}
	tagIDs, err := s.readIDMap(ctx, selectHashtagIDsSQL, keys, "hashtags")
	if err != nil {
		return err
	}
	for _, p := range posts {
		postID, ok := postIDs[p.PlatformPostID]
		if !ok {
			continue
		}
		for _, t := range p.Hashtags {
			tagID, ok := tagIDs[t.TagID]
			if !ok {
				continue
			}
			if _, err := s.pool.Exec(ctx, linkPostHashtagSQL, postID, tagID); err != nil {
				return fmt.Errorf("link post %s hashtag %s: %w", p.PlatformPostID, t.TagID, err)
			}
		}
	}
	return nil
}

const upsertMediaSQL = `
INSERT INTO weibo_post_media (
	post_id, media_id, media_type, width, height,
	url, hd_url, video_url, duration_ms, raw
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (post_id, media_id) DO UPDATE SET
	media_type = EXCLUDED.media_type,
	width = EXCLUDED.width,
	height = EXCLUDED.height,
	url = EXCLUDED.url,
	hd_url = EXCLUDED.hd_url,
	video_url = EXCLUDED.video_url,
	duration_ms = EXCLUDED.duration_ms,
	raw = EXCLUDED.raw`

func (s *EntityStore) upsertMedia(ctx context.Context, posts []clean.Post, postIDs map[string]int64) error {
	for _, p := range posts {
		postID, ok := postIDs[p.PlatformPostID]
		if !ok {
			continue
		}
		for _, m := range p.Media {
			raw, err := json.Marshal(m.Raw)
			if err != nil {
				return fmt.Errorf("marshal media %s raw: %w", m.MediaID, err)
			}
			if _, err := s.pool.Exec(ctx, upsertMediaSQL,
				postID, m.MediaID, string(m.Type), m.Width, m.Height,
				m.URL, m.HDURL, m.VideoURL, m.DurationMS, raw,
			); err != nil {
				return fmt.Errorf("upsert media %s for post %s: %w", m.MediaID, p.PlatformPostID, err)
			}
		}
	}
	return nil
}

const getPostSQL = `
SELECT id, platform_post_id FROM weibo_posts WHERE platform_post_id = $1`

// GetPostByPlatformID locates the persisted identity of a post so comments
// can be attached to it.
func (s *EntityStore) GetPostByPlatformID(ctx context.Context, platformID string) (clean.StoredPost, error) {
	var post clean.StoredPost
	err := s.pool.QueryRow(ctx, getPostSQL, platformID).Scan(&post.ID, &post.PlatformPostID)
	if errors.Is(err, pgx.ErrNoRows) {
		return clean.StoredPost{}, fmt.Errorf("%w: %s", clean.ErrPostNotFound, platformID)
	}
	if err != nil {
		return clean.StoredPost{}, fmt.Errorf("get post %s: %w", platformID, err)
	}
	return post, nil
}

const upsertCommentSQL = `
INSERT INTO weibo_comments (
	platform_comment_id, post_id, author_id,
	root_platform_id, root_mid, reply_comment_id, path, floor_number,
	text, like_count, published_at, raw, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
ON CONFLICT (platform_comment_id) DO UPDATE SET
	post_id = EXCLUDED.post_id,
	author_id = EXCLUDED.author_id,
	root_platform_id = EXCLUDED.root_platform_id,
	root_mid = EXCLUDED.root_mid,
	reply_comment_id = EXCLUDED.reply_comment_id,
	path = EXCLUDED.path,
	floor_number = EXCLUDED.floor_number,
	text = EXCLUDED.text,
	like_count = EXCLUDED.like_count,
	published_at = EXCLUDED.published_at,
	raw = EXCLUDED.raw,
	updated_at = now()`

const selectCommentIDsSQL = `
SELECT id, platform_comment_id FROM weibo_comments WHERE platform_comment_id = ANY($1)`

// UpsertComments attaches a comment batch to an already-located post. It is
// a caller error to pass a zero StoredPost; the comment task must locate
// the post first. Comments whose author is absent from the user map are
// dropped, mirroring the post ownership rule.
func (s *EntityStore) UpsertComments(ctx context.Context, comments []clean.Comment, post clean.StoredPost, userIDs map[string]int64) (map[string]int64, error) {
	if post.ID == 0 {
		return nil, fmt.Errorf("comment persistence requires a located post entity")
	}
	deduped := dedupeComments(comments)
	keys := make([]string, 0, len(deduped))
	for _, c := range deduped {
		authorID, ok := userIDs[c.AuthorPlatformID]
		if !ok {
			continue
		}
		raw, err := json.Marshal(c.Raw)
		if err != nil {
			return nil, fmt.Errorf("marshal comment %s raw: %w", c.PlatformCommentID, err)
		}
		if _, err := s.pool.Exec(ctx, upsertCommentSQL,
			c.PlatformCommentID, post.ID, authorID,
			c.RootPlatformID, c.RootMID, nullable(c.ReplyCommentID), c.Path, c.FloorNumber,
			c.Text, c.LikeCount, c.PublishedAt, raw,
		); err != nil {
			return nil, fmt.Errorf("upsert comment %s: %w", c.PlatformCommentID, err)
		}
		keys = append(keys, c.PlatformCommentID)
	}
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}
	return s.readIDMap(ctx, selectCommentIDsSQL, keys, "comments")
}

const insertUserStatsSQL = `
INSERT INTO weibo_user_stats (
	user_id, followers_count, following_count, statuses_count, likes_count,
	source, captured_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)`

// InsertUserStats appends one snapshot row; stats are a time series and are
// never upserted.
func (s *EntityStore) InsertUserStats(ctx context.Context, stats clean.UserStats, userID int64) error {
	if _, err := s.pool.Exec(ctx, insertUserStatsSQL,
		userID, stats.FollowersCount, stats.FollowingCount, stats.StatusesCount,
		stats.LikesCount, stats.Source, stats.CapturedAt,
	); err != nil {
		return fmt.Errorf("insert user stats for %s: %w", stats.PlatformUserID, err)
	}
	return nil
}

// readIDMap re-reads the affected rows and builds natural key -> row id.
func (s *EntityStore) readIDMap(ctx context.Context, query string, keys []string, kind string) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("read %s id map: %w", kind, err)
	}
	defer rows.Close()
	out := make(map[string]int64, len(keys))
	for rows.Next() {
		var id int64
		var key string
		if err := rows.Scan(&id, &key); err != nil {
			return nil, fmt.Errorf("scan %s id row: %w", kind, err)
		}
		out[key] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s id rows: %w", kind, err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// dedupe helpers: last write wins within a batch, original order preserved
// for the first occurrence of each key.

func dedupeUsers(users []clean.User) []clean.User {
	idx := make(map[string]int, len(users))
	out := make([]clean.User, 0, len(users))
	for _, u := range users {
		if u.PlatformUserID == "" {
			continue
		}
		if i, ok := idx[u.PlatformUserID]; ok {
			out[i] = u
			continue
		}
		idx[u.PlatformUserID] = len(out)
		out = append(out, u)
	}
	return out
}

func dedupePosts(posts []clean.Post) []clean.Post {
	idx := make(map[string]int, len(posts))
	out := make([]clean.Post, 0, len(posts))
	for _, p := range posts {
		if p.PlatformPostID == "" {
			continue
		}
		if i, ok := idx[p.PlatformPostID]; ok {
			out[i] = p
			continue
		}
		idx[p.PlatformPostID] = len(out)
		out = append(out, p)
	}
	return out
}

func dedupeComments(comments []clean.Comment) []clean.Comment {
	idx := make(map[string]int, len(comments))
	out := make([]clean.Comment, 0, len(comments))
	for _, c := range comments {
		if c.PlatformCommentID == "" {
			continue
		}
		if i, ok := idx[c.PlatformCommentID]; ok {
			out[i] = c
			continue
		}
		idx[c.PlatformCommentID] = len(out)
		out = append(out, c)
	}
	return out
}
