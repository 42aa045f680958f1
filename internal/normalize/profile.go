package normalize

import (
	"time"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
)

// ProfileUser finds and normalizes the user embedded in a profile payload.
// Profile pages nest the user either at the top level or under data.
func ProfileUser(raw map[string]any) *clean.User {
	if raw == nil {
		return nil
	}
	if u := User(child(raw, "user")); u != nil {
		return u
	}
	if data := child(raw, "data"); data != nil {
		if u := User(child(data, "user")); u != nil {
			return u
		}
	}
	return nil
}

// ProfileSnapshot derives an append-only stats snapshot from a profile
// payload. It returns nil when no embedded user is present. The source
// label records which crawl variant produced the snapshot.
func ProfileSnapshot(raw map[string]any, source string, capturedAt time.Time) *clean.UserStats {
	u := ProfileUser(raw)
	if u == nil {
		return nil
	}
	likes := i64(u.Raw, "like_me_cnt", "likes_count")
	if likes == 0 {
		if counter := child(u.Raw, "status_total_counter"); counter != nil {
			likes = i64(counter, "like_cnt", "total_cnt")
		}
	}
	return &clean.UserStats{
		PlatformUserID: u.PlatformUserID,
		FollowersCount: u.FollowersCount,
		FollowingCount: u.FollowingCount,
		StatusesCount:  u.StatusesCount,
		LikesCount:     likes,
		Source:         source,
		CapturedAt:     capturedAt,
	}
}
