package normalize

import "github.com/sinofeed/weibo-cleaner/internal/clean"

// User normalizes a raw user fragment. It returns nil when the platform
// user id is missing; a user with blank identity is never produced.
func User(raw map[string]any) *clean.User {
	if raw == nil {
		return nil
	}
	id := str(raw, "idstr", "id")
	if id == "" {
		return nil
	}
	return &clean.User{
		PlatformUserID: id,
		ScreenName:     str(raw, "screen_name", "name"),
		Verified:       flag(raw, "verified"),
		VerifiedType:   i64(raw, "verified_type"),
		FollowersCount: i64(raw, "followers_count", "followers_count_str"),
		FollowingCount: i64(raw, "friends_count", "follow_count"),
		StatusesCount:  i64(raw, "statuses_count"),
		AvatarURL:      str(raw, "profile_image_url", "avatar"),
		AvatarHDURL:    str(raw, "avatar_hd", "avatar_large"),
		Raw:            raw,
	}
}
