package normalize

import (
	"github.com/spf13/cast"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
)

// Status normalizes a raw status (post) fragment. It returns nil when the
// platform post id is missing. Media is merged from the legacy pics array,
// the mix_media_info container and the page_info video container; hashtags
// come from tag_struct entries carrying both an id and a name.
func Status(raw map[string]any) *clean.Post {
	if raw == nil {
		return nil
	}
	id := str(raw, "idstr", "id")
	if id == "" {
		return nil
	}

	var author string
	if u := child(raw, "user"); u != nil {
		author = str(u, "idstr", "id")
	}

	var repostOf string
	if rt := child(raw, "retweeted_status"); rt != nil {
		repostOf = str(rt, "idstr", "id")
	}

	return &clean.Post{
		PlatformPostID:     id,
		MID:                str(raw, "mid", "mblogid"),
		AuthorPlatformID:   author,
		Text:               str(raw, "text_raw", "text"),
		RepostsCount:       i64(raw, "reposts_count"),
		CommentsCount:      i64(raw, "comments_count"),
		AttitudesCount:     i64(raw, "attitudes_count"),
		Visibility:         visibility(child(raw, "visible")),
		RepostOfPlatformID: repostOf,
		SourceApp:          str(raw, "source"),
		PublishedAt:        parseTime(raw, "created_at"),
		Hashtags:           hashtags(raw),
		Media:              media(raw),
		Raw:                raw,
	}
}

// AuthorOf normalizes the user embedded in a status fragment.
func AuthorOf(raw map[string]any) *clean.User {
	if raw == nil {
		return nil
	}
	return User(child(raw, "user"))
}

// Repost returns the embedded repost fragment, if any.
func Repost(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	return child(raw, "retweeted_status")
}

// DetailStatus locates the primary status fragment inside a detail payload.
// Detail pages nest it under "status" (directly or under data); payloads
// that are already a bare status come back unchanged.
func DetailStatus(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	if s := child(payload, "status"); s != nil {
		return s
	}
	if data := child(payload, "data"); data != nil {
		if s := child(data, "status"); s != nil {
			return s
		}
	}
	return payload
}

func visibility(visible map[string]any) clean.Visibility {
	if visible == nil {
		return clean.VisibilityPublic
	}
	switch i64(visible, "type") {
	case 0:
		return clean.VisibilityPublic
	case 6:
		return clean.VisibilityFriends
	case 10:
		return clean.VisibilityPrivate
	default:
		return clean.VisibilityUnknown
	}
}

func hashtags(raw map[string]any) []clean.Hashtag {
	var tags []clean.Hashtag
	for _, v := range list(raw, "tag_struct") {
		entry := asMap(v)
		if entry == nil {
			continue
		}
		id := str(entry, "oid", "tag_id")
		name := str(entry, "tag_name")
		if id == "" || name == "" {
			continue
		}
		tags = append(tags, clean.Hashtag{
			TagID:   id,
			TagName: name,
			TagType: str(entry, "tag_type", "tag_scheme"),
		})
	}
	return tags
}

// media merges the three raw media shapes into one list, first occurrence
// winning on duplicate media ids.
func media(raw map[string]any) []clean.Media {
	var out []clean.Media
	seen := map[string]bool{}
	add := func(m *clean.Media) {
		if m == nil || m.MediaID == "" || seen[m.MediaID] {
			return
		}
		seen[m.MediaID] = true
		out = append(out, *m)
	}

	for _, v := range list(raw, "pics") {
		add(imageMedia(asMap(v)))
	}
	if mix := child(raw, "mix_media_info"); mix != nil {
		for _, v := range list(mix, "items") {
			item := asMap(v)
			if item == nil {
				continue
			}
			data := child(item, "data")
			switch str(item, "type") {
			case "pic":
				add(imageMedia(data))
			case "video":
				add(videoMedia(data))
			default:
				add(unknownMedia(item, data))
			}
		}
	}
	if page := child(raw, "page_info"); page != nil && str(page, "type") == "video" {
		add(videoMedia(page))
	}
	return out
}

func imageMedia(pic map[string]any) *clean.Media {
	if pic == nil {
		return nil
	}
	id := str(pic, "pid", "pic_id", "object_id")
	if id == "" {
		return nil
	}
	m := &clean.Media{
		MediaID: id,
		Type:    clean.MediaTypeImage,
		URL:     str(pic, "url", "thumbnail_url"),
		Raw:     pic,
	}
	if large := child(pic, "large"); large != nil {
		m.HDURL = str(large, "url")
		if geo := child(large, "geo"); geo != nil {
			m.Width = i64(geo, "width")
			m.Height = i64(geo, "height")
		}
	}
	if m.Width == 0 {
		m.Width = i64(pic, "width")
	}
	if m.Height == 0 {
		m.Height = i64(pic, "height")
	}
	return m
}

func videoMedia(page map[string]any) *clean.Media {
	if page == nil {
		return nil
	}
	id := str(page, "object_id", "media_id", "page_id")
	if id == "" {
		return nil
	}
	m := &clean.Media{
		MediaID: id,
		Type:    clean.MediaTypeVideo,
		URL:     str(page, "page_pic", "pic"),
		Raw:     page,
	}
	if info := child(page, "media_info"); info != nil {
		m.VideoURL = str(info, "stream_url_hd", "stream_url", "mp4_720p_mp4")
		m.HDURL = str(info, "stream_url_hd")
		m.DurationMS = int64(cast.ToFloat64(info["duration"]) * 1000)
		m.Width = i64(info, "width")
		m.Height = i64(info, "height")
	}
	return m
}

func unknownMedia(item, data map[string]any) *clean.Media {
	src := data
	if src == nil {
		src = item
	}
	id := str(src, "object_id", "pid", "media_id", "id")
	if id == "" {
		return nil
	}
	return &clean.Media{
		MediaID: id,
		Type:    clean.MediaTypeUnknown,
		URL:     str(src, "url", "pic"),
		Raw:     src,
	}
}
