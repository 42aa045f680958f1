// Package clean defines core types shared across the cleaning pipeline.
package clean

import (
	"errors"
	"fmt"
	"time"
)

// SourceType tags a raw data record with the crawl variant that produced it.
type SourceType string

// Source type values carried by raw data records and queue messages.
const (
	SourceKeywordSearch  SourceType = "keyword-search"
	SourceComments       SourceType = "comments"
	SourceNoteDetail     SourceType = "note-detail"
	SourceCreatorProfile SourceType = "creator-profile"
)

// ParseSourceType converts a wire tag into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceKeywordSearch, SourceComments, SourceNoteDetail, SourceCreatorProfile:
		return SourceType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedSource, s)
	}
}

// RawDataStatus represents the processing lifecycle of a raw data record.
type RawDataStatus string

// Raw data status values persisted in the raw_data table. Transitions are
// monotonic: a processed record is never reprocessed.
const (
	RawStatusPending   RawDataStatus = "pending"
	RawStatusProcessed RawDataStatus = "processed"
	RawStatusFailed    RawDataStatus = "failed"
)

// Sentinel errors classified by the consumer.
var (
	// ErrRawDataNotFound indicates the raw data record does not exist.
	ErrRawDataNotFound = errors.New("raw data record not found")
	// ErrPostNotFound indicates a comment batch references an unknown post.
	ErrPostNotFound = errors.New("target post not found")
	// ErrUnsupportedSource indicates a source type the router does not know.
	ErrUnsupportedSource = errors.New("unsupported source type")
)

// RawDataRecord is the crawler-captured payload document this pipeline
// consumes. Only its status fields are mutated here.
type RawDataRecord struct {
	ID           string
	SourceType   SourceType
	SourceURL    string
	RawContent   string
	Status       RawDataStatus
	ErrorMessage string
	ProcessedAt  *time.Time
	CreatedAt    time.Time
}

// User is a normalized platform user, keyed by PlatformUserID.
type User struct {
	PlatformUserID string
	ScreenName     string
	Verified       bool
	VerifiedType   int64
	FollowersCount int64
	FollowingCount int64
	StatusesCount  int64
	AvatarURL      string
	AvatarHDURL    string
	Raw            map[string]any
}

// Visibility classifies who can see a post.
type Visibility string

// Visibility values derived from the raw "visible" structure.
const (
	VisibilityPublic  Visibility = "public"
	VisibilityFriends Visibility = "friends"
	VisibilityPrivate Visibility = "private"
	VisibilityUnknown Visibility = "unknown"
)

// Post is a normalized status, keyed by PlatformPostID. Hashtags and media
// travel embedded and are persisted alongside the post.
type Post struct {
	PlatformPostID     string
	MID                string
	AuthorPlatformID   string
	Text               string
	RepostsCount       int64
	CommentsCount      int64
	AttitudesCount     int64
	Visibility         Visibility
	RepostOfPlatformID string
	SourceApp          string
	PublishedAt        *time.Time
	Hashtags           []Hashtag
	Media              []Media
	Raw                map[string]any
}

// Comment is a normalized reply-tree node flattened into ancestry fields:
// RootPlatformID is the topmost ancestor, ReplyCommentID the immediate
// parent (empty at the root), and Path the dot-joined ancestry trail.
type Comment struct {
	PlatformCommentID string
	PostPlatformID    string
	AuthorPlatformID  string
	RootPlatformID    string
	RootMID           string
	ReplyCommentID    string
	Path              string
	FloorNumber       int64
	Text              string
	LikeCount         int64
	PublishedAt       *time.Time
	Raw               map[string]any
}

// Hashtag is a normalized tag, keyed by TagID.
type Hashtag struct {
	TagID   string
	TagName string
	TagType string
}

// MediaType classifies a media attachment.
type MediaType string

// Media type values.
const (
	MediaTypeImage   MediaType = "image"
	MediaTypeVideo   MediaType = "video"
	MediaTypeUnknown MediaType = "unknown"
)

// Media is one attachment of a post; its natural key is (post, MediaID).
type Media struct {
	MediaID    string
	Type       MediaType
	Width      int64
	Height     int64
	URL        string
	HDURL      string
	VideoURL   string
	DurationMS int64
	Raw        map[string]any
}

// UserStats is an append-only point-in-time snapshot of a user's counters.
type UserStats struct {
	PlatformUserID string
	FollowersCount int64
	FollowingCount int64
	StatusesCount  int64
	LikesCount     int64
	Source         string
	CapturedAt     time.Time
}

// StoredPost is the persisted identity of a post, used to attach comments.
type StoredPost struct {
	ID             int64
	PlatformPostID string
}

// TaskResult summarizes what a cleaning task touched.
type TaskResult struct {
	PostIDs    []string
	CommentIDs []string
	UserIDs    []string
	Total      int
	Success    int
	Skipped    int
	Note       string
}

// RawDataReadyEvent is the inbound queue message announcing a raw record.
type RawDataReadyEvent struct {
	RawDataID      string         `json:"rawDataId" validate:"required"`
	SourceType     string         `json:"sourceType" validate:"required"`
	SourcePlatform string         `json:"sourcePlatform,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ExtractedEntities lists the platform ids touched by one pipeline run.
type ExtractedEntities struct {
	PostIDs    []string `json:"postIds"`
	CommentIDs []string `json:"commentIds"`
	UserIDs    []string `json:"userIds"`
}

// CleanStats carries per-run counters for the summary event.
type CleanStats struct {
	TotalRecords     int   `json:"totalRecords"`
	SuccessCount     int   `json:"successCount"`
	SkippedCount     int   `json:"skippedCount"`
	ProcessingTimeMs int64 `json:"processingTimeMs"`
}

// CleanedDataEvent is published after a raw record is processed.
type CleanedDataEvent struct {
	EventID           string            `json:"eventId"`
	RawDataID         string            `json:"rawDataId"`
	SourceType        SourceType        `json:"sourceType"`
	ExtractedEntities ExtractedEntities `json:"extractedEntities"`
	Stats             CleanStats        `json:"stats"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// DetailCrawlEvent asks the crawler to fetch full detail for one status.
type DetailCrawlEvent struct {
	StatusID string `json:"statusId"`
}

// SearchCrawlEvent asks the crawler to continue a keyword search, either on
// the next page or over a narrowed time window.
type SearchCrawlEvent struct {
	Keyword   string     `json:"keyword,omitempty"`
	Page      int        `json:"page,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Reason    string     `json:"reason"`
}
