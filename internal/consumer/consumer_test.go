package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sinofeed/weibo-cleaner/internal/clean"
	"github.com/sinofeed/weibo-cleaner/internal/publisher/memory"
	"github.com/sinofeed/weibo-cleaner/internal/task"
)

// fakeRawStore serves one configurable record and records status flips.
type fakeRawStore struct {
	record clean.RawDataRecord
	getErr error

	processed       []string
	markProcessedAt time.Time
	processedErr    error

	failed        []string
	failedMessage string
}

func (s *fakeRawStore) GetRawData(_ context.Context, id string) (clean.RawDataRecord, error) {
	if s.getErr != nil {
		return clean.RawDataRecord{}, s.getErr
	}
	if s.record.ID != id {
		return clean.RawDataRecord{}, clean.ErrRawDataNotFound
	}
	return s.record, nil
}

func (s *fakeRawStore) MarkProcessed(_ context.Context, id string, at time.Time) error {
	if s.processedErr != nil {
		return s.processedErr
	}
	s.processed = append(s.processed, id)
	s.markProcessedAt = at
	return nil
}

func (s *fakeRawStore) MarkFailed(ctx context.Context, id string, message string, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.failed = append(s.failed, id)
	s.failedMessage = message
	return nil
}

// fakeEntityStore is the minimal persistence needed to run tasks end to end.
type fakeEntityStore struct {
	posts            []clean.Post
	stats            []clean.UserStats
	postByPlatformID map[string]clean.StoredPost

	// stall makes UpsertUsers block until the run context expires.
	stall bool
}

func (s *fakeEntityStore) UpsertUsers(ctx context.Context, users []clean.User) (map[string]int64, error) {
	if s.stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	ids := make(map[string]int64, len(users))
	for i, u := range users {
		ids[u.PlatformUserID] = int64(i + 1)
	}
	return ids, nil
}

func (s *fakeEntityStore) UpsertPosts(_ context.Context, posts []clean.Post, userIDs map[string]int64) (map[string]int64, error) {
	ids := make(map[string]int64, len(posts))
	for i, p := range posts {
		if _, ok := userIDs[p.AuthorPlatformID]; !ok {
			continue
		}
		s.posts = append(s.posts, p)
		ids[p.PlatformPostID] = int64(i + 100)
	}
	return ids, nil
}

func (s *fakeEntityStore) GetPostByPlatformID(_ context.Context, platformID string) (clean.StoredPost, error) {
	post, ok := s.postByPlatformID[platformID]
	if !ok {
		return clean.StoredPost{}, clean.ErrPostNotFound
	}
	return post, nil
}

func (s *fakeEntityStore) UpsertComments(_ context.Context, comments []clean.Comment, _ clean.StoredPost, _ map[string]int64) (map[string]int64, error) {
	ids := make(map[string]int64, len(comments))
	for i, c := range comments {
		ids[c.PlatformCommentID] = int64(i + 200)
	}
	return ids, nil
}

func (s *fakeEntityStore) InsertUserStats(_ context.Context, stats clean.UserStats, _ int64) error {
	s.stats = append(s.stats, stats)
	return nil
}

// fakeAcker records the acknowledgement decision.
type fakeAcker struct {
	acked  bool
	nacked bool
}

func (a *fakeAcker) Ack()  { a.acked = true }
func (a *fakeAcker) Nack() { a.nacked = true }

type fakeIDGen struct{}

func (fakeIDGen) NewID() (string, error) { return "event-1", nil }

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var consumerNow = time.Date(2025, 8, 29, 12, 0, 0, 0, time.UTC)

type harness struct {
	consumer *Consumer
	rawStore *fakeRawStore
	entities *fakeEntityStore
	pub      *memory.Publisher
}

func newHarness(record clean.RawDataRecord) *harness {
	rawStore := &fakeRawStore{record: record}
	entities := &fakeEntityStore{postByPlatformID: map[string]clean.StoredPost{}}
	pub := memory.New()
	logger := zap.NewNop()

	router := task.NewRouter(task.Deps{
		Store:     entities,
		Publisher: pub,
		Clock:     fixedClock{now: consumerNow},
		Logger:    logger,
	})
	c := New(nil, rawStore, router, pub, fakeIDGen{}, fixedClock{now: consumerNow},
		Config{CleanedTopic: "weibo-cleaned-data"}, logger)
	return &harness{consumer: c, rawStore: rawStore, entities: entities, pub: pub}
}

func pendingProfileRecord() clean.RawDataRecord {
	return clean.RawDataRecord{
		ID:         "raw-1",
		SourceType: clean.SourceCreatorProfile,
		Status:     clean.RawStatusPending,
		RawContent: `{"user": {"idstr": "u1", "screen_name": "alice", "followers_count": 100}}`,
	}
}

func TestHandle_MalformedMessageAcked(t *testing.T) {
	t.Parallel()

	h := newHarness(pendingProfileRecord())
	ack := &fakeAcker{}

	h.consumer.handle(context.Background(), []byte("not json"), ack)
	require.True(t, ack.acked)
	require.False(t, ack.nacked)
	require.Empty(t, h.rawStore.processed)
}

func TestHandle_InvalidEventAcked(t *testing.T) {
	t.Parallel()

	h := newHarness(pendingProfileRecord())
	ack := &fakeAcker{}

	// rawDataId is required.
	h.consumer.handle(context.Background(), []byte(`{"sourceType": "creator-profile"}`), ack)
	require.True(t, ack.acked)
	require.Empty(t, h.rawStore.processed)
}

func TestHandle_SuccessPublishesCleanedEvent(t *testing.T) {
	t.Parallel()

	h := newHarness(pendingProfileRecord())
	ack := &fakeAcker{}

	h.consumer.handle(context.Background(), []byte(`{"rawDataId": "raw-1", "sourceType": "creator-profile"}`), ack)
	require.True(t, ack.acked)
	require.False(t, ack.nacked)

	require.Equal(t, []string{"raw-1"}, h.rawStore.processed)
	require.Equal(t, consumerNow, h.rawStore.markProcessedAt)

	msgs := h.pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "weibo-cleaned-data", msgs[0].Topic)
	ev, ok := msgs[0].Payload.(clean.CleanedDataEvent)
	require.True(t, ok)
	require.Equal(t, "event-1", ev.EventID)
	require.Equal(t, "raw-1", ev.RawDataID)
	require.Equal(t, clean.SourceCreatorProfile, ev.SourceType)
	require.Equal(t, []string{"u1"}, ev.ExtractedEntities.UserIDs)
	require.NotNil(t, ev.ExtractedEntities.PostIDs)
	require.Empty(t, ev.ExtractedEntities.PostIDs)
	require.Equal(t, 1, ev.Stats.TotalRecords)
}

func TestHandle_AlreadyProcessedSkips(t *testing.T) {
	t.Parallel()

	record := pendingProfileRecord()
	record.Status = clean.RawStatusProcessed
	h := newHarness(record)
	ack := &fakeAcker{}

	h.consumer.handle(context.Background(), []byte(`{"rawDataId": "raw-1", "sourceType": "creator-profile"}`), ack)
	require.True(t, ack.acked)
	require.Empty(t, h.rawStore.processed)
	require.Empty(t, h.pub.Messages())
	require.Empty(t, h.entities.stats)
}

func TestHandle_MissingRecordAcked(t *testing.T) {
	t.Parallel()

	h := newHarness(pendingProfileRecord())
	ack := &fakeAcker{}

	h.consumer.handle(context.Background(), []byte(`{"rawDataId": "raw-unknown", "sourceType": "creator-profile"}`), ack)
	require.True(t, ack.acked)
	require.False(t, ack.nacked)
	require.Empty(t, h.rawStore.failed)
}

func TestHandle_FetchErrorNacked(t *testing.T) {
	t.Parallel()

	h := newHarness(pendingProfileRecord())
	h.rawStore.getErr = errors.New("connection refused")
	ack := &fakeAcker{}

	h.consumer.handle(context.Background(), []byte(`{"rawDataId": "raw-1", "sourceType": "creator-profile"}`), ack)
	require.True(t, ack.nacked)
	require.False(t, ack.acked)
}

func TestHandle_UnsupportedSourceMarkedFailed(t *testing.T) {
	t.Parallel()

	record := pendingProfileRecord()
	record.SourceType = clean.SourceType("tiktok-feed")
	h := newHarness(record)
	ack := &fakeAcker{}

	h.consumer.handle(context.Background(), []byte(`{"rawDataId": "raw-1", "sourceType": "tiktok-feed"}`), ack)
	require.True(t, ack.acked)
	require.Equal(t, []string{"raw-1"}, h.rawStore.failed)
	require.Contains(t, h.rawStore.failedMessage, "unsupported source type")
	require.Empty(t, h.rawStore.processed)
}

func TestHandle_TaskFailureMarkedFailed(t *testing.T) {
	t.Parallel()

	record := pendingProfileRecord()
	record.SourceType = clean.SourceComments
	record.RawContent = `{"data": [{"id": "c1", "user": {"idstr": "u1"}}]}`
	h := newHarness(record)
	ack := &fakeAcker{}

	// The comment batch carries no status id in its metadata.
	h.consumer.handle(context.Background(), []byte(`{"rawDataId": "raw-1", "sourceType": "comments"}`), ack)
	require.True(t, ack.acked)
	require.Equal(t, []string{"raw-1"}, h.rawStore.failed)
	require.Empty(t, h.rawStore.processed)
}

func TestHandle_TimeoutStillMarksFailed(t *testing.T) {
	t.Parallel()

	h := newHarness(pendingProfileRecord())
	h.entities.stall = true
	h.consumer.cfg.MessageTimeout = 20 * time.Millisecond
	ack := &fakeAcker{}

	// The task exhausts the per-message budget; the failed-status write runs
	// on its own context and must still land.
	h.consumer.handle(context.Background(), []byte(`{"rawDataId": "raw-1", "sourceType": "creator-profile"}`), ack)
	require.True(t, ack.acked)
	require.False(t, ack.nacked)
	require.Equal(t, []string{"raw-1"}, h.rawStore.failed)
	require.Contains(t, h.rawStore.failedMessage, "context deadline exceeded")
	require.Empty(t, h.rawStore.processed)
	require.Empty(t, h.pub.Messages())
}

func TestHandle_PostNotFoundDroppedWithoutStatusChange(t *testing.T) {
	t.Parallel()

	record := pendingProfileRecord()
	record.SourceType = clean.SourceComments
	record.RawContent = `{"data": [{"id": "c1", "user": {"idstr": "u1"}}]}`
	h := newHarness(record)
	ack := &fakeAcker{}

	h.consumer.handle(context.Background(), []byte(`{"rawDataId": "raw-1", "sourceType": "comments", "metadata": {"statusId": "5099"}}`), ack)
	require.True(t, ack.acked)
	require.False(t, ack.nacked)
	require.Empty(t, h.rawStore.failed)
	require.Empty(t, h.rawStore.processed)
}

func TestHandle_StatusUpdateErrorNacked(t *testing.T) {
	t.Parallel()

	h := newHarness(pendingProfileRecord())
	h.rawStore.processedErr = errors.New("connection reset")
	ack := &fakeAcker{}

	h.consumer.handle(context.Background(), []byte(`{"rawDataId": "raw-1", "sourceType": "creator-profile"}`), ack)
	require.True(t, ack.nacked)
	require.False(t, ack.acked)
}
