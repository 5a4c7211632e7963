package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer/backend/internal/models"
	"github.com/wayfarer/backend/internal/repositories"
)

type memoryStore struct {
	mu        sync.Mutex
	records   map[string]models.SourceRecord
	updateErr error
	updates   int
}

func newMemoryStore(ids ...string) *memoryStore {
	s := &memoryStore{records: make(map[string]models.SourceRecord)}
	for _, id := range ids {
		s.records[id] = models.SourceRecord{ID: id, Status: models.SourceStatusPending}
	}
	return s
}

func (s *memoryStore) Find(_ context.Context, id string) (models.SourceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return models.SourceRecord{}, repositories.ErrNotFound
	}
	return rec, nil
}

func (s *memoryStore) Update(_ context.Context, id string, status models.SourceStatus, content json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	rec, ok := s.records[id]
	if !ok {
		return repositories.ErrNotFound
	}
	rec.Status = status
	if content != nil {
		rec.ScrapedContent = content
	}
	s.records[id] = rec
	s.updates++
	return nil
}

func (s *memoryStore) content(t *testing.T, id string) Content {
	t.Helper()
	rec, err := s.Find(context.Background(), id)
	require.NoError(t, err)
	c, err := DecodeContent(rec.ScrapedContent)
	require.NoError(t, err)
	return c
}

type stubProfiles struct {
	calls    [][]string
	webhooks []string
	err      error
}

func (p *stubProfiles) StartProfileScrape(_ context.Context, usernames []string, webhookURL string) (Run, error) {
	p.calls = append(p.calls, usernames)
	p.webhooks = append(p.webhooks, webhookURL)
	if p.err != nil {
		return Run{}, p.err
	}
	return Run{ID: "run-1"}, nil
}

type stubArchive struct {
	keys []string
	err  error
}

func (a *stubArchive) Save(_ context.Context, key string, r io.Reader) (string, error) {
	_, _ = io.ReadAll(r)
	a.keys = append(a.keys, key)
	return key, a.err
}

const reelCallback = `[{
	"shortCode": "XYZ",
	"url": "https://www.instagram.com/reel/XYZ/",
	"caption": "Sunset in Lisbon",
	"likesCount": 120,
	"ownerUsername": "alice",
	"ownerFullName": "Alice A",
	"coauthorProducers": [{"username": "bob", "is_verified": true}],
	"taggedUsers": [{"username": "carol", "full_name": "Carol C"}, {"username": "alice"}],
	"latestComments": [{"text": "wow", "ownerUsername": "zed"}]
}]`

const profilesCallback = `[
	{"username": "alice", "followersCount": 1000, "postsCount": 10, "verified": true, "biography": "travels"},
	{"username": "bob", "followersCount": 200},
	{"username": "carol", "followersCount": 30},
	{"username": "dave", "followersCount": 4}
]`

var fixedNow = time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)

func newTestReconciler(store *memoryStore) (*Reconciler, *stubProfiles, *stubArchive) {
	profiles := &stubProfiles{}
	archive := &stubArchive{}
	return &Reconciler{
		Store:          store,
		Profiles:       profiles,
		Archive:        archive,
		ArchivePrefix:  "callbacks",
		WebhookBaseURL: "https://api.wayfarer.test",
		NowFunc:        func() time.Time { return fixedNow },
	}, profiles, archive
}

func TestReelCallbackStoresPartialRecordAndTriggersProfiles(t *testing.T) {
	store := newMemoryStore("src-1")
	rec, profiles, archive := newTestReconciler(store)

	out, err := rec.HandleCallback(context.Background(), Callback{SourceID: "src-1", Stage: StageInitial, Payload: []byte(reelCallback)})
	require.NoError(t, err)

	assert.Equal(t, models.SourceStatusPending, out.Status)
	assert.Equal(t, []string{"alice", "bob", "carol"}, out.Usernames)

	require.Len(t, profiles.calls, 1)
	assert.Equal(t, []string{"alice", "bob", "carol"}, profiles.calls[0])
	assert.Equal(t, "https://api.wayfarer.test/api/v1/webhooks/instagram/src-1/profiles", profiles.webhooks[0])

	content := store.content(t, "src-1")
	require.Equal(t, KindInstagramReel, content.Kind)
	assert.Equal(t, "alice", content.Reel.Poster.Username)
	assert.Equal(t, fixedNow, content.Reel.CapturedAt)

	rec2, _ := store.Find(context.Background(), "src-1")
	assert.NotContains(t, string(rec2.ScrapedContent), "latestComments")
	assert.NotContains(t, string(rec2.ScrapedContent), "wow")
	assert.Equal(t, []string{"callbacks/src-1/initial-" + itoa(fixedNow.UnixNano()) + ".json"}, archive.keys)
}

func TestProfileReconciliationAssignsRolesAndDropsUnmatched(t *testing.T) {
	store := newMemoryStore("src-1")
	rec, _, _ := newTestReconciler(store)
	ctx := context.Background()

	_, err := rec.HandleCallback(ctx, Callback{SourceID: "src-1", Stage: StageInitial, Payload: []byte(reelCallback)})
	require.NoError(t, err)

	out, err := rec.HandleCallback(ctx, Callback{SourceID: "src-1", Stage: StageProfiles, Payload: []byte(profilesCallback)})
	require.NoError(t, err)

	assert.Equal(t, models.SourceStatusCompleted, out.Status)
	assert.Equal(t, 3, out.Matched)
	assert.Equal(t, []string{"dave"}, out.Dropped)

	reel := store.content(t, "src-1").Reel
	require.NotNil(t, reel)
	assert.Equal(t, int64(1000), reel.Poster.FollowersCount)
	assert.Equal(t, "Alice A", reel.Poster.FullName, "stub fields survive enrichment")
	require.Len(t, reel.Coauthors, 1)
	assert.Equal(t, int64(200), reel.Coauthors[0].FollowersCount)
	assert.True(t, reel.Coauthors[0].Verified)

	require.Len(t, reel.Tagged, 2)
	assert.Equal(t, int64(30), reel.Tagged[0].FollowersCount)
	assert.Equal(t, "Carol C", reel.Tagged[0].FullName)
	assert.Zero(t, reel.Tagged[1].FollowersCount, "alice is assigned as poster, not tagged")
	assert.Equal(t, "Sunset in Lisbon", reel.Caption)

	stored, _ := store.Find(ctx, "src-1")
	assert.Equal(t, models.SourceStatusCompleted, stored.Status)
	assert.NotContains(t, string(stored.ScrapedContent), "dave")
}

func TestPlainProfileCompletesInOneCallback(t *testing.T) {
	store := newMemoryStore("src-2")
	rec, profiles, _ := newTestReconciler(store)

	body := `[{"account": {"username": "wander.lust", "fullName": "Wander", "followersCount": 5400, "verified": true, "biography": "maps"}}]`
	out, err := rec.HandleCallback(context.Background(), Callback{SourceID: "src-2", Stage: StageInitial, Payload: []byte(body)})
	require.NoError(t, err)

	assert.Equal(t, models.SourceStatusCompleted, out.Status)
	assert.Equal(t, KindInstagramProfile, out.Kind)
	assert.Empty(t, profiles.calls)
	assert.Equal(t, 1, store.updates)

	content := store.content(t, "src-2")
	require.NotNil(t, content.Profile)
	assert.Equal(t, "wander.lust", content.Profile.Username)
	assert.Equal(t, int64(5400), content.Profile.FollowersCount)
}

func TestPlainProfileWithUsernameAccount(t *testing.T) {
	store := newMemoryStore("src-2")
	rec, _, _ := newTestReconciler(store)

	body := `[{"account": "nomad", "followersCount": 12}]`
	_, err := rec.HandleCallback(context.Background(), Callback{SourceID: "src-2", Payload: []byte(body)})
	require.NoError(t, err)

	content := store.content(t, "src-2")
	assert.Equal(t, "nomad", content.Profile.Username)
	assert.Equal(t, int64(12), content.Profile.FollowersCount)
}

func TestReelWithoutAccountsCompletesImmediately(t *testing.T) {
	store := newMemoryStore("src-3")
	rec, profiles, _ := newTestReconciler(store)

	body := `[{"shortCode": "ABC", "url": "https://www.instagram.com/reel/ABC/"}]`
	out, err := rec.HandleCallback(context.Background(), Callback{SourceID: "src-3", Stage: StageInitial, Payload: []byte(body)})
	require.NoError(t, err)

	assert.Equal(t, models.SourceStatusCompleted, out.Status)
	assert.Empty(t, profiles.calls)
}

func TestReelRedeliveryOverwritesWithoutError(t *testing.T) {
	store := newMemoryStore("src-1")
	rec, profiles, _ := newTestReconciler(store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := rec.HandleCallback(ctx, Callback{SourceID: "src-1", Stage: StageInitial, Payload: []byte(reelCallback)})
		require.NoError(t, err)
	}
	assert.Len(t, profiles.calls, 2)
}

func TestReelRedeliveryAfterCompletionKeepsEnrichment(t *testing.T) {
	store := newMemoryStore("src-1")
	rec, _, _ := newTestReconciler(store)
	ctx := context.Background()

	_, err := rec.HandleCallback(ctx, Callback{SourceID: "src-1", Stage: StageInitial, Payload: []byte(reelCallback)})
	require.NoError(t, err)
	_, err = rec.HandleCallback(ctx, Callback{SourceID: "src-1", Stage: StageProfiles, Payload: []byte(profilesCallback)})
	require.NoError(t, err)
	_, err = rec.HandleCallback(ctx, Callback{SourceID: "src-1", Stage: StageInitial, Payload: []byte(reelCallback)})
	require.NoError(t, err)

	reel := store.content(t, "src-1").Reel
	assert.Equal(t, int64(1000), reel.Poster.FollowersCount)
	assert.True(t, reel.Poster.Enriched)
}

func TestTriggerFailureMarksRecordFailed(t *testing.T) {
	store := newMemoryStore("src-1")
	rec, profiles, _ := newTestReconciler(store)
	profiles.err = errors.New("actor quota exceeded")

	_, err := rec.HandleCallback(context.Background(), Callback{SourceID: "src-1", Stage: StageInitial, Payload: []byte(reelCallback)})
	require.ErrorIs(t, err, ErrTriggerFailed)

	stored, _ := store.Find(context.Background(), "src-1")
	assert.Equal(t, models.SourceStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ScrapedContent, "partial reel is kept")
}

func TestCallbackForUnknownRecord(t *testing.T) {
	rec, _, _ := newTestReconciler(newMemoryStore())

	_, err := rec.HandleCallback(context.Background(), Callback{SourceID: "missing", Stage: StageInitial, Payload: []byte(reelCallback)})
	require.ErrorIs(t, err, repositories.ErrNotFound)

	_, err = rec.HandleCallback(context.Background(), Callback{SourceID: "missing", Stage: StageProfiles, Payload: []byte(profilesCallback)})
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestProfilesBeforeReelAreRejected(t *testing.T) {
	rec, _, _ := newTestReconciler(newMemoryStore("src-1"))

	_, err := rec.HandleCallback(context.Background(), Callback{SourceID: "src-1", Stage: StageProfiles, Payload: []byte(profilesCallback)})
	require.ErrorIs(t, err, ErrNoContent)
}

func TestPersistenceFailureLeavesRecordUntouched(t *testing.T) {
	store := newMemoryStore("src-1")
	rec, _, _ := newTestReconciler(store)
	ctx := context.Background()

	_, err := rec.HandleCallback(ctx, Callback{SourceID: "src-1", Stage: StageInitial, Payload: []byte(reelCallback)})
	require.NoError(t, err)

	store.updateErr = errors.New("connection reset")
	_, err = rec.HandleCallback(ctx, Callback{SourceID: "src-1", Stage: StageProfiles, Payload: []byte(profilesCallback)})
	require.Error(t, err)

	stored, _ := store.Find(ctx, "src-1")
	assert.Equal(t, models.SourceStatusPending, stored.Status)
	assert.Zero(t, store.content(t, "src-1").Reel.Poster.FollowersCount)
}

func TestArchiveFailureDoesNotBlockCallback(t *testing.T) {
	store := newMemoryStore("src-2")
	rec, _, archive := newTestReconciler(store)
	archive.err = errors.New("bucket gone")

	_, err := rec.HandleCallback(context.Background(), Callback{SourceID: "src-2", Payload: []byte(`[{"account": {"username": "x"}}]`)})
	require.NoError(t, err)
}

func TestMalformedPayloadsAreRejected(t *testing.T) {
	rec, _, _ := newTestReconciler(newMemoryStore("src-1"))

	for _, body := range []string{``, `{}`, `[]`, `[1, 2]`, `[{"caption": "no owner"}]`} {
		_, err := rec.HandleCallback(context.Background(), Callback{SourceID: "src-1", Stage: StageInitial, Payload: []byte(body)})
		assert.ErrorIs(t, err, ErrUnknownPayload, "body %q", body)
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
