package sources

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer/backend/internal/httpclient"
	"github.com/wayfarer/backend/internal/models"
	"github.com/wayfarer/backend/internal/places"
	"github.com/wayfarer/backend/internal/repositories"
	"github.com/wayfarer/backend/internal/scrape"
)

func TestClassify(t *testing.T) {
	cases := map[string]Platform{
		"https://instagram.com/p/XYZ":                        PlatformInstagram,
		"https://www.instagram.com/wander.lust/":             PlatformInstagram,
		"https://www.youtube.com/watch?v=abc":                PlatformYouTube,
		"https://youtu.be/abc":                               PlatformYouTube,
		"https://maps.app.goo.gl/xyz":                        PlatformGoogleMaps,
		"https://www.google.com/maps/place/Belem+Tower":      PlatformGoogleMaps,
		"https://www.google.com/search?q=lisbon":             PlatformWeb,
		"https://blog.example.com/lisbon-in-three-days.html": PlatformWeb,
	}
	for raw, want := range cases {
		assert.Equal(t, want, Classify(raw), raw)
	}
}

func TestClassifyInstagram(t *testing.T) {
	assert.Equal(t, InstagramReel, ClassifyInstagram("https://instagram.com/reel/XYZ/"))
	assert.Equal(t, InstagramReel, ClassifyInstagram("https://instagram.com/p/XYZ"))
	assert.Equal(t, InstagramReel, ClassifyInstagram("https://instagram.com/alice/reel/XYZ"))
	assert.Equal(t, InstagramProfile, ClassifyInstagram("https://instagram.com/alice/"))
	assert.Equal(t, InstagramUnknown, ClassifyInstagram("https://instagram.com/explore/"))
	assert.Equal(t, InstagramUnknown, ClassifyInstagram("https://instagram.com/"))
}

func TestNormalizeRewritesPostsToReels(t *testing.T) {
	got, err := Normalizer{}.Normalize(context.Background(), "https://instagram.com/p/XYZ?igsh=abc")
	require.NoError(t, err)
	assert.Equal(t, "https://instagram.com/reel/XYZ", got)
	assert.Equal(t, PlatformInstagram, Classify(got))

	cases := map[string]string{
		"https://www.instagram.com/alice/p/XYZ/":           "https://www.instagram.com/alice/reel/XYZ/",
		"https://www.instagram.com/P/XYZ/":                 "https://www.instagram.com/reel/XYZ/",
		"https://www.instagram.com/alice/reel/XYZ/?igsh=1": "https://www.instagram.com/alice/reel/XYZ/",
		"https://www.instagram.com/p/":                     "https://www.instagram.com/p/",
		"https://www.instagram.com/alice/":                 "https://www.instagram.com/alice/",
	}
	for in, want := range cases {
		got, err := Normalizer{}.Normalize(context.Background(), in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
		if ClassifyInstagram(got) == InstagramReel {
			assert.Contains(t, got, "/reel/", in)
		}
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func redirectingClient(routes map[string]string) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		resp := &http.Response{Request: r, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(""))}
		if next, ok := routes[r.URL.String()]; ok {
			resp.StatusCode = http.StatusFound
			resp.Header.Set("Location", next)
			return resp, nil
		}
		resp.StatusCode = http.StatusOK
		return resp, nil
	})}
}

func TestNormalizeResolvesShareLinks(t *testing.T) {
	n := Normalizer{HTTP: redirectingClient(map[string]string{
		"https://www.instagram.com/share/reel/BAbc123": "https://www.instagram.com/p/C0de/?igsh=tracking",
	})}

	got, err := n.Normalize(context.Background(), "https://www.instagram.com/share/reel/BAbc123")
	require.NoError(t, err)
	assert.Equal(t, "https://www.instagram.com/reel/C0de/", got)
}

func TestNormalizeKeepsUnresolvableLinks(t *testing.T) {
	n := Normalizer{HTTP: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("network unreachable")
	})}}

	got, err := n.Normalize(context.Background(), "https://maps.app.goo.gl/abc")
	require.NoError(t, err)
	assert.Equal(t, "https://maps.app.goo.gl/abc", got)
}

func TestNormalizeDoesNotFollowRedirectsIntoPrivateNetworks(t *testing.T) {
	var hits int32
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Redirect(w, r, "https://www.instagram.com/reel/Leaked/", http.StatusFound)
	}))
	defer internal.Close()

	client := httpclient.New(httpclient.Options{BlockPrivateNetworks: true})
	guarded := client.Transport
	client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Host == "www.instagram.com" {
			return &http.Response{
				StatusCode: http.StatusFound,
				Header:     http.Header{"Location": {internal.URL + "/share"}},
				Body:       http.NoBody,
				Request:    r,
			}, nil
		}
		return guarded.RoundTrip(r)
	})

	raw := "https://www.instagram.com/share/reel/BAbc123"
	got, err := Normalizer{HTTP: client}.Normalize(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestNormalizeRejectsInvalidURLs(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/x", "not a url", "https://"} {
		_, err := Normalizer{}.Normalize(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestPlaceQuery(t *testing.T) {
	q, err := PlaceQuery("https://www.google.com/maps/place/Torre+de+Bel%C3%A9m/@38.6916,-9.2160,17z/data=abc")
	require.NoError(t, err)
	assert.Equal(t, "Torre de Belém", q.Text)
	require.NotNil(t, q.Location)
	assert.InDelta(t, 38.6916, q.Location.Lat, 1e-6)

	q, err = PlaceQuery("https://www.google.com/maps/search/?api=1&query=pastel+de+nata")
	require.NoError(t, err)
	assert.Equal(t, "pastel de nata", q.Text)

	_, err = PlaceQuery("https://www.google.com/maps")
	assert.ErrorIs(t, err, ErrInvalidURL)
}

type memoryStore struct {
	mu      sync.Mutex
	records map[string]models.SourceRecord
}

func (m *memoryStore) Create(_ context.Context, r models.SourceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = make(map[string]models.SourceRecord)
	}
	m.records[r.ID] = r
	return nil
}

func (m *memoryStore) Find(_ context.Context, id string) (models.SourceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return models.SourceRecord{}, repositories.ErrNotFound
	}
	return r, nil
}

func (m *memoryStore) Update(_ context.Context, id string, status models.SourceStatus, content json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return repositories.ErrNotFound
	}
	r.Status = status
	if content != nil {
		r.ScrapedContent = content
	}
	m.records[id] = r
	return nil
}

type stubInstagram struct {
	reels    []string
	profiles []string
	webhooks []string
	err      error
}

func (s *stubInstagram) StartReelScrape(_ context.Context, u, webhook string) (scrape.Run, error) {
	s.reels = append(s.reels, u)
	s.webhooks = append(s.webhooks, webhook)
	return scrape.Run{ID: "run"}, s.err
}

func (s *stubInstagram) StartProfileDetails(_ context.Context, u, webhook string) (scrape.Run, error) {
	s.profiles = append(s.profiles, u)
	s.webhooks = append(s.webhooks, webhook)
	return scrape.Run{ID: "run"}, s.err
}

type stubVideos struct{ err error }

func (s stubVideos) Lookup(context.Context, string) (scrape.YouTubeMetadata, error) {
	return scrape.YouTubeMetadata{Title: "Lisbon in 4K"}, s.err
}

type stubPlaces struct{ queries []places.Query }

func (s *stubPlaces) Search(_ context.Context, q places.Query) ([]scrape.Place, error) {
	s.queries = append(s.queries, q)
	return []scrape.Place{{PlaceID: "p1", Name: q.Text}}, nil
}

type stubPages struct{}

func (stubPages) Fetch(_ context.Context, u string) (scrape.WebContent, error) {
	return scrape.WebContent{URL: u, Title: "A blog"}, nil
}

type stubNotifier struct{ err error }

func (s stubNotifier) SourceSubmitted(context.Context, models.SourceRecord) error { return s.err }

func newTestService() (*Service, *memoryStore, *stubInstagram, *stubPlaces) {
	store := &memoryStore{}
	ig := &stubInstagram{}
	pl := &stubPlaces{}
	return &Service{
		Store:          store,
		Instagram:      ig,
		Videos:         stubVideos{},
		Places:         pl,
		Pages:          stubPages{},
		Notifier:       stubNotifier{err: errors.New("smtp down")},
		WebhookBaseURL: "https://api.wayfarer.test",
		NowFunc:        func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	}, store, ig, pl
}

func TestSubmitInstagramPostStartsReelScrape(t *testing.T) {
	svc, store, ig, _ := newTestService()

	record, err := svc.Submit(context.Background(), SubmitRequest{URL: "https://instagram.com/p/XYZ", SubmittedBy: "ana@example.com"})
	require.NoError(t, err)

	assert.Equal(t, models.SourceStatusPending, record.Status)
	assert.Equal(t, "https://instagram.com/reel/XYZ", record.URL)
	assert.Equal(t, []string{"https://instagram.com/reel/XYZ"}, ig.reels)
	assert.Equal(t, "https://api.wayfarer.test/api/v1/webhooks/instagram/"+record.ID, ig.webhooks[0])

	stored, err := store.Find(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusPending, stored.Status)
}

func TestSubmitInstagramProfileStartsDetailsScrape(t *testing.T) {
	svc, _, ig, _ := newTestService()

	_, err := svc.Submit(context.Background(), SubmitRequest{URL: "https://www.instagram.com/wander.lust/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.instagram.com/wander.lust/"}, ig.profiles)
}

func TestSubmitYouTubeCompletesInline(t *testing.T) {
	svc, store, _, _ := newTestService()

	record, err := svc.Submit(context.Background(), SubmitRequest{URL: "https://youtu.be/abc"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusCompleted, record.Status)

	stored, _ := store.Find(context.Background(), record.ID)
	content, err := scrape.DecodeContent(stored.ScrapedContent)
	require.NoError(t, err)
	assert.Equal(t, "Lisbon in 4K", content.YouTube.Title)
}

func TestSubmitMapsAndWeb(t *testing.T) {
	svc, _, _, pl := newTestService()

	record, err := svc.Submit(context.Background(), SubmitRequest{URL: "https://www.google.com/maps/place/Belem+Tower/@38.69,-9.21,17z"})
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusCompleted, record.Status)
	require.Len(t, pl.queries, 1)
	assert.Equal(t, "Belem Tower", pl.queries[0].Text)

	record, err = svc.Submit(context.Background(), SubmitRequest{URL: "https://blog.example.com/post"})
	require.NoError(t, err)
	assert.Equal(t, string(PlatformWeb), record.Platform)
	assert.Equal(t, models.SourceStatusCompleted, record.Status)
}

func TestSubmitMarksFailedWhenFetchFails(t *testing.T) {
	svc, store, _, _ := newTestService()
	svc.Videos = stubVideos{err: errors.New("yt-dlp exited 1")}

	record, err := svc.Submit(context.Background(), SubmitRequest{URL: "https://www.youtube.com/watch?v=abc"})
	require.ErrorIs(t, err, ErrIngestFailed)
	assert.Equal(t, models.SourceStatusFailed, record.Status)

	stored, _ := store.Find(context.Background(), record.ID)
	assert.Equal(t, models.SourceStatusFailed, stored.Status)
}

func TestSubmitRejectsBadInputWithoutSideEffects(t *testing.T) {
	svc, store, ig, _ := newTestService()

	for _, raw := range []string{"", "mailto:a@b.c", "https://instagram.com/explore/"} {
		_, err := svc.Submit(context.Background(), SubmitRequest{URL: raw})
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
	assert.Empty(t, store.records)
	assert.Empty(t, ig.reels)
}

func TestGet(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}
