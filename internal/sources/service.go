package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarer/backend/internal/logging"
	"github.com/wayfarer/backend/internal/models"
	"github.com/wayfarer/backend/internal/places"
	"github.com/wayfarer/backend/internal/scrape"
)

var (
	// ErrInvalidURL indicates a submission whose URL cannot be ingested.
	ErrInvalidURL = errors.New("invalid url")
	// ErrIngestFailed indicates the record was created but fetching its content failed.
	ErrIngestFailed = errors.New("content ingestion failed")
)

// Store persists source records.
type Store interface {
	Create(ctx context.Context, record models.SourceRecord) error
	Find(ctx context.Context, id string) (models.SourceRecord, error)
	Update(ctx context.Context, id string, status models.SourceStatus, content json.RawMessage) error
}

// InstagramScraper starts asynchronous Instagram runs.
type InstagramScraper interface {
	StartReelScrape(ctx context.Context, reelURL, webhookURL string) (scrape.Run, error)
	StartProfileDetails(ctx context.Context, profileURL, webhookURL string) (scrape.Run, error)
}

// VideoLookup fetches YouTube metadata.
type VideoLookup interface {
	Lookup(ctx context.Context, url string) (scrape.YouTubeMetadata, error)
}

// PlaceSearcher resolves a text query to places.
type PlaceSearcher interface {
	Search(ctx context.Context, q places.Query) ([]scrape.Place, error)
}

// PageFetcher extracts metadata from a generic web page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (scrape.WebContent, error)
}

// AdminNotifier is told about each new submission.
type AdminNotifier interface {
	SourceSubmitted(ctx context.Context, record models.SourceRecord) error
}

// SubmitRequest is a URL a user wants ingested.
type SubmitRequest struct {
	URL         string
	SubmittedBy string
}

// Service creates source records and dispatches them to the fetcher for their
// platform. Instagram content completes later through scrape callbacks; other
// platforms are fetched inline.
type Service struct {
	Store      Store
	Normalizer Normalizer
	Instagram  InstagramScraper
	Videos     VideoLookup
	Places     PlaceSearcher
	Pages      PageFetcher
	Notifier   AdminNotifier

	WebhookBaseURL string
	NowFunc        func() time.Time
}

// Submit validates, normalises and records the URL, then starts ingestion. When
// ingestion fails the returned record is marked failed and the error wraps
// ErrIngestFailed.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (models.SourceRecord, error) {
	if s.Store == nil {
		return models.SourceRecord{}, errors.New("source store not configured")
	}
	if _, err := ParseURL(req.URL); err != nil {
		return models.SourceRecord{}, err
	}

	normalized, err := s.Normalizer.Normalize(ctx, req.URL)
	if err != nil {
		return models.SourceRecord{}, err
	}
	platform := Classify(normalized)
	if platform == PlatformInstagram && ClassifyInstagram(normalized) == InstagramUnknown {
		return models.SourceRecord{}, fmt.Errorf("%w: link is neither a reel nor a profile", ErrInvalidURL)
	}

	now := s.now()
	record := models.SourceRecord{
		ID:          uuid.NewString(),
		URL:         normalized,
		Platform:    string(platform),
		Status:      models.SourceStatusPending,
		SubmittedBy: strings.TrimSpace(req.SubmittedBy),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	ctx = logging.With(ctx, "sourceId", record.ID, "platform", record.Platform)
	ctx, span := logging.StartSpan(ctx, "sources.submit")
	defer span.End()

	if err := s.Store.Create(ctx, record); err != nil {
		span.Fail(err)
		return models.SourceRecord{}, fmt.Errorf("create source: %w", err)
	}
	s.notifyAdmin(ctx, record)

	content, err := s.dispatch(ctx, record)
	if err != nil {
		span.Fail(err)
		logging.FromContext(ctx).Error("ingestion failed", "error", err)
		if uerr := s.Store.Update(ctx, record.ID, models.SourceStatusFailed, nil); uerr != nil {
			logging.FromContext(ctx).Error("failed to mark source failed", "error", uerr)
		}
		record.Status = models.SourceStatusFailed
		return record, fmt.Errorf("%w: %v", ErrIngestFailed, err)
	}

	if content == nil {
		return record, nil
	}
	encoded, err := content.Encode()
	if err != nil {
		return record, err
	}
	if err := s.Store.Update(ctx, record.ID, models.SourceStatusCompleted, encoded); err != nil {
		span.Fail(err)
		return record, fmt.Errorf("store content: %w", err)
	}
	record.Status = models.SourceStatusCompleted
	record.ScrapedContent = encoded
	return record, nil
}

// dispatch starts ingestion. It returns content for platforms fetched inline and
// nil for Instagram, whose content arrives by callback.
func (s *Service) dispatch(ctx context.Context, record models.SourceRecord) (*scrape.Content, error) {
	switch Platform(record.Platform) {
	case PlatformInstagram:
		return nil, s.startInstagram(ctx, record)
	case PlatformYouTube:
		if s.Videos == nil {
			return nil, errors.New("video metadata provider not configured")
		}
		meta, err := s.Videos.Lookup(ctx, record.URL)
		if err != nil {
			return nil, err
		}
		c := scrape.YouTubeContent(meta)
		return &c, nil
	case PlatformGoogleMaps:
		return s.lookupPlace(ctx, record.URL)
	default:
		if s.Pages == nil {
			return nil, errors.New("page fetcher not configured")
		}
		page, err := s.Pages.Fetch(ctx, record.URL)
		if err != nil {
			return nil, err
		}
		c := scrape.WebContentOf(page)
		return &c, nil
	}
}

func (s *Service) startInstagram(ctx context.Context, record models.SourceRecord) error {
	if s.Instagram == nil {
		return scrape.ErrClientDisabled
	}
	webhook := scrape.WebhookURL(s.WebhookBaseURL, record.ID, scrape.StageInitial)

	var (
		run scrape.Run
		err error
	)
	switch ClassifyInstagram(record.URL) {
	case InstagramReel:
		run, err = s.Instagram.StartReelScrape(ctx, record.URL, webhook)
	case InstagramProfile:
		run, err = s.Instagram.StartProfileDetails(ctx, record.URL, webhook)
	default:
		return fmt.Errorf("%w: unsupported instagram link", ErrInvalidURL)
	}
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Info("instagram scrape started", "runId", run.ID)
	return nil
}

func (s *Service) lookupPlace(ctx context.Context, rawURL string) (*scrape.Content, error) {
	if s.Places == nil {
		return nil, errors.New("places provider not configured")
	}
	q, err := PlaceQuery(rawURL)
	if err != nil {
		return nil, err
	}
	results, err := s.Places.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no place matches %q", q.Text)
	}
	c := scrape.PlaceContent(results[0])
	return &c, nil
}

// PlaceQuery extracts a search query from a Google Maps URL. It understands
// /maps/place/<name>/@lat,lng paths and q or query parameters.
func PlaceQuery(rawURL string) (places.Query, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return places.Query{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	var q places.Query
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg == "place" && i+1 < len(segments) {
			name, err := url.PathUnescape(segments[i+1])
			if err == nil {
				q.Text = strings.TrimSpace(strings.ReplaceAll(name, "+", " "))
			}
		}
		if strings.HasPrefix(seg, "@") {
			q.Location = parseLatLng(strings.TrimPrefix(seg, "@"))
		}
	}
	if q.Text == "" {
		for _, key := range []string{"q", "query"} {
			if v := strings.TrimSpace(u.Query().Get(key)); v != "" {
				q.Text = v
				break
			}
		}
	}
	if q.Text == "" {
		return places.Query{}, fmt.Errorf("%w: no place in maps link", ErrInvalidURL)
	}
	return q, nil
}

func parseLatLng(v string) *places.LatLng {
	parts := strings.Split(v, ",")
	if len(parts) < 2 {
		return nil
	}
	lat, err1 := strconv.ParseFloat(parts[0], 64)
	lng, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &places.LatLng{Lat: lat, Lng: lng}
}

// Get returns a source record by id.
func (s *Service) Get(ctx context.Context, id string) (models.SourceRecord, error) {
	if s.Store == nil {
		return models.SourceRecord{}, errors.New("source store not configured")
	}
	return s.Store.Find(ctx, strings.TrimSpace(id))
}

func (s *Service) notifyAdmin(ctx context.Context, record models.SourceRecord) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SourceSubmitted(ctx, record); err != nil {
		logging.FromContext(ctx).Warn("admin notification failed", "error", err)
	}
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}
