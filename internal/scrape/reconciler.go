package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/wayfarer/backend/internal/logging"
	"github.com/wayfarer/backend/internal/models"
)

// ErrTriggerFailed indicates the follow-up profile scrape could not be started.
var ErrTriggerFailed = errors.New("profile scrape trigger failed")

// RecordStore is the persistence the reconciler needs. Update replaces the status
// and, when content is non-nil, the scraped content of a single row.
type RecordStore interface {
	Find(ctx context.Context, id string) (models.SourceRecord, error)
	Update(ctx context.Context, id string, status models.SourceStatus, content json.RawMessage) error
}

// ProfileScraper starts the enrichment run for a reel's accounts.
type ProfileScraper interface {
	StartProfileScrape(ctx context.Context, usernames []string, webhookURL string) (Run, error)
}

// Archiver keeps a copy of raw callback bodies.
type Archiver interface {
	Save(ctx context.Context, key string, r io.Reader) (string, error)
}

// Callback is one webhook delivery from the scraping provider.
type Callback struct {
	SourceID string
	Stage    Stage
	Payload  []byte
}

// Outcome summarises how a callback changed its record.
type Outcome struct {
	SourceID  string              `json:"sourceId"`
	Kind      Kind                `json:"kind"`
	Status    models.SourceStatus `json:"status"`
	Usernames []string            `json:"usernames,omitempty"`
	Matched   int                 `json:"matched,omitempty"`
	Dropped   []string            `json:"dropped,omitempty"`
}

// Reconciler merges asynchronous scrape callbacks into source records. Callbacks
// for one record are not serialised: concurrent deliveries race and the last
// single-row update wins.
type Reconciler struct {
	Store          RecordStore
	Profiles       ProfileScraper
	Archive        Archiver
	ArchivePrefix  string
	WebhookBaseURL string
	NowFunc        func() time.Time
}

// HandleCallback applies a callback to its record.
func (r *Reconciler) HandleCallback(ctx context.Context, cb Callback) (Outcome, error) {
	if r.Store == nil {
		return Outcome{}, errors.New("record store not configured")
	}
	cb.SourceID = strings.TrimSpace(cb.SourceID)
	if cb.SourceID == "" {
		return Outcome{}, errors.New("source id is required")
	}

	ctx = logging.With(ctx, "sourceId", cb.SourceID, "stage", string(cb.Stage))
	ctx, span := logging.StartSpan(ctx, "scrape.callback")
	defer span.End()

	r.archive(ctx, cb)

	var (
		out Outcome
		err error
	)
	switch cb.Stage {
	case StageProfiles:
		out, err = r.reconcileProfiles(ctx, cb)
	case StageInitial, "":
		out, err = r.handleInitial(ctx, cb)
	default:
		err = fmt.Errorf("unknown callback stage %q", cb.Stage)
	}
	if err != nil {
		span.Fail(err)
		return Outcome{}, err
	}
	return out, nil
}

func (r *Reconciler) handleInitial(ctx context.Context, cb Callback) (Outcome, error) {
	kind, items, err := Classify(cb.Payload)
	if err != nil {
		return Outcome{}, err
	}
	if len(items) > 1 {
		logging.FromContext(ctx).Warn("callback carried several items, using the first", "items", len(items), "kind", kind.String())
	}

	switch kind {
	case PayloadProfile:
		return r.handleProfile(ctx, cb.SourceID, items[0])
	default:
		return r.handleReel(ctx, cb.SourceID, items[0])
	}
}

// handleProfile stores a plain profile and completes the record in one step.
func (r *Reconciler) handleProfile(ctx context.Context, sourceID string, item json.RawMessage) (Outcome, error) {
	profile, err := parseProfile(item)
	if err != nil {
		return Outcome{}, err
	}
	profile.Enriched = true

	content, err := ProfileContent(profile).Encode()
	if err != nil {
		return Outcome{}, err
	}
	if err := r.Store.Update(ctx, sourceID, models.SourceStatusCompleted, content); err != nil {
		return Outcome{}, fmt.Errorf("store profile: %w", err)
	}

	logging.FromContext(ctx).Info("profile stored", "username", profile.Username)
	return Outcome{SourceID: sourceID, Kind: KindInstagramProfile, Status: models.SourceStatusCompleted}, nil
}

// handleReel stores the partial reel and, when it references any accounts, starts
// the enrichment run whose callback carries the same source id.
func (r *Reconciler) handleReel(ctx context.Context, sourceID string, item json.RawMessage) (Outcome, error) {
	logger := logging.FromContext(ctx)

	reel, err := parseReel(item, r.now())
	if err != nil {
		return Outcome{}, err
	}

	existing, err := r.Store.Find(ctx, sourceID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load record: %w", err)
	}
	if previous, err := DecodeContent(existing.ScrapedContent); err == nil && previous.Reel != nil {
		carryEnrichment(&reel, *previous.Reel)
		logger.Info("reel callback re-delivered, overwriting stored reel")
	}

	usernames := reel.Usernames()
	status := models.SourceStatusPending
	if len(usernames) == 0 {
		status = models.SourceStatusCompleted
	}

	content, err := ReelContent(reel).Encode()
	if err != nil {
		return Outcome{}, err
	}
	if err := r.Store.Update(ctx, sourceID, status, content); err != nil {
		return Outcome{}, fmt.Errorf("store reel: %w", err)
	}

	out := Outcome{SourceID: sourceID, Kind: KindInstagramReel, Status: status, Usernames: usernames}
	if len(usernames) == 0 {
		logger.Info("reel references no accounts, nothing to enrich")
		return out, nil
	}

	if err := r.triggerProfiles(ctx, sourceID, usernames); err != nil {
		logger.Error("profile scrape trigger failed", "error", err)
		if uerr := r.Store.Update(ctx, sourceID, models.SourceStatusFailed, nil); uerr != nil {
			logger.Error("failed to mark record failed", "error", uerr)
		}
		return Outcome{}, fmt.Errorf("%w: %v", ErrTriggerFailed, err)
	}

	logger.Info("reel stored, profile enrichment started", "usernames", len(usernames))
	return out, nil
}

func (r *Reconciler) triggerProfiles(ctx context.Context, sourceID string, usernames []string) error {
	if r.Profiles == nil {
		return ErrClientDisabled
	}
	webhook := WebhookURL(r.WebhookBaseURL, sourceID, StageProfiles)
	run, err := r.Profiles.StartProfileScrape(ctx, usernames, webhook)
	if err != nil {
		return err
	}
	logging.FromContext(ctx).Info("profile scrape started", "runId", run.ID)
	return nil
}

// reconcileProfiles merges enriched profiles into the stored reel. Each profile
// fills exactly one role: poster, else coauthor, else tagged user.
func (r *Reconciler) reconcileProfiles(ctx context.Context, cb Callback) (Outcome, error) {
	logger := logging.FromContext(ctx)

	items, err := decodeItems(cb.Payload)
	if err != nil {
		return Outcome{}, err
	}

	record, err := r.Store.Find(ctx, cb.SourceID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load record: %w", err)
	}
	content, err := DecodeContent(record.ScrapedContent)
	if err != nil {
		return Outcome{}, err
	}
	if content.Reel == nil {
		return Outcome{}, ErrNotReel
	}
	reel := *content.Reel

	out := Outcome{SourceID: cb.SourceID, Kind: KindInstagramReel, Status: models.SourceStatusCompleted}
	for _, item := range items {
		profile, err := parseProfile(item)
		if err != nil {
			logger.Warn("skipping unreadable profile item", "error", err)
			continue
		}
		if !assignProfile(&reel, profile) {
			logger.Warn("profile matches no account on the reel, dropping", "username", profile.Username)
			out.Dropped = append(out.Dropped, profile.Username)
			continue
		}
		out.Matched++
	}

	encoded, err := ReelContent(reel).Encode()
	if err != nil {
		return Outcome{}, err
	}
	if err := r.Store.Update(ctx, cb.SourceID, models.SourceStatusCompleted, encoded); err != nil {
		return Outcome{}, fmt.Errorf("store enriched reel: %w", err)
	}

	logger.Info("reel enrichment reconciled", "matched", out.Matched, "dropped", len(out.Dropped))
	return out, nil
}

// assignProfile replaces the stub for profile's username in its highest-priority
// role. It reports false when the username is not on the reel.
func assignProfile(reel *InstagramReel, profile InstagramProfile) bool {
	if strings.EqualFold(reel.Poster.Username, profile.Username) {
		reel.Poster = reel.Poster.merge(profile)
		return true
	}
	for i := range reel.Coauthors {
		if strings.EqualFold(reel.Coauthors[i].Username, profile.Username) {
			reel.Coauthors[i] = reel.Coauthors[i].merge(profile)
			return true
		}
	}
	for i := range reel.Tagged {
		if strings.EqualFold(reel.Tagged[i].Username, profile.Username) {
			reel.Tagged[i] = reel.Tagged[i].merge(profile)
			return true
		}
	}
	return false
}

// carryEnrichment copies profile data from a previously stored reel onto a
// re-delivered one so enrichment is never lost.
func carryEnrichment(reel *InstagramReel, previous InstagramReel) {
	known := make(map[string]InstagramProfile)
	for _, p := range append(append([]InstagramProfile{previous.Poster}, previous.Coauthors...), previous.Tagged...) {
		if p.Enriched {
			known[strings.ToLower(p.Username)] = p
		}
	}
	apply := func(p *InstagramProfile) {
		if prev, ok := known[strings.ToLower(p.Username)]; ok {
			*p = p.merge(prev)
		}
	}
	apply(&reel.Poster)
	for i := range reel.Coauthors {
		apply(&reel.Coauthors[i])
	}
	for i := range reel.Tagged {
		apply(&reel.Tagged[i])
	}
}

func decodeItems(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	var items []json.RawMessage
	if len(body) == 0 || body[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array", ErrUnknownPayload)
	}
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPayload, err)
	}
	return items, nil
}

// archive stores the raw body. Failures are logged and never block the callback.
func (r *Reconciler) archive(ctx context.Context, cb Callback) {
	if r.Archive == nil || len(cb.Payload) == 0 {
		return
	}
	stage := cb.Stage
	if stage == "" {
		stage = StageInitial
	}
	key := path.Join(r.ArchivePrefix, cb.SourceID, fmt.Sprintf("%s-%d.json", stage, r.now().UnixNano()))
	if _, err := r.Archive.Save(ctx, key, bytes.NewReader(cb.Payload)); err != nil {
		logging.FromContext(ctx).Warn("failed to archive callback", "key", key, "error", err)
	}
}

func (r *Reconciler) now() time.Time {
	if r.NowFunc != nil {
		return r.NowFunc()
	}
	return time.Now().UTC()
}
