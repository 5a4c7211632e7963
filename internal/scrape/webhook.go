package scrape

import (
	"net/url"
	"strings"
)

// WebhookSecretHeader carries the shared secret on provider callbacks.
const WebhookSecretHeader = "X-Webhook-Secret"

// Stage says which step of the pipeline a callback belongs to. It is encoded in
// the webhook URL registered with the provider, so it never depends on the body.
type Stage string

const (
	StageInitial  Stage = "initial"
	StageProfiles Stage = "profiles"
)

// WebhookURL builds the callback URL for a source record and stage.
func WebhookURL(baseURL, sourceID string, stage Stage) string {
	u := strings.TrimRight(baseURL, "/") + "/api/v1/webhooks/instagram/" + url.PathEscape(sourceID)
	if stage == StageProfiles {
		u += "/profiles"
	}
	return u
}
