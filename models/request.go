package models

// RunRequest is the payload for POST /api/v1/run.
type RunRequest struct {
	// URL is the page to analyze. Required. Anything other than an absolute
	// http(s) URL yields a Navigation failure analysis, not a request error.
	URL string `json:"url" binding:"required"`

	// RunID names the run and its artifact directory. Required.
	// Callers are expected to supply unique ids; concurrent runs sharing
	// an id overwrite each other's screenshots.
	RunID string `json:"run_id" binding:"required,max=128"`

	// Stealth enables anti-bot-detection evasions (e.g. navigator.webdriver masking).
	// Default: false.
	Stealth bool `json:"stealth,omitempty"`

	// BlockAds aborts requests to well-known ad and tracking domains
	// so that banners do not skew the screenshots. Default: false.
	BlockAds bool `json:"block_ads,omitempty"`

	// Headers are extra HTTP headers sent with every request the page makes.
	Headers map[string]string `json:"headers,omitempty"`

	// WebhookURL receives a run.completed event carrying the Analysis.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body (X-PageHealth-Signature).
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
