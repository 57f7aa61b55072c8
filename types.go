package bananastore

// ProviderCapabilities describes one generation provider as advertised
// by the backend's capability discovery.
type ProviderCapabilities struct {
	Label           string              `json:"label"`
	Qualities       []string            `json:"qualities"`
	Ratios          []string            `json:"ratios"`
	RatioSizes      map[string]string   `json:"ratioSizes"`
	Formats         []string            `json:"formats"`
	FormatQualities map[string][]string `json:"formatQualities,omitempty"`
	RequiresKey     string              `json:"requiresKey"`
	HasKey          bool                `json:"hasKey"`
}

// ReferenceImage is an image the generation should take style or
// content cues from.
type ReferenceImage struct {
	Name        string `json:"name"`
	DataB64     string `json:"data_b64"`
	ContentType string `json:"content_type"`
}

// GenerateRequest is the payload of the generate action.
type GenerateRequest struct {
	Provider        string           `json:"provider"`
	Description     string           `json:"description"`
	Quality         string           `json:"quality"`
	Ratio           string           `json:"ratio"`
	Format          string           `json:"format"`
	Model           string           `json:"model,omitempty"`
	ReferenceImages []ReferenceImage `json:"reference_images,omitempty"`
}

// GenerateResult is what the backend returns for a finished generation.
// CostUSD is nil when the backend has no pricing for the request.
type GenerateResult struct {
	Provider            string   `json:"provider"`
	Quality             string   `json:"quality"`
	Ratio               string   `json:"ratio"`
	Format              string   `json:"format"`
	ImageDataURL        string   `json:"image_data_url"`
	UsedReferenceImages int      `json:"used_reference_images"`
	CostUSD             *float64 `json:"cost_usd"`
}

// CostSummary aggregates the session's spending. LimitUSD is nil when
// no spending limit is configured.
type CostSummary struct {
	TotalUSD   float64            `json:"total_usd"`
	LimitUSD   *float64           `json:"limit_usd"`
	ByCategory map[string]float64 `json:"by_category"`
	ByProvider map[string]float64 `json:"by_provider"`
	EntryCount int                `json:"entry_count"`
}

// CostEntry is one recorded charge in the session's spending history.
type CostEntry struct {
	Category  string         `json:"category"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Function  string         `json:"function"`
	CostUSD   float64        `json:"cost_usd"`
	Detail    map[string]any `json:"detail"`
	Timestamp string         `json:"timestamp"`
}
