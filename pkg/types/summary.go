package types

const (
	// DefaultCategory is used when a summarizer gives no usable category
	DefaultCategory = "general"
	// DefaultSentiment is used when a summarizer gives no usable sentiment
	DefaultSentiment = "neutral"
)

// SummaryResult is the structured output of one summarizer call
type SummaryResult struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Category  string   `json:"category"`
	Sentiment string   `json:"sentiment"`
}

// Normalize fills empty category and sentiment with defaults
func (r *SummaryResult) Normalize() {
	if r.Category == "" {
		r.Category = DefaultCategory
	}
	if r.Sentiment == "" {
		r.Sentiment = DefaultSentiment
	}
	if r.KeyPoints == nil {
		r.KeyPoints = []string{}
	}
}
