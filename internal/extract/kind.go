// Package extract turns page text into typed food truck data using a
// generative model, with JSON repair and per-kind validation.
package extract

// Kind selects the prompt template and payload type.
type Kind string

const (
	KindMenu           Kind = "menu"
	KindLocation       Kind = "location"
	KindHours          Kind = "hours"
	KindSentiment      Kind = "sentiment"
	KindEnhance        Kind = "enhance"
	KindFullExtraction Kind = "fullExtraction"
)

// Kinds lists every supported extraction kind.
var Kinds = []Kind{KindMenu, KindLocation, KindHours, KindSentiment, KindEnhance, KindFullExtraction}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Status is the outcome of one extraction.
type Status string

const (
	StatusOK          Status = "ok"
	StatusRateLimited Status = "rate_limited"
	StatusParseError  Status = "parse_error"
	StatusFailed      Status = "failed"
	StatusConfigError Status = "config_error"
)
