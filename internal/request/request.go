package request

import (
	"time"

	"github.com/angeloszaimis/ai-orchestrator/internal/backend"
)

// Source tells the caller where a response came from.
type Source string

const (
	SourceLive           Source = "LIVE"
	SourceCache          Source = "CACHE"
	SourceFallbackStale  Source = "FALLBACK_STALE"
	SourceFallbackStatic Source = "FALLBACK_STATIC"
)

// Degraded reports whether responses from this source are below live quality.
func (s Source) Degraded() bool {
	return s == SourceFallbackStale || s == SourceFallbackStatic
}

// Params are the semantically relevant inputs of a request.
type Params struct {
	Capability   backend.Capability `json:"capability"`
	ContentClass string             `json:"content_class"`
	Topic        string             `json:"topic"`
	AgeBracket   string             `json:"age_bracket"`
	Locale       string             `json:"locale"`
	Features     []string           `json:"features"`
}

// Request is a validated, fingerprinted unit of work for the orchestrator.
type Request struct {
	Params
	Fingerprint string
	Payload     []byte
	Priority    int
	Deadline    time.Time
}

// New normalizes and validates params and derives the fingerprint.
// A zero deadline is left for the orchestrator to fill with its default.
func New(params Params, payload []byte, priority int, deadline time.Time) (*Request, error) {
	normalized := Normalize(params)
	if err := normalized.Validate(); err != nil {
		return nil, err
	}

	return &Request{
		Params:      normalized,
		Fingerprint: Fingerprint(normalized),
		Payload:     payload,
		Priority:    priority,
		Deadline:    deadline,
	}, nil
}

// Response is what Process hands back to callers.
type Response struct {
	Payload     []byte
	Source      Source
	BackendID   string
	Degraded    bool
	Fingerprint string
}
