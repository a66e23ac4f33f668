package models

import "time"

const (
	ProbeFound   = "found"
	ProbeMissing = "missing"
	ProbeError   = "error"
)

// ProbeResult is the outcome of one HEAD request against a candidate URL.
type ProbeResult struct {
	URL           string        `json:"url"`
	Result        string        `json:"result"`
	StatusCode    int           `json:"status_code,omitempty"`
	ContentType   string        `json:"content_type,omitempty"`
	ContentLength int64         `json:"content_length,omitempty"`
	Latency       time.Duration `json:"latency_ns,omitempty"`
	Cached        bool          `json:"cached,omitempty"`
	Error         string        `json:"error,omitempty"`
	CheckedAt     time.Time     `json:"checked_at"`
}

// ProbeReport summarises a probe run.
type ProbeReport struct {
	Candidates int           `json:"candidates"`
	Found      int           `json:"found"`
	Missing    int           `json:"missing"`
	Errors     int           `json:"errors"`
	Cached     int           `json:"cached"`
	Hits       []ProbeResult `json:"hits"`
	Failures   []ProbeResult `json:"failures,omitempty"`
}

func NewProbeReport(results []ProbeResult) ProbeReport {
	rep := ProbeReport{Candidates: len(results), Hits: []ProbeResult{}}
	for _, r := range results {
		if r.Cached {
			rep.Cached++
		}
		switch r.Result {
		case ProbeFound:
			rep.Found++
			rep.Hits = append(rep.Hits, r)
		case ProbeMissing:
			rep.Missing++
		default:
			rep.Errors++
			rep.Failures = append(rep.Failures, r)
		}
	}
	return rep
}
