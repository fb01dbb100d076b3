package queue

import (
	"context"

	"huddle/cmd/internal/session"
)

// FetchRequest is one candidate-source query.
type FetchRequest struct {
	Location    session.Location
	Filters     []string
	Radius      float64
	Exclude     []string
	Preferences Preferences
	Limit       int
}

// CandidateSource finds candidates around a location.
//
// An empty result is a valid "none found" answer and must not be reported as
// an error. A source may return items together with an error; those items are
// still merged.
type CandidateSource interface {
	Fetch(ctx context.Context, req FetchRequest) ([]session.Candidate, error)
}

// SourceFunc adapts a function to CandidateSource.
type SourceFunc func(ctx context.Context, req FetchRequest) ([]session.Candidate, error)

func (f SourceFunc) Fetch(ctx context.Context, req FetchRequest) ([]session.Candidate, error) {
	return f(ctx, req)
}
