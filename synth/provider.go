package synth

import "context"

// Prompt is one generation request: fixed instructions plus the
// page-specific payload.
type Prompt struct {
	System string
	User   string
}

// Provider is a generative text model. Implementations return the raw model
// text; cleaning and validation happen in the Synthesizer. Errors should be
// *Error so the retry policy can classify them.
type Provider interface {
	Name() string
	Generate(ctx context.Context, p Prompt) (string, error)
}
