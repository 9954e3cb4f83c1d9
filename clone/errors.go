package clone

import (
	"errors"
	"fmt"

	"github.com/kononmatsumoto/webcloner/extract"
	"github.com/kononmatsumoto/webcloner/fetch"
	"github.com/kononmatsumoto/webcloner/synth"
	"github.com/kononmatsumoto/webcloner/urlguard"
)

// panicError carries a panic recovered inside a stage.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

var (
	errNoOutput      = errors.New("stage returned no output")
	errNoSynthesizer = errors.New("pipeline has no synthesizer")
)

// failure maps a stage error onto the taxonomy. Unrecognized errors become
// InternalError and their text is not exposed.
func failure(stage Stage, err error) *Failure {
	var (
		ue *urlguard.Error
		fe *fetch.Error
		ee *extract.Error
		se *synth.Error
	)
	f := &Failure{Stage: stage}
	var msg string
	switch {
	case errors.As(err, &ue):
		f.Category, f.Kind, msg = InvalidRequest, string(InvalidRequest), ue.Message()
	case errors.As(err, &fe):
		f.Category, f.Kind, msg = FetchError, string(fe.Kind), fe.Message()
	case errors.As(err, &ee):
		f.Category, f.Kind, msg = ExtractionError, string(ee.Kind), "could not parse the page markup"
	case errors.As(err, &se):
		f.Category, f.Kind, msg = GenerationError, string(se.Kind), se.Message()
	default:
		f.Category, f.Kind, msg = InternalError, string(InternalError), "internal error"
	}
	f.Message = string(stage) + ": " + msg
	return f
}
