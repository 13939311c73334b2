package camera

import (
	"github.com/pkg/errors"
)

// AcquisitionError means the capture device could not be opened. It prevents the source from
// starting.
type AcquisitionError struct {
	Source string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return "cannot acquire capture device for " + e.Source + ": " + e.Err.Error()
}

// Unwrap returns the cause.
func (e *AcquisitionError) Unwrap() error { return e.Err }

// ErrNoConsumer is returned when a source is built without a consumer.
var ErrNoConsumer = errors.New("frame source needs a consumer")
