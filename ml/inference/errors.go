package inference

import (
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/livevision/rimage"
	"go.viam.com/livevision/services/mlmodel"
)

var (
	// ErrBusy is returned under the reject policy when a call is already in flight. The model is
	// not called.
	ErrBusy = errors.New("inference stage is busy")

	// ErrFrameDropped is returned under the queue policy to a waiting call that was replaced by a
	// newer one before the model became free.
	ErrFrameDropped = errors.New("frame replaced by a newer frame while waiting for the model")
)

// InferenceError is any failure of a single inference call. The stage stays usable after one.
//
//nolint:revive
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return "inference failed: " + e.Err.Error()
}

// Unwrap returns the cause.
func (e *InferenceError) Unwrap() error { return e.Err }

// InvalidInputError is the cause of an InferenceError when a buffer does not match the model's
// declared input.
type InvalidInputError struct {
	Want                mlmodel.InputInfo
	GotWidth, GotHeight int
	GotFormat           rimage.PixelFormat
}

func (e *InvalidInputError) Error() string {
	want := string(e.Want.Format)
	if e.Want.Width > 0 || e.Want.Height > 0 {
		want = fmt.Sprintf("%dx%d %s", e.Want.Width, e.Want.Height, e.Want.Format)
	}
	return fmt.Sprintf("invalid input: model expects %s, got %dx%d %s", want, e.GotWidth, e.GotHeight, e.GotFormat)
}

func checkInput(want mlmodel.InputInfo, buf *rimage.ImageBuffer) error {
	if buf == nil {
		return &InvalidInputError{Want: want}
	}
	mismatch := buf.Format() != want.Format ||
		(want.Width > 0 && buf.Width() != want.Width) ||
		(want.Height > 0 && buf.Height() != want.Height)
	if mismatch {
		return &InvalidInputError{Want: want, GotWidth: buf.Width(), GotHeight: buf.Height(), GotFormat: buf.Format()}
	}
	return nil
}
