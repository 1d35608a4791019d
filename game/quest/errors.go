package quest

import "errors"

// Error kinds. Callers classify with errors.Is; the wrapped message carries
// the detail.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrBadRequest    = errors.New("bad request")
	ErrDataIntegrity = errors.New("data integrity")

	// ErrInvalidContent is returned when template content fails validation
	// at load time.
	ErrInvalidContent = errors.New("invalid quest content")
)
