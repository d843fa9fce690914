package domain

import "errors"

var (
	// ErrUnsupportedFormat indicates a file extension the loader cannot handle.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrUnreadableFile indicates a supported file that could not be opened or parsed.
	ErrUnreadableFile = errors.New("unreadable file")

	// ErrEmptyDocument indicates a file that yielded no text after cleaning.
	ErrEmptyDocument = errors.New("document contains no text")

	// ErrModelUnavailable indicates the local model server could not be reached.
	ErrModelUnavailable = errors.New("model server unreachable")

	// ErrModelTimeout indicates the model server did not answer in time.
	ErrModelTimeout = errors.New("model server timeout")

	// ErrNotFound indicates a deletion or lookup target does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch indicates a vector whose size differs from the store's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
