package protocol

import "github.com/cockroachdb/errors"

// Error kinds. Concrete errors wrap one of these, so callers match with errors.Is.
var (
	ErrFormat          = errors.New("protocol: malformed key text")
	ErrValidation      = errors.New("protocol: validation failed")
	ErrTruncated       = errors.New("protocol: truncated data")
	ErrMissingField    = errors.New("protocol: missing field")
	ErrCapacity        = errors.New("protocol: capacity exceeded")
	ErrUnsupportedType = errors.New("protocol: unsupported wire type")
	ErrRemoteRejected  = errors.New("protocol: remote rejected request")
)

func Formatf(format string, args ...any) error {
	return errors.Wrapf(ErrFormat, format, args...)
}

func Validationf(format string, args ...any) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

func Truncatedf(format string, args ...any) error {
	return errors.Wrapf(ErrTruncated, format, args...)
}

// IsCodecError reports whether err originates from malformed input rather than
// from a transport or remote failure.
func IsCodecError(err error) bool {
	return errors.IsAny(err,
		ErrFormat,
		ErrValidation,
		ErrTruncated,
		ErrMissingField,
		ErrCapacity,
		ErrUnsupportedType,
	)
}
