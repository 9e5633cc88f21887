package icecube

import "errors"

// Domain errors for the icecube package.
//
// Construction wraps these with the offending value, so callers check them
// with errors.Is:
//
//	if errors.Is(err, icecube.ErrDuplicateSignal) {
//	    // report the clash to the user
//	}
var (
	// ErrInvalidName is returned when a device or signal name is empty,
	// too long, or contains characters outside [A-Za-z0-9_].
	ErrInvalidName = errors.New("icecube: invalid name")

	// ErrMissingField is returned when a required descriptor field is absent,
	// such as scanRate on a read signal.
	ErrMissingField = errors.New("icecube: missing field")

	// ErrDuplicateSignal is returned when two signals of one device are equal.
	ErrDuplicateSignal = errors.New("icecube: duplicate signal")

	// ErrUnrecognizedDirection is returned when a descriptor's RW value is
	// neither "R" nor "W".
	ErrUnrecognizedDirection = errors.New("icecube: unrecognized direction")

	// ErrTagExhaustion is returned when a device has more signals than the
	// protocol tag alphabet can address.
	ErrTagExhaustion = errors.New("icecube: protocol tags exhausted")

	// ErrInvalidScanRate is returned when a scan rate contains characters that
	// cannot be embedded in a quoted database field.
	ErrInvalidScanRate = errors.New("icecube: invalid scan rate")
)

// IsValidationError reports whether err is one of the construction errors
// above. Transport layers use it to tell bad input from internal failures.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrDuplicateSignal) ||
		errors.Is(err, ErrUnrecognizedDirection) ||
		errors.Is(err, ErrTagExhaustion) ||
		errors.Is(err, ErrInvalidScanRate)
}
