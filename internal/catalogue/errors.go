package catalogue

import "errors"

// Domain errors for the catalogue package.
//
//	if errors.Is(err, catalogue.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when no IceCube with the given name is stored.
	ErrNotFound = errors.New("catalogue: icecube not found")

	// ErrCorruptEntry is returned when a stored document no longer builds.
	ErrCorruptEntry = errors.New("catalogue: stored document is invalid")
)
