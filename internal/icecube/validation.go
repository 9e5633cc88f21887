package icecube

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants.
const (
	// maxNameLength keeps name+":set" within the 60 character EPICS
	// record name limit.
	maxNameLength = 56
	namePattern   = `^[A-Za-z0-9_]+$`
)

var nameRegex = regexp.MustCompile(namePattern)

// ValidateName checks that name is a legal device or signal identifier.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidName, name, maxNameLength)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q may only contain letters, digits and underscores", ErrInvalidName, name)
	}
	return nil
}

// ValidateScanRate checks a read signal's scan rate.
func ValidateScanRate(scanRate string) error {
	if strings.TrimSpace(scanRate) == "" {
		return fmt.Errorf("%w: scanRate is required for read signals", ErrMissingField)
	}
	for _, r := range scanRate {
		if r == '"' || r == '\\' || r < ' ' || r == 0x7f {
			return fmt.Errorf("%w: %q", ErrInvalidScanRate, scanRate)
		}
	}
	return nil
}

// ValidateSignalList returns ErrDuplicateSignal for the first pair of equal
// signals in signals. Lists are short (at most the tag alphabet), so the
// pairwise scan is fine.
func ValidateSignalList(signals []Signal) error {
	for i := range signals {
		for j := i + 1; j < len(signals); j++ {
			if signals[i].Equal(signals[j]) {
				return fmt.Errorf("%w: %s at positions %d and %d",
					ErrDuplicateSignal, signals[i], i, j)
			}
		}
	}
	return nil
}
