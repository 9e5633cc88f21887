package icecube

import (
	"fmt"
	"strings"
)

// TagAlphabet is the ordered set of protocol tags. Tags are handed out one
// per signal in declaration order, regardless of direction.
const TagAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// MaxSignals is the largest number of signals a device can hold.
const MaxSignals = len(TagAlphabet)

// ProtoHeader opens every generated protocol file.
const ProtoHeader = "Terminator = LF;\n"

// DefaultTargetFile is the file named in record INP/OUT links when no
// other target is configured.
const DefaultTargetFile = "arduino.db"

// TagFor returns the protocol tag of the signal at position i.
func TagFor(i int) (byte, error) {
	if i < 0 || i >= len(TagAlphabet) {
		return 0, fmt.Errorf("%w: position %d, alphabet holds %d tags", ErrTagExhaustion, i, len(TagAlphabet))
	}
	return TagAlphabet[i], nil
}

// generateDB concatenates the record block of every signal, in order.
func generateDB(signals []Signal, targetFile string) string {
	blocks := make([]string, 0, len(signals))
	for _, sig := range signals {
		blocks = append(blocks, sig.Record(targetFile))
	}
	return strings.Join(blocks, "")
}

// generateProto emits the protocol header followed by one function per
// signal, tagged in declaration order.
func generateProto(signals []Signal) (string, error) {
	blocks := make([]string, 0, len(signals)+1)
	blocks = append(blocks, ProtoHeader)
	for i, sig := range signals {
		tag, err := TagFor(i)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, sig.ProtoFunction(tag))
	}
	return strings.Join(blocks, ""), nil
}
