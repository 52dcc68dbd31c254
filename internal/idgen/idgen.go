// Package idgen generates identifiers for upstream requests, backed by nanoid.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// RequestPrefix is prepended to every request ID.
var RequestPrefix = "req_"

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated.
var Length = 9

var seq atomic.Uint64

// RequestID returns a process-unique request ID. The sequence component
// guarantees uniqueness within the process; the random suffix keeps IDs from
// separate gateway processes apart in upstream logs.
func RequestID() (string, error) {
	suffix, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return RequestPrefix + strconv.FormatUint(seq.Add(1), 10) + "_" + suffix, nil
}
