// Package random generates run identifiers.
package random

import "math/rand/v2"

const (
	idLen = 10
	chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// ID returns a short alphanumeric identifier used to correlate the log lines
// of one run.
func ID() string {
	result := make([]byte, idLen)
	for i := range result {
		result[i] = chars[rand.IntN(len(chars))]
	}

	return string(result)
}
