package transport

import (
	"math/rand"
	"time"
)

const maxBackoffShift = 16

func nextBackoffDuration(minBackoff, maxBackoff time.Duration, retries int) time.Duration {
	if retries > maxBackoffShift {
		return maxBackoff
	}
	var jitter time.Duration
	if half := int64(minBackoff / 2); half > 0 {
		//nolint:gosec // it's a jitter.
		jitter = time.Duration(rand.Int63n(half))
	}
	newBackoff := (minBackoff + jitter) * (1 << retries)
	if newBackoff <= 0 || newBackoff > maxBackoff {
		return maxBackoff
	}
	return newBackoff
}
