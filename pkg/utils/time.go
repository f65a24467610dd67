package utils

import "time"

// TokenFormat is the wire format for concurrency tokens. Nanosecond
// precision keeps two writes inside the same second distinguishable.
const TokenFormat = time.RFC3339Nano

// NowRFC3339 returns the current time in RFC3339 format
func NowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NowToken returns the current time formatted as a concurrency token.
func NowToken() string {
	return time.Now().UTC().Format(TokenFormat)
}

// ParseToken parses a concurrency token back into a time.
func ParseToken(s string) (time.Time, error) {
	return time.Parse(TokenFormat, s)
}
