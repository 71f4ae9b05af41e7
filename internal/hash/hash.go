// ABOUTME: Stable identity keys for feeds and feed items
// ABOUTME: Maps feed URLs and item GUIDs to lowercase hex SHA-256 digests

package hash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of every key returned by Key.
const Size = sha256.Size * 2

// Key returns the hex encoded SHA-256 digest of input.
// The mapping carries no salt, so keys survive restarts and upgrades.
func Key(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// GroupKey derives the source group key for a feed URL.
func GroupKey(feedURL string) string {
	return Key(feedURL)
}

// ItemKey derives the record key for an upstream item GUID.
func ItemKey(guid string) string {
	return Key(guid)
}
