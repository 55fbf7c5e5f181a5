// Package idhash derives stable identifiers for pipeline units and groups.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeUnitID identifies one (exchange, instrument, day) unit. Every run
// over the same day yields the same id, so the run ledger can resume and the
// completion event can be keyed by it.
func ComputeUnitID(exchange, instrumentKey, date string) string {
	return digest(exchange, instrumentKey, date)
}

// ComputeGroupID identifies an underlying group on a day. The "group" prefix
// keeps it disjoint from unit ids.
func ComputeGroupID(exchange, underlying, date string) string {
	return digest("group", exchange, underlying, date)
}

// digest is the hex SHA-256 of the parts joined by '|'.
func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
