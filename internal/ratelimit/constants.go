// Package ratelimit provides client-side token bucket limiting for M2M calls.
package ratelimit

import (
	"time"

	"github.com/scenefetch/scenefetch/internal/constants"
)

// M2M does not publish per-endpoint limits. Session calls (login, logout) are
// rare and kept on a tight bucket so that a misconfigured credential loop
// cannot lock the account; everything else shares the inventory bucket.
const (
	// InventoryRatePerSec is the sustained rate for list, options, request and retrieve calls.
	InventoryRatePerSec = 2.0

	// InventoryBurstCapacity lets a batch issue its setup calls without waiting.
	InventoryBurstCapacity = 10

	// SessionRatePerSec allows one login every 10 seconds on average.
	SessionRatePerSec = 0.1

	// SessionBurstCapacity covers login + logout in one run.
	SessionBurstCapacity = 3
)

// Warning thresholds.
const (
	// WarnWaitThreshold is the expected wait above which a warning is logged.
	WarnWaitThreshold = constants.RateLimitWarningThreshold

	// WarnMinInterval is the minimum time between consecutive warnings.
	WarnMinInterval = 10 * time.Second

	// DefaultCooldown applies after a 429 without a usable Retry-After header.
	DefaultCooldown = 5 * time.Second
)

// Scope groups M2M endpoints sharing one bucket.
type Scope string

const (
	ScopeSession   Scope = "session"
	ScopeInventory Scope = "inventory"
)

// ScopeForEndpoint maps an M2M endpoint name to its scope.
func ScopeForEndpoint(endpoint string) Scope {
	switch endpoint {
	case "login", "login-token", "logout":
		return ScopeSession
	default:
		return ScopeInventory
	}
}
