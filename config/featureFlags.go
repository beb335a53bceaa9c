package config

import (
	"os"
	"strings"
)

// UseSharedVelocityCache enables the Redis-backed sales-velocity cache shared
// across service instances. When off, velocity is still memoized per
// allocation pass in-process; the shared cache only saves repeat queries
// across instances within its short TTL.
//
// Set via env:
// - SHARED_VELOCITY_CACHE=true
func UseSharedVelocityCache() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SHARED_VELOCITY_CACHE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// InventoryPushDryRun makes the push orchestrator compute and persist
// allocation snapshots without calling the marketplace APIs. Used when
// onboarding a new connection to review the numbers first.
//
// Set via env:
// - INVENTORY_PUSH_DRY_RUN=true
func InventoryPushDryRun() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("INVENTORY_PUSH_DRY_RUN")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
