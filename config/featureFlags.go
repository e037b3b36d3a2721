package config

import (
	"os"
	"strconv"
	"strings"
)

// RequireAdjustmentApproval enforces a second pair of eyes on corrective stock:
// adjustment movements must carry an approver (supervisor or admin) before posting.
//
// Set via env:
// - STRICT_ADJUSTMENT_APPROVAL=true
func RequireAdjustmentApproval() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_ADJUSTMENT_APPROVAL")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// ReservationDefaultTTLHours is applied to new reservations created without an
// explicit expiry. Zero (the default) means reservations never expire.
//
// Set via env:
// - RESERVATION_TTL_HOURS=72
func ReservationDefaultTTLHours() int {
	v := strings.TrimSpace(os.Getenv("RESERVATION_TTL_HOURS"))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
