// Package notify delivers domain notifications to real-time subscribers.
// Delivery is at-most-once and best-effort: a failed publish never fails
// the transaction that produced the event.
package notify

import (
	"context"
	"time"
)

// EventLicenseRevoked is the event type published when a license is revoked.
const EventLicenseRevoked = "license.revoked"

// RevokedEvent carries the payload broadcast on license revocation.
type RevokedEvent struct {
	LicenseUUID string    `json:"license_uuid"`
	RevokedAt   time.Time `json:"revoked_at"`
}

// Publisher broadcasts domain events.
type Publisher interface {
	PublishLicenseRevoked(ctx context.Context, event RevokedEvent) error
}

// Nop discards every event. Used when no broadcast transport is configured.
type Nop struct{}

// PublishLicenseRevoked drops the event.
func (Nop) PublishLicenseRevoked(context.Context, RevokedEvent) error { return nil }
