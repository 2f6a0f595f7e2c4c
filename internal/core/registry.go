package core

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tablelift/printd/internal/db"
)

// NormalizeMAC reduces any of the representations printer firmware sends
// ("94:B8:6D:AA:BB:CC", "94b86daabbcc", "94-b8-6d-aa-bb-cc") to the canonical
// uppercase colon-separated form. Every lookup and every stored row goes
// through this, otherwise two spellings of one device become two printers.
func NormalizeMAC(raw string) (string, error) {
	var hexDigits []byte
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= '0' && c <= '9':
			hexDigits = append(hexDigits, c)
		case c >= 'a' && c <= 'f':
			hexDigits = append(hexDigits, c-'a'+'A')
		case c >= 'A' && c <= 'F':
			hexDigits = append(hexDigits, c)
		}
	}
	if len(hexDigits) != 12 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, raw)
	}

	octets := make([]string, 6)
	for i := 0; i < 6; i++ {
		octets[i] = string(hexDigits[i*2 : i*2+2])
	}
	return strings.Join(octets, ":"), nil
}

// Registry tracks the physical printers known to the service. Printers are
// created on first protocol contact and updated on every poll; there is no
// separate heartbeat channel, last_seen_at is the liveness signal.
type Registry struct {
	printers *db.PrinterStore
	now      func() time.Time
}

func NewRegistry(printers *db.PrinterStore) *Registry {
	return &Registry{printers: printers, now: time.Now}
}

// Upsert registers a protocol contact from the device with the given MAC.
// Unknown MACs create a new printer; known MACs get last_seen_at refreshed,
// last_error cleared, and name/uid/status absorbed only when non-empty.
func (r *Registry) Upsert(ctx context.Context, mac, uid, name, statusJSON string) (*db.Printer, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()

	existing, err := r.printers.GetByMAC(ctx, normalized)
	if err != nil {
		if err != sql.ErrNoRows {
			return nil, err
		}
		p := &db.Printer{
			MACAddress:     normalized,
			UID:            uid,
			Name:           name,
			LastSeenAt:     &now,
			LastStatusJSON: statusJSON,
		}
		if err := r.printers.Create(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}

	if err := r.printers.Touch(ctx, existing.ID, uid, name, statusJSON, now); err != nil {
		return nil, err
	}
	return r.printers.GetByMAC(ctx, normalized)
}

func (r *Registry) FindByMAC(ctx context.Context, mac string) (*db.Printer, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}
	return r.printers.GetByMAC(ctx, normalized)
}
