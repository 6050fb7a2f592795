// Package store defines the record store ports the ledger engine is fed
// from. Implementations live in store/memory and storage.
package store

import (
	"context"
	"strings"

	"tracker/internal/core"
)

// Filter narrows a listing to records whose payload Field equals Value.
// The zero Filter matches everything.
type Filter struct {
	Field string
	Value string
}

// Matches reports whether r passes the filter. Comparison is on the
// trimmed string form of the field.
func (f Filter) Matches(r core.Record) bool {
	if f.Field == "" {
		return true
	}
	return r.Payload.String(f.Field) == strings.TrimSpace(f.Value)
}

// Patch is a partial update. A nil Date keeps the stored date; nil values
// in Fields remove the key.
type Patch struct {
	Date       any             `json:"date,omitempty"`
	DateFormat core.DateFormat `json:"dateFormat,omitempty"`
	Fields     core.Payload    `json:"fields,omitempty"`
}

// Apply returns r with the patch applied.
func (p Patch) Apply(r core.Record) core.Record {
	return r.Patch(p.Date, p.DateFormat, p.Fields)
}

// Ports for record store adapters.
type (
	Lister interface {
		List(ctx context.Context, kind core.Kind, filter Filter) ([]core.Record, error)
	}

	Writer interface {
		// Create stores r and returns it with its assigned ID.
		Create(ctx context.Context, r core.Record) (core.Record, error)
		// Update applies patch to the record and returns the stored result.
		// Unknown IDs fail with core.ErrRecordNotFound.
		Update(ctx context.Context, kind core.Kind, id string, patch Patch) (core.Record, error)
		// Delete removes the record. Unknown IDs fail with core.ErrRecordNotFound.
		Delete(ctx context.Context, kind core.Kind, id string) error
	}

	// Subscriber delivers the full snapshot of a kind after every change,
	// and once right away. The returned func stops the subscription.
	Subscriber interface {
		Subscribe(kind core.Kind, fn func([]core.Record)) (cancel func())
	}

	Store interface {
		Lister
		Writer
		Close() error
	}
)
