// Package profile is the seam to the external identity/profile service. The
// chat engine only needs display names, and only as best-effort snapshots.
package profile

import (
	"context"
	"sync"

	"github.com/alvenie/skillswap-chat/internal/models"
)

// PlaceholderName is used whenever a display name cannot be resolved. A
// lookup miss is recovered here, never surfaced to the user.
const PlaceholderName = "Unknown user"

// Directory resolves a user's display name. Returns models.ErrNotFound for
// unknown users.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// StaticDirectory serves names from a fixed map. It backs tests and the
// memory storage mode; production wires the marketplace profile service
// behind the same interface.
type StaticDirectory struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewStaticDirectory(names map[string]string) *StaticDirectory {
	cp := make(map[string]string, len(names))
	for k, v := range names {
		cp[k] = v
	}
	return &StaticDirectory{names: cp}
}

func (d *StaticDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	name, ok := d.names[userID]
	if !ok {
		return "", models.ErrNotFound
	}
	return name, nil
}

// SetName registers or replaces a display name.
func (d *StaticDirectory) SetName(userID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[userID] = name
}
