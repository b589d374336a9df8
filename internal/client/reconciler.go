package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/Tyrowin/roomrelay/internal/room"
)

// RoomLister fetches the authoritative room list.
type RoomLister interface {
	ListRooms(ctx context.Context) ([]RoomSnapshot, error)
}

// Reconciler merges the authoritative room list into a directory. It keeps
// no state between ticks besides the directory it writes to.
type Reconciler struct {
	dir      *room.Directory
	lister   RoomLister
	interval time.Duration
	log      *slog.Logger
}

// NewReconciler returns a Reconciler ticking every interval (never less than
// MinRefreshInterval).
func NewReconciler(dir *room.Directory, lister RoomLister, interval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		dir:      dir,
		lister:   lister,
		interval: max(interval, MinRefreshInterval),
		log:      logger,
	}
}

// Run ticks once immediately and then on every interval until ctx is done.
// A slow fetch does not delay the next tick; overlapping merges converge.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	go r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go r.Tick(ctx)
		}
	}
}

// Tick fetches the room list and merges it. A failed fetch is logged and
// leaves the directory untouched; the next tick is the retry.
func (r *Reconciler) Tick(ctx context.Context) error {
	rooms, err := r.lister.ListRooms(ctx)
	if err != nil {
		r.log.Warn("reconcile.fetch.failed", "err", err)
		return err
	}
	r.Merge(rooms)
	return nil
}

// Merge applies an authoritative list. Known rooms get name and image
// updated in place and keep their message log; unknown rooms are created
// with the history provided. Rooms missing from the list are left alone.
//
// Presence is checked at merge time, not fetch time, so a room that appeared
// while the fetch was in flight is updated rather than replaced.
func (r *Reconciler) Merge(rooms []RoomSnapshot) {
	created := 0
	for _, snap := range rooms {
		if existing, ok := r.dir.Get(snap.ID); ok {
			existing.Update(snap.Name, snap.Image)
			continue
		}
		got, isNew := r.dir.CreateOrIgnore(snap.ID, snap.Name, snap.Image, snap.Messages)
		if !isNew {
			got.Update(snap.Name, snap.Image)
			continue
		}
		created++
	}
	r.log.Debug("reconcile.merged", "rooms", len(rooms), "created", created)
}
