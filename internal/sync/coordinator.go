package sync

import (
	"context"
	"fmt"
	"os"
	gosync "sync"

	"github.com/bunburya/uzak/internal/archive"
	"github.com/bunburya/uzak/internal/library"
	"github.com/bunburya/uzak/internal/util"
)

// RegistrationError reports a serving-index mutation that failed. The
// previously active version, if any, is still active and still served.
type RegistrationError struct {
	Ref archive.Reference
	Err error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration failed for %s: %v", e.Ref, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Retention controls what happens to superseded archive versions.
type Retention struct {
	// DeleteOld removes a superseded version's file once its successor
	// is registered.
	DeleteOld bool
	// KeepTombstones retains the deleted row in the store instead of
	// removing it.
	KeepTombstones bool
}

// coordStore is the slice of the persisted state the coordinator needs.
type coordStore interface {
	ActiveArchive(ref archive.Reference) (*archive.Row, error)
	UpdateArchiveState(id int64, state archive.State) error
	DeleteArchive(id int64) error
}

// Coordinator drives verified downloads through promotion and applies
// the retention policy to the versions they supersede. All serving
// index and store mutations funnel through here, serialized: the index
// tool is a single-writer resource even when transfers are parallel.
type Coordinator struct {
	store     coordStore
	index     library.Index
	retention Retention

	mu gosync.Mutex
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(store coordStore, index library.Index, retention Retention) *Coordinator {
	return &Coordinator{store: store, index: index, retention: retention}
}

// Promote takes a verified row (state verifying, file at its final
// path) and makes it the active version for its identity: register in
// the serving index, then mark active, then retire the previous active
// version. Registration failure leaves the previous version active and
// serving; the new row stays verifying and is cleared by the next run's
// startup reconciliation.
func (c *Coordinator) Promote(ctx context.Context, row *archive.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, err := c.store.ActiveArchive(row.Reference)
	if err != nil {
		return fmt.Errorf("failed to look up active version: %w", err)
	}

	if err := c.index.Register(ctx, row.Path); err != nil {
		return &RegistrationError{Ref: row.Reference, Err: err}
	}

	// The previous version steps aside only now that its successor is
	// confirmed registered. The store allows one active row per
	// identity, so the supersede must land before the activation.
	if prev != nil {
		if err := c.store.UpdateArchiveState(prev.ID, archive.StateSuperseded); err != nil {
			return fmt.Errorf("failed to supersede previous version: %w", err)
		}
	}
	if err := c.store.UpdateArchiveState(row.ID, archive.StateActive); err != nil {
		return fmt.Errorf("failed to activate new version: %w", err)
	}
	row.State = archive.StateActive
	util.SuccessLog("Activated %s (%s)", row.Reference, row.Created)

	if prev != nil {
		prev.State = archive.StateSuperseded
		if c.retention.DeleteOld {
			c.retire(ctx, prev)
		}
	}

	return nil
}

// retire removes a superseded version's file, unregisters it from the
// serving index and records the deletion. Failures are reported and
// left for a future run to retry; they never fail the promotion that
// triggered them.
func (c *Coordinator) retire(ctx context.Context, old *archive.Row) {
	util.InfoLog("Deleting superseded version of %s (%s)", old.Reference, old.Path)

	if err := os.Remove(old.Path); err != nil && !os.IsNotExist(err) {
		util.WarnLog("Could not delete %s: %v (left superseded for a future run)", old.Path, err)
		return
	}
	if err := c.index.Unregister(ctx, old.Path); err != nil {
		util.WarnLog("Could not unregister %s from serving index: %v", old.Path, err)
	}

	if c.retention.KeepTombstones {
		if err := c.store.UpdateArchiveState(old.ID, archive.StateDeleted); err != nil {
			util.WarnLog("Could not record deletion of %s: %v", old.Reference, err)
		}
		return
	}
	if err := c.store.DeleteArchive(old.ID); err != nil {
		util.WarnLog("Could not remove row for deleted %s: %v", old.Reference, err)
	}
}
