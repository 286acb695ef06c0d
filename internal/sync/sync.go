// Package sync implements the archive synchronization engine: it diffs
// the remote catalog against the local collection, downloads and
// verifies what is missing or stale, and drives each archive through
// its lifecycle so the filesystem, the persisted state and the serving
// index stay consistent.
package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	gosync "sync"

	"github.com/bunburya/uzak/internal/archive"
	"github.com/bunburya/uzak/internal/catalog"
	"github.com/bunburya/uzak/internal/download"
	"github.com/bunburya/uzak/internal/library"
	"github.com/bunburya/uzak/internal/util"
)

// Store is the persisted-state contract the engine requires. Satisfied
// by *store.Store; mutation ordering, not transactions, keeps the
// collection consistent.
type Store interface {
	download.Store
	ActiveArchive(ref archive.Reference) (*archive.Row, error)
	FindArchives(ref archive.Reference) ([]*archive.Row, error)
	ArchivesInStates(states ...archive.State) ([]*archive.Row, error)
}

// Pipeline downloads and verifies one catalog record. Satisfied by
// *download.Fetcher.
type Pipeline interface {
	Fetch(ctx context.Context, rec archive.Record) (*archive.Row, error)
}

// ConfirmFunc is asked, once, whether to proceed with the planned
// downloads. Returning false aborts the run before any transfer.
type ConfirmFunc func(count int, totalBytes int64) bool

// Config holds engine configuration.
type Config struct {
	Store       Store
	Source      catalog.Source
	Pipeline    Pipeline
	Index       library.Index
	Desired     []archive.Reference
	Retention   Retention
	Concurrency int         // Parallel transfers; default 1
	Confirm     ConfirmFunc // nil = proceed without asking
}

// Engine is the top-level sync driver.
type Engine struct {
	store       Store
	source      catalog.Source
	pipeline    Pipeline
	coord       *Coordinator
	desired     []archive.Reference
	concurrency int
	confirm     ConfirmFunc
}

// New creates an Engine.
func New(cfg *Config) *Engine {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		// Serial by default, out of courtesy to the remote mirror
		concurrency = 1
	}
	return &Engine{
		store:       cfg.Store,
		source:      cfg.Source,
		pipeline:    cfg.Pipeline,
		coord:       NewCoordinator(cfg.Store, cfg.Index, cfg.Retention),
		desired:     cfg.Desired,
		concurrency: concurrency,
		confirm:     cfg.Confirm,
	}
}

// planned is one identity cleared for download.
type planned struct {
	ref archive.Reference
	rec archive.Record
}

// Run performs one full sync: startup reconciliation, catalog fetch,
// match, diff, optional confirmation, then transfer and promotion per
// identity. Per-identity failures land in the report and never abort
// the run; the returned error is reserved for conditions that make the
// whole run unsafe or impossible.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if err := e.reconcile(); err != nil {
		return nil, err
	}

	records, err := e.source.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	util.DebugLog("Catalog lists %d archives", len(records))

	report := &Report{}
	matched := Match(e.desired, records)
	for _, ref := range matched.Unavailable {
		util.WarnLog("No catalog entry for %s", ref)
		report.add(ref, OutcomeUnavailable, nil)
	}
	for _, ref := range matched.Ambiguous {
		util.WarnLog("Ambiguous catalog entries for %s, skipping", ref)
		report.add(ref, OutcomeAmbiguous, errors.New("multiple indistinguishable catalog entries"))
	}

	var queue []planned
	for ref, rec := range matched.Selected {
		if err := e.source.ResolveDigest(ctx, &rec); err != nil {
			// Without a digest the differ falls back to dates alone and
			// the pipeline will refuse to commit; the identity still
			// gets a precise outcome below.
			util.WarnLog("Could not resolve digest for %s: %v", ref, err)
		}

		rows, err := e.store.FindArchives(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to read local state: %w", err)
		}

		switch Diff(rec, rows) {
		case DiffCurrent:
			util.DebugLog("%s is up to date", ref)
			report.add(ref, OutcomeUnchanged, nil)
		case DiffAbsent, DiffStale:
			queue = append(queue, planned{ref: ref, rec: rec})
		}
	}

	if len(queue) == 0 {
		return report, nil
	}

	if e.confirm != nil {
		var totalBytes int64
		for _, p := range queue {
			totalBytes += p.rec.SizeBytes
		}
		if !e.confirm(len(queue), totalBytes) {
			util.InfoLog("Aborting at user request.")
			return report, util.ErrAborted
		}
	}

	e.process(ctx, queue, report)
	return report, nil
}

// process runs the download pipeline and coordinator for each planned
// identity with bounded concurrency. Identities are independent: a
// failure on one never stops the others.
func (e *Engine) process(ctx context.Context, queue []planned, report *Report) {
	workers := e.concurrency
	if workers > len(queue) {
		workers = len(queue)
	}

	work := make(chan planned)
	var mu gosync.Mutex
	var wg gosync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range work {
				ref, kind, err := e.processOne(ctx, p)
				mu.Lock()
				report.add(ref, kind, err)
				mu.Unlock()
			}
		}()
	}

	for _, p := range queue {
		select {
		case <-ctx.Done():
			// Stop handing out new transfers; in-flight ones see the
			// same cancellation and clean up after themselves.
			close(work)
			wg.Wait()
			return
		case work <- p:
		}
	}
	close(work)
	wg.Wait()
}

func (e *Engine) processOne(ctx context.Context, p planned) (archive.Reference, OutcomeKind, error) {
	row, err := e.pipeline.Fetch(ctx, p.rec)
	if err != nil {
		var integrityErr *download.IntegrityError
		if errors.As(err, &integrityErr) {
			util.ErrorLog("%v", err)
			return p.ref, OutcomeIntegrityFailed, err
		}
		util.ErrorLog("%v", err)
		return p.ref, OutcomeFetchFailed, err
	}

	if err := e.coord.Promote(ctx, row); err != nil {
		util.ErrorLog("%v", err)
		var regErr *RegistrationError
		if errors.As(err, &regErr) {
			return p.ref, OutcomeRegistrationFailed, err
		}
		// A store failure mid-promotion is not a library problem;
		// report it as its own kind so retries target the right thing.
		return p.ref, OutcomePromotionFailed, err
	}
	return p.ref, OutcomeDownloaded, nil
}

// reconcile discards scratch state left by a prior interrupted run.
// Rows in pending or verifying were never promoted and their files,
// temp or committed, must not be mistaken for valid artifacts.
func (e *Engine) reconcile() error {
	leftovers, err := e.store.ArchivesInStates(archive.StatePending, archive.StateVerifying)
	if err != nil {
		return fmt.Errorf("failed to read persisted state: %w", err)
	}

	for _, row := range leftovers {
		util.WarnLog("Discarding interrupted %s download of %s (%s)", row.State, row.Reference, row.Path)
		if err := os.Remove(row.Path); err != nil && !os.IsNotExist(err) {
			// Keep the row so the file is not orphaned; the next run
			// will try the removal again.
			util.WarnLog("Could not remove %s: %v (row kept for a future run)", row.Path, err)
			continue
		}
		if err := e.store.DeleteArchive(row.ID); err != nil {
			return fmt.Errorf("failed to discard stale row for %s: %w", row.Reference, err)
		}
	}
	return nil
}
