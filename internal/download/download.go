// Package download implements the fetch-and-verify pipeline: it streams
// a catalog record's content to scratch space, verifies its digest and
// length, and commits the file to its final path. No row it creates is
// ever left trustworthy-looking: a failure at any step removes both the
// scratch file and the pending row.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/bunburya/uzak/internal/archive"
	"github.com/bunburya/uzak/internal/catalog"
	"github.com/bunburya/uzak/internal/util"
)

// Store is the slice of the persisted state the pipeline needs.
type Store interface {
	InsertArchive(r *archive.Row) error
	UpdateArchiveState(id int64, state archive.State) error
	UpdateArchivePath(id int64, path string) error
	UpdateArchiveDigest(id int64, sha256 string, sizeBytes int64) error
	DeleteArchive(id int64) error
}

// FetchError reports a transfer that could not be completed after
// exhausting retries, or that could not be safely verified.
type FetchError struct {
	Ref archive.Reference
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IntegrityError reports downloaded content that does not match the
// published digest or length. The offending artifact is already gone by
// the time this error is returned.
type IntegrityError struct {
	Ref        archive.Reference
	WantSHA256 string
	GotSHA256  string
	WantSize   int64
	GotSize    int64
}

func (e *IntegrityError) Error() string {
	if e.WantSize != 0 && e.WantSize != e.GotSize {
		return fmt.Sprintf("integrity check failed for %s: got %d bytes, expected %d",
			e.Ref, e.GotSize, e.WantSize)
	}
	return fmt.Sprintf("integrity check failed for %s: sha256 %s, expected %s",
		e.Ref, e.GotSHA256, e.WantSHA256)
}

// Config holds fetcher configuration
type Config struct {
	Store       Store
	ArchiveDir  string
	RetryConfig *util.RetryConfig // nil = default
	Progress    bool              // Render a progress bar during transfers
	HTTPClient  *http.Client      // nil = default client with no overall timeout
}

// Fetcher downloads and verifies archive content.
type Fetcher struct {
	store      Store
	archiveDir string
	retryCfg   *util.RetryConfig
	progress   bool
	httpClient *http.Client
}

// New creates a Fetcher.
func New(cfg *Config) *Fetcher {
	client := cfg.HTTPClient
	if client == nil {
		// No overall timeout: multi-gigabyte transfers legitimately run
		// for hours. Cancellation comes from the request context.
		client = &http.Client{}
	}
	retryCfg := cfg.RetryConfig
	if retryCfg == nil {
		retryCfg = util.DefaultRetryConfig()
	}
	return &Fetcher{
		store:      cfg.Store,
		archiveDir: cfg.ArchiveDir,
		retryCfg:   retryCfg,
		progress:   cfg.Progress,
		httpClient: client,
	}
}

// Fetch downloads the content of rec, verifies it and commits it to its
// final path. On success the returned row is persisted in state
// verifying, with its path pointing at the committed file, ready for
// promotion. On failure the row and any scratch file are gone.
func (f *Fetcher) Fetch(ctx context.Context, rec archive.Record) (*archive.Row, error) {
	if rec.SHA256 == "" {
		// Never commit bytes that cannot be checked against a published
		// digest.
		return nil, &FetchError{Ref: rec.Reference, Err: fmt.Errorf("no published digest")}
	}

	if err := os.MkdirAll(f.archiveDir, 0o755); err != nil {
		return nil, &FetchError{Ref: rec.Reference, Err: err}
	}

	if rec.SizeBytes > 0 {
		free, err := util.FreeSpace(f.archiveDir)
		if err != nil {
			util.WarnLog("Could not determine free space for %s: %v", f.archiveDir, err)
		} else if free < rec.SizeBytes {
			return nil, &FetchError{Ref: rec.Reference,
				Err: fmt.Errorf("%w: need %d bytes, %d available", util.ErrDiskFull, rec.SizeBytes, free)}
		}
	}

	finalPath := filepath.Join(f.archiveDir, rec.Reference.FileName(rec.Created))
	tempPath := fmt.Sprintf("%s.%s.part", finalPath, uuid.NewString())

	row := &archive.Row{
		Reference: rec.Reference,
		Created:   rec.Created,
		Path:      tempPath,
		State:     archive.StatePending,
	}
	if err := f.store.InsertArchive(row); err != nil {
		return nil, fmt.Errorf("failed to allocate pending row: %w", err)
	}

	abort := func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			util.WarnLog("Could not remove temp file %s: %v", tempPath, err)
		}
		if err := f.store.DeleteArchive(row.ID); err != nil {
			util.WarnLog("Could not remove pending row for %s: %v", rec.Reference, err)
		}
	}

	util.InfoLog("Downloading %s from %s", rec.Reference, rec.URL)

	// Restart the whole transfer on retry: archives are replaced
	// wholesale, never appended, so resume buys little.
	result, err := util.RetryWithBackoff(ctx, f.retryCfg, func() (transferResult, error) {
		return f.transfer(ctx, rec, tempPath)
	}, fmt.Sprintf("download %s", rec.Reference))
	if err != nil {
		abort()
		return nil, &FetchError{Ref: rec.Reference, Err: err}
	}

	if result.expectedLen > 0 && result.written != result.expectedLen {
		abort()
		return nil, &IntegrityError{
			Ref:      rec.Reference,
			WantSize: result.expectedLen,
			GotSize:  result.written,
		}
	}
	if result.digest != rec.SHA256 {
		abort()
		return nil, &IntegrityError{
			Ref:        rec.Reference,
			WantSHA256: rec.SHA256,
			GotSHA256:  result.digest,
		}
	}

	if err := f.store.UpdateArchiveDigest(row.ID, result.digest, result.written); err != nil {
		abort()
		return nil, fmt.Errorf("failed to record digest: %w", err)
	}
	if err := f.store.UpdateArchiveState(row.ID, archive.StateVerifying); err != nil {
		abort()
		return nil, fmt.Errorf("failed to mark row verifying: %w", err)
	}

	// Same-device move from scratch to final path.
	if err := os.Rename(tempPath, finalPath); err != nil {
		abort()
		return nil, &FetchError{Ref: rec.Reference, Err: fmt.Errorf("failed to commit file: %w", err)}
	}
	if err := f.store.UpdateArchivePath(row.ID, finalPath); err != nil {
		// The row still points at the (now nonexistent) temp path;
		// startup reconciliation will clear it on the next run.
		if rmErr := os.Remove(finalPath); rmErr != nil {
			util.WarnLog("Could not remove %s: %v", finalPath, rmErr)
		}
		if delErr := f.store.DeleteArchive(row.ID); delErr != nil {
			util.WarnLog("Could not remove row for %s: %v", rec.Reference, delErr)
		}
		return nil, fmt.Errorf("failed to record final path: %w", err)
	}

	row.Path = finalPath
	row.SHA256 = result.digest
	row.SizeBytes = result.written
	row.State = archive.StateVerifying

	util.SuccessLog("Downloaded and verified %s (%s)", rec.Reference, finalPath)
	return row, nil
}

type transferResult struct {
	digest      string
	written     int64
	expectedLen int64
}

// transfer performs one streaming download attempt, hashing as it
// writes. Each attempt truncates the scratch file.
func (f *Fetcher) transfer(ctx context.Context, rec archive.Record, tempPath string) (transferResult, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rec.URL, nil)
	if err != nil {
		return transferResult{}, err
	}
	req.Header.Set("User-Agent", catalog.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return transferResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("download returned status %d", resp.StatusCode)
		if resp.StatusCode >= 500 {
			// Server-side errors are worth another attempt
			err = fmt.Errorf("%w (temporary failure)", err)
		}
		return transferResult{}, err
	}

	out, err := os.Create(tempPath)
	if err != nil {
		return transferResult{}, err
	}
	defer out.Close()

	hasher := sha256.New()
	var dst io.Writer = io.MultiWriter(out, hasher)
	if f.progress {
		bar := progressbar.DefaultBytes(resp.ContentLength, rec.Reference.String())
		defer bar.Close()
		dst = io.MultiWriter(dst, bar)
	}

	start := time.Now()
	written, err := io.Copy(dst, resp.Body)
	if err != nil {
		return transferResult{}, err
	}
	if err := out.Sync(); err != nil {
		return transferResult{}, err
	}

	util.DebugLog("Transferred %d bytes for %s in %s", written, rec.Reference,
		time.Since(start).Round(time.Second))

	return transferResult{
		digest:      hex.EncodeToString(hasher.Sum(nil)),
		written:     written,
		expectedLen: resp.ContentLength,
	}, nil
}
