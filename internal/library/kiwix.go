package library

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bunburya/uzak/internal/util"
)

// KiwixManage mutates a library.xml serving index by invoking the
// kiwix-manage executable.
type KiwixManage struct {
	execPath    string
	libraryPath string
}

// NewKiwixManage creates an Index backed by the kiwix-manage tool.
func NewKiwixManage(execPath, libraryPath string) *KiwixManage {
	return &KiwixManage{execPath: execPath, libraryPath: libraryPath}
}

// Register adds the archive at path to the library.
func (k *KiwixManage) Register(ctx context.Context, path string) error {
	util.DebugLog("Registering %s in library %s", path, k.libraryPath)
	out, err := exec.CommandContext(ctx, k.execPath, k.libraryPath, "add", path).CombinedOutput()
	if err != nil {
		return fmt.Errorf("kiwix-manage add failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Unregister removes the archive at path from the library. A path the
// library does not know is a no-op: deleting the file is sufficient and
// a stale library entry for a missing file self-heals on the server
// side, so there is nothing to report.
func (k *KiwixManage) Unregister(ctx context.Context, path string) error {
	out, err := exec.CommandContext(ctx, k.execPath, k.libraryPath, "show").Output()
	if err != nil {
		return fmt.Errorf("kiwix-manage show failed: %w", err)
	}

	id := findEntryID(string(out), path)
	if id == "" {
		util.DebugLog("Path %s not in library, nothing to unregister", path)
		return nil
	}

	util.DebugLog("Unregistering %s (id %s) from library %s", path, id, k.libraryPath)
	cmdOut, err := exec.CommandContext(ctx, k.execPath, k.libraryPath, "remove", id).CombinedOutput()
	if err != nil {
		return fmt.Errorf("kiwix-manage remove failed: %w (%s)", err, strings.TrimSpace(string(cmdOut)))
	}
	return nil
}

// findEntryID scans `kiwix-manage show` output for the entry whose
// path field matches path, returning its id or "". The output lists
// each entry as an "id:" line followed by attribute lines.
func findEntryID(out, path string) string {
	var latestID string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "id:"):
			fields := strings.Fields(line)
			if len(fields) > 1 {
				latestID = fields[1]
			} else {
				latestID = ""
			}
		case strings.HasPrefix(line, "path:"):
			fields := strings.Fields(line)
			if len(fields) > 1 && fields[1] == path {
				return latestID
			}
		}
	}
	return ""
}
