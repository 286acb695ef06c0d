package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bunburya/uzak/internal/catalog"
	"github.com/bunburya/uzak/internal/download"
	"github.com/bunburya/uzak/internal/library"
	"github.com/bunburya/uzak/internal/store"
	"github.com/bunburya/uzak/internal/sync"
	"github.com/bunburya/uzak/internal/util"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Synchronize the local collection with the remote catalog",
	Long: `Check the remote catalog for new versions of the configured archives,
download and verify anything missing or outdated, register new versions
in the kiwix library and retire the versions they replace.

Interrupted downloads are discarded and restarted on the next run. A
new version only replaces the old one after its checksum has been
verified and it has been registered in the library.`,
	RunE: runUpdate,
}

func init() {
	updateCmd.Flags().BoolP("prompt", "p", false, "show what would be downloaded and ask for confirmation")
	updateCmd.Flags().Int("concurrency", 0, "parallel downloads (default 1)")
	viper.BindPFlag("concurrency", updateCmd.Flags().Lookup("concurrency"))
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	setupLogging()

	// A second signal falls through to the default handler and kills
	// the process outright.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadSettings()
	if err != nil {
		return err
	}
	if len(cfg.Desired) == 0 {
		return fmt.Errorf("no archives configured (add [[archive]] entries to the config file)")
	}

	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}

	util.InfoLog("Opening database: %s", cfg.DBPath)
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	prompt, _ := cmd.Flags().GetBool("prompt")
	var confirm sync.ConfirmFunc
	if prompt {
		confirm = promptConfirm
	}

	interactive := util.IsTerminal(os.Stdout.Fd())
	engine := sync.New(&sync.Config{
		Store:  db,
		Source: catalog.NewClient(cfg.ContentURL),
		Pipeline: download.New(&download.Config{
			Store:      db,
			ArchiveDir: cfg.ArchiveDir,
			Progress:   interactive && !viper.GetBool("quiet"),
		}),
		Index:   library.NewKiwixManage(cfg.KiwixManageExec, cfg.LibraryPath),
		Desired: cfg.Desired,
		Retention: sync.Retention{
			DeleteOld:      cfg.DeleteOld,
			KeepTombstones: cfg.KeepTombstones,
		},
		Concurrency: cfg.Concurrency,
		Confirm:     confirm,
	})

	util.InfoLog("Checking %s for %d configured archives", cfg.ContentURL, len(cfg.Desired))
	startTime := time.Now()

	report, err := engine.Run(ctx)
	if errors.Is(err, util.ErrAborted) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	printReport(report, time.Since(startTime))
	if len(report.Failures()) > 0 {
		return fmt.Errorf("%d of %d archives failed to update", len(report.Failures()), len(report.Outcomes))
	}
	return nil
}

// promptConfirm shows the planned work and reads y/N from stdin.
func promptConfirm(count int, totalBytes int64) bool {
	fmt.Printf("About to download %d archive(s), %s in total. Proceed? [y/N] ",
		count, humanize.IBytes(uint64(totalBytes)))
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printReport(report *sync.Report, elapsed time.Duration) {
	counts := report.Counts()

	util.InfoLog("")
	util.SuccessLog("=== Update Summary ===")
	util.InfoLog("Total time: %v", elapsed.Round(time.Millisecond))
	if n := counts[sync.OutcomeDownloaded]; n > 0 {
		util.SuccessLog("  Downloaded: %d", n)
	}
	if n := counts[sync.OutcomeUnchanged]; n > 0 {
		util.InfoLog("  Up to date: %d", n)
	}
	if n := counts[sync.OutcomeUnavailable]; n > 0 {
		util.WarnLog("  Not in catalog: %d", n)
	}
	if n := counts[sync.OutcomeAmbiguous]; n > 0 {
		util.WarnLog("  Ambiguous: %d", n)
	}

	failures := report.Failures()
	if len(failures) > 0 {
		util.InfoLog("")
		util.WarnLog("Failures:")
		for _, o := range failures {
			util.ErrorLog("  %s", o)
		}
	}
}
