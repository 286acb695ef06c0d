package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/bunburya/uzak/internal/store"
	"github.com/bunburya/uzak/internal/util"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List locally known archives",
	Long:  `Show every archive version the local collection knows about, with its lifecycle state.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg, err := loadSettings()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rows, err := db.AllArchives()
	if err != nil {
		return fmt.Errorf("failed to read local state: %w", err)
	}
	if len(rows) == 0 {
		util.InfoLog("No archives known yet. Run 'uzak update' first.")
		return nil
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Reference != b.Reference {
			return a.Reference.String() < b.Reference.String()
		}
		// Newest version first within an identity
		return b.Created.Before(a.Created)
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARCHIVE\tVERSION\tSTATE\tSIZE\tPATH")
	for _, r := range rows {
		size := ""
		if r.SizeBytes > 0 {
			size = humanize.IBytes(uint64(r.SizeBytes))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Reference, r.Created, r.State, size, r.Path)
	}
	return w.Flush()
}
