package main

import (
	"fmt"
	"sort"

	"github.com/bunburya/uzak/internal/archive"
	"github.com/bunburya/uzak/internal/catalog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var findCmd = &cobra.Command{
	Use:   "find-archives",
	Short: "List archives available in the remote catalog",
	Long: `Scrape the remote catalog and print every available archive identity
as a ready-to-paste [[archive]] stanza for the config file.`,
	RunE: runFind,
}

func init() {
	findCmd.Flags().String("lang", "", "only show archives in this language")
	rootCmd.AddCommand(findCmd)
}

func runFind(cmd *cobra.Command, args []string) error {
	setupLogging()

	contentURL := viper.GetString("content_url")
	if contentURL == "" {
		return fmt.Errorf("content_url is required (set it in the config file or UZAK_CONTENT_URL)")
	}
	lang, _ := cmd.Flags().GetString("lang")

	records, err := catalog.NewClient(contentURL).Records(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}

	seen := make(map[archive.Reference]bool)
	var refs []archive.Reference
	for _, rec := range records {
		ref := rec.Reference.Normalize()
		if lang != "" && ref.Language != lang {
			continue
		}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Project != refs[j].Project {
			return refs[i].Project < refs[j].Project
		}
		if refs[i].Language != refs[j].Language {
			return refs[i].Language < refs[j].Language
		}
		return refs[i].Flavor < refs[j].Flavor
	})

	for _, ref := range refs {
		fmt.Printf("[[archive]]\nproject = %q\nlanguage = %q\nflavor = %q\n\n",
			ref.Project, ref.Language, ref.Flavor)
	}
	return nil
}
