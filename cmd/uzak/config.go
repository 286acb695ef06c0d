package main

import (
	"fmt"
	"path/filepath"

	"github.com/bunburya/uzak/internal/archive"
	"github.com/bunburya/uzak/internal/util"
	"github.com/spf13/viper"
)

// settings is the fully resolved configuration for a run: viper keys
// (flag > env > config file > default) plus the paths derived from
// base_dir.
type settings struct {
	ContentURL      string
	BaseDir         string
	DeleteOld       bool
	KeepTombstones  bool
	KiwixManageExec string
	Concurrency     int
	Desired         []archive.Reference

	// Derived from BaseDir
	ArchiveDir  string
	LibraryPath string
	DBPath      string
}

// archiveStanza is one [[archive]] table from the config file.
type archiveStanza struct {
	Project  string `mapstructure:"project"`
	Language string `mapstructure:"language"`
	Flavor   string `mapstructure:"flavor"`
}

func loadSettings() (*settings, error) {
	s := &settings{
		ContentURL:      viper.GetString("content_url"),
		BaseDir:         viper.GetString("base_dir"),
		DeleteOld:       viper.GetBool("delete_old"),
		KeepTombstones:  viper.GetBool("keep_tombstones"),
		KiwixManageExec: viper.GetString("kiwix_manage_exec"),
		Concurrency:     viper.GetInt("concurrency"),
	}
	if s.ContentURL == "" {
		return nil, fmt.Errorf("%w: content_url is required (set it in the config file or UZAK_CONTENT_URL)", util.ErrInvalidConfig)
	}
	if s.BaseDir == "" {
		return nil, fmt.Errorf("%w: base_dir is required (set it in the config file or UZAK_BASE_DIR)", util.ErrInvalidConfig)
	}
	if s.KiwixManageExec == "" {
		s.KiwixManageExec = "kiwix-manage"
	}

	var stanzas []archiveStanza
	if err := viper.UnmarshalKey("archive", &stanzas); err != nil {
		return nil, fmt.Errorf("%w: invalid archive list: %v", util.ErrInvalidConfig, err)
	}
	for _, a := range stanzas {
		// Flavor may legitimately be empty: some catalog entries have
		// no flavor at all.
		if a.Project == "" || a.Language == "" {
			return nil, fmt.Errorf("%w: each [[archive]] entry needs project and language (got %+v)", util.ErrInvalidConfig, a)
		}
		s.Desired = append(s.Desired, archive.NewReference(a.Project, a.Language, a.Flavor))
	}

	s.ArchiveDir = filepath.Join(s.BaseDir, "archives")
	s.LibraryPath = filepath.Join(s.BaseDir, "library.xml")
	s.DBPath = filepath.Join(s.BaseDir, "archives.db")
	return s, nil
}
