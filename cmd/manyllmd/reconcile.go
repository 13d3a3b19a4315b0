package main

import (
	"github.com/spf13/cobra"

	"manyllmd/internal/common/fsutil"
	"manyllmd/internal/store"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair the artifact index against the filesystem and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		fileCfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := mergeConfig(serveCmd, fileCfg)

		dir, err := fsutil.ExpandHome(cfg.ModelsDir)
		if err != nil {
			return err
		}
		st, err := store.New(dir, log)
		if err != nil {
			return err
		}
		if err := st.Reconcile(); err != nil {
			return err
		}
		log.Info().Int("artifacts", len(st.List())).Str("dir", dir).Msg("reconcile complete")
		return nil
	},
}
