package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"manyllmd/internal/common/fsutil"
	"manyllmd/internal/store"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List locally managed artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		fileCfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg := mergeConfig(serveCmd, fileCfg)

		dir, err := fsutil.ExpandHome(cfg.ModelsDir)
		if err != nil {
			return err
		}
		st, err := store.New(dir, zerolog.Nop())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tSIZE\tFORMATS\tPATH")
		for _, a := range st.List() {
			fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%s\n", a.ID, a.State, a.Size, a.Formats, a.LocalPath)
		}
		return w.Flush()
	},
}
