package main

import (
	"fmt"
	"strings"

	"astro_insight/internal/dataset"
	"astro_insight/src/logger"

	"github.com/spf13/cobra"
)

func newDatasetsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the datasets generated code can read",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := dataset.NewCatalog(opts.config.StorageConfig.DatasetDir)
			if err := catalog.Load(); err != nil {
				return err
			}
			datasets := catalog.Datasets()
			if len(datasets) == 0 {
				fmt.Printf("No datasets found in %s\n", catalog.Dir())
				return nil
			}
			logger.Debug().Int("count", len(datasets)).Msg("Listing datasets")
			for _, d := range datasets {
				fmt.Printf("%s\n  path:    %s\n  columns: %s\n", d.Name, d.Path, strings.Join(d.Columns, ", "))
			}
			return nil
		},
	}
}
