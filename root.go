package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"astro_insight/internal/app"
	"astro_insight/pkg"
	"astro_insight/src"
	"astro_insight/src/logger"

	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	envFiles []string
	debug    bool
	config   *src.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "astro",
		Short: "Astronomy research assistant",
		Long: `astro answers astronomy questions and runs data tasks.

Amateur questions are answered in prose. Professional requests are routed to
classification, data retrieval, visualization or image annotation; data tasks
generate a Python script, check it, and run it against the configured datasets.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := src.LoadConfig(opts.envFiles...)
			if err != nil {
				return err
			}
			if opts.debug {
				cfg.LogConfig.Level = "debug"
			}
			if err := logger.InitLogger(cfg.LogConfig); err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			opts.config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "env files to load before reading the environment (default .env)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newChatCommand(opts))
	cmd.AddCommand(newAskCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newDatasetsCommand(opts))

	return cmd
}

func (o *rootOptions) newApp(ctx context.Context) (*app.App, error) {
	if o.config == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return app.New(ctx, o.config)
}

func printSnapshot(snap *pkg.SessionSnapshot) {
	fmt.Printf("\n%s\n", strings.Repeat("=", 60))
	fmt.Println(snap.AnswerText)
	for _, f := range snap.GeneratedFiles {
		fmt.Printf("  file: %s\n", f)
	}
	for _, f := range snap.GeneratedTexts {
		fmt.Printf("  text: %s\n", f)
	}
	if snap.ErrorInfo != nil {
		fmt.Fprintf(os.Stderr, "  [%s error at %s]\n", snap.ErrorInfo.Kind, snap.ErrorInfo.Node)
	}
	fmt.Printf("%s\n", strings.Repeat("=", 60))
}
