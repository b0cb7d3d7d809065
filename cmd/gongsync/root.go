package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/salesops/gongsync/pkg/artifacts"
	"github.com/salesops/gongsync/pkg/config"
	"github.com/salesops/gongsync/pkg/gong"
	"github.com/salesops/gongsync/pkg/logging"
	"github.com/salesops/gongsync/pkg/pipeline"
	"github.com/salesops/gongsync/pkg/progress"
)

type rootFlags struct {
	configPath string
	startDate  string
	endDate    string
	outputDir  string
	logLevel   string
	pretty     bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "gongsync",
		Short:         "Bulk-download Gong call metadata and transcripts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "gongsync.toml", "config file path")
	cmd.PersistentFlags().StringVar(&flags.startDate, "from", "", "start date (YYYY-MM-DD), overrides config")
	cmd.PersistentFlags().StringVar(&flags.endDate, "to", "", "end date (YYYY-MM-DD), overrides config")
	cmd.PersistentFlags().StringVar(&flags.outputDir, "output", "", "output directory, overrides config")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&flags.pretty, "pretty-logs", false, "human-readable log output")

	cmd.AddCommand(newSyncCommand(flags))
	cmd.AddCommand(newCheckCommand(flags))
	cmd.AddCommand(newSampleConfigCommand())
	return cmd
}

// loadConfig merges the config file, environment, and command-line
// overrides, and configures logging.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.startDate != "" {
		cfg.Download.StartDate = flags.startDate
	}
	if flags.endDate != "" {
		cfg.Download.EndDate = flags.endDate
	}
	if flags.outputDir != "" {
		cfg.Download.OutputDirectory = flags.outputDir
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: flags.pretty || cfg.Logging.Pretty,
		Output: os.Stderr,
	})
	return cfg, nil
}

func newSyncCommand(flags *rootFlags) *cobra.Command {
	var titleFilter string
	var rediscover bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Discover calls in the date range and download their transcripts",
		Long: `Discover calls in the configured date range, download their transcripts
in batches, and write per-call JSON, formatted text transcripts, and a
metadata CSV to the output directory.

Progress is checkpointed to download_progress.json after every step; an
interrupted run resumes where it left off when re-invoked. Run only one
sync at a time per output directory: the checkpoint file is not locked,
and concurrent runs will corrupt it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			dateRange, err := cfg.DateRange()
			if err != nil {
				return err
			}

			client, err := gong.New(cfg.ClientConfig())
			if err != nil {
				return err
			}

			store, err := artifacts.NewStore(cfg.Download.OutputDirectory, logging.NewLogger("artifacts"))
			if err != nil {
				return err
			}
			snapshots := progress.NewStore(cfg.Download.OutputDirectory, logging.NewLogger("progress"))

			if titleFilter == "" {
				titleFilter = cfg.Download.TitleFilter
			}
			resume := pipeline.ResumePolicy(cfg.Download.ResumePolicy)
			if rediscover {
				resume = pipeline.ResumeAlwaysRediscover
			}

			runner := pipeline.NewRunner(client, snapshots, store, pipeline.Config{
				DateRange:   dateRange,
				TitleFilter: titleFilter,
				Resume:      resume,
			})

			// An interrupt cancels the run; the runner checkpoints
			// before returning so the next invocation resumes.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, err := runner.Run(ctx)
			if summary != nil {
				printSummary(summary, cfg.Download.OutputDirectory)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&titleFilter, "title-filter", "", `keyword filter on call titles ("a and b" = all, "a, b" = any)`)
	cmd.Flags().BoolVar(&rediscover, "rediscover", false, "re-run discovery even if a snapshot has cached calls")
	return cmd
}

func newCheckCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify API credentials and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			dateRange, err := cfg.DateRange()
			if err != nil {
				return err
			}
			client, err := gong.New(cfg.ClientConfig())
			if err != nil {
				return err
			}
			if err := client.CheckConnection(cmd.Context(), dateRange); err != nil {
				return fmt.Errorf("API connection failed: %w", err)
			}
			fmt.Println("API connection successful")
			return nil
		},
	}
}

func newSampleConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sample-config",
		Short: "Print an annotated sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(config.Sample())
			return nil
		},
	}
}

func printSummary(s *pipeline.Summary, outputDir string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Sync Summary")
	t.AppendRows([]table.Row{
		{"Run ID", s.RunID},
		{"Calls discovered", s.Discovered},
		{"Calls after filter", s.Filtered},
		{"Transcripts fetched", s.Fetched},
		{"Reused from disk", s.FromExisting},
		{"Failed call IDs", len(s.FailedIDs)},
		{"Duration", s.Duration().Round(100 * time.Millisecond)},
		{"Output", outputDir},
	})
	t.Render()

	if len(s.FailedIDs) > 0 {
		fmt.Printf("\n%d call IDs failed to fetch and will be retried on the next run.\n", len(s.FailedIDs))
	}
}
