package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moltgraph/moltgraph/internal/crawl"
)

// newCrawlCmd creates the 'crawl' subcommand, which executes one full or
// incremental mirroring run against the live API.
func newCrawlCmd() *cobra.Command {
	var (
		mode     string
		resumeID string
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl against the Moltbook API",
		Long: `Runs one crawl. A full run scans every configured posts view without a
time bound; an incremental run scans the reverse-chronological views down
to the previous run's start time. Pass --resume with an earlier crawl id
to continue that run from its persisted checkpoints.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			var runMode crawl.Mode
			switch mode {
			case "full":
				runMode = crawl.ModeFull
			case "incremental", "incr":
				runMode = crawl.ModeIncremental
			default:
				return fmt.Errorf("unknown mode %q (want full or incremental)", mode)
			}

			cfg := appInstance.Config()
			var scraper crawl.Scraper
			if s := appInstance.Scraper(); s != nil {
				scraper = s
			}
			runner := crawl.New(cfg.Crawl, appInstance.Client(), appInstance.Store(),
				scraper, cfg.Scrape.Limit, appInstance.Logger())

			res, err := runner.Run(cmd.Context(), runMode, resumeID)
			if err != nil {
				return fmt.Errorf("crawl %s: %w", res.CrawlID, err)
			}
			appInstance.Logger().Info("run summary",
				zap.String("crawl_id", res.CrawlID),
				zap.Int("posts", res.Posts),
				zap.Int("comments", res.Comments),
				zap.Int("submolts", res.Submolts),
				zap.Int("stage_failures", res.Failures))
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "full", "run mode: full or incremental")
	cmd.Flags().StringVar(&resumeID, "resume", "", "crawl id of an earlier run to resume")

	return cmd
}
