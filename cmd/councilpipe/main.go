package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"council-pipeline-go/internal/config"
	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "councilpipe",
		Usage: "scrape, transcribe, publish, summarize and index council meeting recordings",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file with settings and Box tokens"},
			&cli.StringFlag{Name: "report", Usage: "write the run report as YAML to this file (- for stdout)"},
		},
		Commands: []*cli.Command{
			{Name: "scrape", Usage: "refresh the manifest from the meeting listing", Action: stageAction((*config.Config).ValidateScrape, runScrape)},
			{Name: "transcribe", Usage: "download and transcribe every meeting video", Action: stageAction((*config.Config).ValidateTranscribe, runTranscribe)},
			{
				Name:   "publish",
				Usage:  "record Box shared links in the manifest",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "upload", Usage: "upload local videos missing from the Box folder"}},
				Action: stageAction((*config.Config).ValidatePublish, runPublish),
			},
			{Name: "summarize", Usage: "write window and meeting summaries for every transcript", Action: stageAction((*config.Config).ValidateSummarize, runSummarize)},
			{Name: "index", Usage: "load summaries into the vector index", Action: stageAction((*config.Config).ValidateIndex, runIndex)},
			{
				Name:   "all",
				Usage:  "run every stage in order",
				Flags:  []cli.Flag{&cli.BoolFlag{Name: "upload", Usage: "upload local videos missing from the Box folder"}},
				Action: stageAction(validateAll, runAll),
			},
			{Name: "auth", Usage: "run the Box OAuth consent flow and store the tokens", Action: authAction},
			{
				Name:   "export",
				Usage:  "write the manifest and stage progress to a spreadsheet",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "out", Value: "meetings.xlsx", Usage: "spreadsheet path"}},
				Action: exportAction,
			},
			{
				Name:   "import",
				Usage:  "merge Box links entered in an exported spreadsheet back into the manifest",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "from", Value: "meetings.xlsx", Usage: "spreadsheet path"}},
				Action: importAction,
			},
			{Name: "status", Usage: "print how many meetings have finished each stage", Action: statusAction},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type stageFunc func(ctx context.Context, c *cli.Context, cfg *config.Config, log *logger.Logger) ([]*pipeline.Report, error)

// stageAction loads and validates the config, runs the stage and writes
// its report. Any failed item makes the command exit non-zero.
func stageAction(validate func(*config.Config) error, run stageFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		log := logger.New().Component(c.Command.Name)
		cfg, err := config.Load(c.String("env-file"))
		if err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
		if err := validate(cfg); err != nil {
			log.WithError(err).Fatal("invalid config")
		}

		reports, runErr := run(c.Context, c, cfg, log)
		if err := writeReport(c.String("report"), reports); err != nil {
			log.WithError(err).Error("failed to write report")
		}
		if runErr != nil {
			return runErr
		}
		if pipeline.HasFailures(reports...) {
			return cli.Exit("some items failed", 2)
		}
		return nil
	}
}

func writeReport(path string, reports []*pipeline.Report) error {
	if path == "" || len(reports) == 0 {
		return nil
	}
	if path == "-" {
		return pipeline.WriteYAML(os.Stdout, reports...)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pipeline.WriteYAML(f, reports...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
