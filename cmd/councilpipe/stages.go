package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"council-pipeline-go/internal/artifact"
	"council-pipeline-go/internal/box"
	"council-pipeline-go/internal/config"
	"council-pipeline-go/internal/dataset"
	"council-pipeline-go/internal/embedding"
	"council-pipeline-go/internal/extractor"
	"council-pipeline-go/internal/indexer"
	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/manifest"
	"council-pipeline-go/internal/pipeline"
	"council-pipeline-go/internal/publisher"
	"council-pipeline-go/internal/scraper"
	"council-pipeline-go/internal/summarizer"
	"council-pipeline-go/internal/transcription"
	"council-pipeline-go/internal/types"
	"council-pipeline-go/internal/vectorstore"
)

func runScrape(ctx context.Context, _ *cli.Context, cfg *config.Config, log *logger.Logger) ([]*pipeline.Report, error) {
	s := scraper.New(&http.Client{Timeout: cfg.HTTP.Timeout}, cfg.HTTP.MaxRetryElapsed, log)
	r, err := s.Run(ctx, cfg.ListingURL, manifest.Path(cfg.DataDir))
	return []*pipeline.Report{r}, err
}

func runTranscribe(ctx context.Context, _ *cli.Context, cfg *config.Config, log *logger.Logger) ([]*pipeline.Report, error) {
	meetings, err := manifest.Load(manifest.Path(cfg.DataDir))
	if err != nil {
		return nil, err
	}
	tr, err := transcription.New(cfg.Transcribe, cfg.HTTP, log)
	if err != nil {
		return nil, err
	}
	st := &transcription.Stage{
		DataDir:     cfg.DataDir,
		Downloader:  transcription.NewDownloader(nil, cfg.HTTP.MaxRetryElapsed, cfg.Transcribe.DownloadWait, log),
		Transcriber: tr,
		Log:         log,
	}
	r, err := st.Run(ctx, meetings)
	return []*pipeline.Report{r}, err
}

func runPublish(ctx context.Context, c *cli.Context, cfg *config.Config, log *logger.Logger) ([]*pipeline.Report, error) {
	p := &publisher.Publisher{
		DataDir:  cfg.DataDir,
		FolderID: cfg.Box.FolderID,
		Provider: box.NewClient(ctx, cfg, log),
		Upload:   c.Bool("upload"),
		Log:      log,
	}
	r, err := p.Run(ctx, manifest.Path(cfg.DataDir))
	return []*pipeline.Report{r}, err
}

func runSummarize(ctx context.Context, _ *cli.Context, cfg *config.Config, log *logger.Logger) ([]*pipeline.Report, error) {
	meetings, err := manifest.Load(manifest.Path(cfg.DataDir))
	if err != nil {
		return nil, err
	}
	ex := extractor.New(extractor.NewClient(cfg.LLM, cfg.HTTP, log), log)
	st := &summarizer.Stage{
		DataDir:    cfg.DataDir,
		Summarizer: summarizer.New(ex, cfg.LLM.ChunkSize, cfg.LLM.NoSpeechThreshold, log),
		Log:        log,
	}
	r, err := st.Run(ctx, meetings)
	return []*pipeline.Report{r}, err
}

func runIndex(ctx context.Context, _ *cli.Context, cfg *config.Config, log *logger.Logger) ([]*pipeline.Report, error) {
	meetings, err := manifest.Load(manifest.Path(cfg.DataDir))
	if err != nil {
		return nil, err
	}
	files, err := artifact.Glob(cfg.DataDir, artifact.ExtSummary)
	if err != nil {
		return nil, err
	}
	store, err := vectorstore.Open(ctx, cfg.Index, log)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ix := &indexer.Indexer{
		Store:      store,
		Embedder:   embedding.New(cfg.Index, cfg.HTTP, log),
		Collection: cfg.Index.Collection,
		Dim:        embedding.Dim,
		Log:        log,
	}
	r, err := ix.Run(ctx, files, meetings)
	return []*pipeline.Report{r}, err
}

func validateAll(cfg *config.Config) error {
	return errors.Join(
		cfg.ValidateScrape(),
		cfg.ValidateTranscribe(),
		cfg.ValidatePublish(),
		cfg.ValidateSummarize(),
		cfg.ValidateIndex(),
	)
}

// runAll runs the stages in pipeline order. A stage with failed items does
// not stop the later ones; a stage that cannot run at all does.
func runAll(ctx context.Context, c *cli.Context, cfg *config.Config, log *logger.Logger) ([]*pipeline.Report, error) {
	var reports []*pipeline.Report
	for _, run := range []stageFunc{runScrape, runTranscribe, runPublish, runSummarize, runIndex} {
		rs, err := run(ctx, c, cfg, log)
		reports = append(reports, rs...)
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}

func authAction(c *cli.Context) error {
	log := logger.New().Component("auth")
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if err := cfg.ValidateAuth(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	return box.NewAuthServer(cfg.Box, log).Run(c.Context, box.DefaultAuthAddr)
}

func exportAction(c *cli.Context) error {
	log := logger.New().Component("export")
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	meetings, err := manifest.Load(manifest.Path(cfg.DataDir))
	if err != nil {
		return err
	}
	progress, _ := dataset.Scan(cfg.DataDir, meetings)
	out := c.String("out")
	if err := dataset.ExportXLSX(out, meetings, progress); err != nil {
		return err
	}
	log.WithField("path", out).WithField("meetings", len(meetings)).Info("exported")
	return nil
}

func importAction(c *cli.Context) error {
	log := logger.New().Component("import")
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	from := c.String("from")
	edits, err := dataset.LoadXLSX(from)
	if err != nil {
		return err
	}
	var changed int
	err = manifest.Update(manifest.Path(cfg.DataDir), func(meetings []types.Meeting) ([]types.Meeting, error) {
		changed = dataset.ApplyEdits(meetings, edits)
		return meetings, nil
	})
	if err != nil {
		return err
	}
	log.WithField("path", from).WithField("changed", changed).Info("imported")
	return nil
}

func statusAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	meetings, err := manifest.Load(manifest.Path(cfg.DataDir))
	if err != nil {
		return err
	}
	_, totals := dataset.Scan(cfg.DataDir, meetings)
	return yaml.NewEncoder(os.Stdout).Encode(totals)
}
