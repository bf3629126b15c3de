package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council-pipeline-go/internal/config"
	"council-pipeline-go/internal/pipeline"
)

func TestValidateAll_ReportsEveryStage(t *testing.T) {
	err := validateAll(&config.Config{
		Transcribe: config.Transcribe{Backend: "mock"},
		LLM:        config.LLM{Mock: true},
		Index:      config.Index{Backend: "sqlite"},
	})
	require.ErrorIs(t, err, config.ErrMissing)
	assert.ErrorContains(t, err, config.EnvListingURL)
	assert.ErrorContains(t, err, config.EnvBoxFolderID)
	assert.ErrorContains(t, err, config.EnvIndexDir)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	r := pipeline.NewReport("scrape")
	r.Add(pipeline.ItemResult{Key: "a.mp4", Status: pipeline.StatusFailed, Reason: "boom"})

	require.NoError(t, writeReport(path, []*pipeline.Report{r.Finish()}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stage: scrape")
	assert.Contains(t, string(data), "reason: boom")

	// no path, no file
	require.NoError(t, writeReport("", []*pipeline.Report{r}))
}
