package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"council-pipeline-go/internal/logger"
)

func items(keys ...string) []Item[string] {
	out := make([]Item[string], len(keys))
	for i, k := range keys {
		out[i] = Item[string]{Key: k, Value: k}
	}
	return out
}

func TestRun_ContinuesAfterFailure(t *testing.T) {
	var seen []string
	report, err := Run(context.Background(), logger.Discard(), "test", items("a", "b", "c", "d"),
		func(ctx context.Context, v string) error {
			seen = append(seen, v)
			switch v {
			case "b":
				return errors.New("download failed")
			case "c":
				return Skip("already transcribed")
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, seen)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Items, 4)
	assert.Equal(t, StatusFailed, report.Items[1].Status)
	assert.Equal(t, "download failed", report.Items[1].Reason)
	assert.Equal(t, StatusSkipped, report.Items[2].Status)
	assert.Contains(t, report.Items[2].Reason, "already transcribed")
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	report, err := Run(ctx, logger.Discard(), "test", items("a", "b", "c"),
		func(ctx context.Context, v string) error {
			calls++
			cancel()
			return nil
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Len(t, report.Items, 1)
}

func TestRun_Empty(t *testing.T) {
	report, err := Run(context.Background(), logger.Discard(), "test", nil,
		func(ctx context.Context, v string) error { return nil })
	require.NoError(t, err)
	assert.Empty(t, report.Items)
}

func TestIsSkip(t *testing.T) {
	assert.True(t, IsSkip(Skip("no transcript for %s", "a.mp4")))
	assert.False(t, IsSkip(errors.New("skipped")))
	assert.False(t, IsSkip(nil))
}

func TestWriteYAML(t *testing.T) {
	r := NewReport("summarize")
	r.Add(ItemResult{Key: "a.json", Status: StatusSuccess})
	r.Add(ItemResult{Key: "b.json", Status: StatusFailed, Reason: "llm timeout"})
	r.Finish()

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, r))

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "summarize", decoded[0]["stage"])
	assert.Equal(t, 1, decoded[0]["failed"])
	assert.True(t, HasFailures(r))
	assert.False(t, HasFailures(NewReport("x"), nil))
}
