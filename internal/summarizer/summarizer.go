// Package summarizer turns a transcript's segments into a .summary artifact:
// one record per window of segments, preceded by a record for the whole
// meeting.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"council-pipeline-go/internal/artifact"
	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/pipeline"
	"council-pipeline-go/internal/types"
)

var ErrEmptyTranscript = errors.New("transcript has no segments")

// Analyzer is the text-analysis service. *extractor.Extractor satisfies it.
type Analyzer interface {
	ExtractEntities(ctx context.Context, text string) (types.Entities, error)
	FocusedSummary(ctx context.Context, text string, ents types.Entities) (string, error)
	OverallSummary(ctx context.Context, text string) (string, error)
}

type Summarizer struct {
	analyzer  Analyzer
	window    int
	threshold float64
	log       *logger.Logger
}

func New(a Analyzer, window int, threshold float64, log *logger.Logger) *Summarizer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Summarizer{analyzer: a, window: window, threshold: threshold, log: log.Component("summarizer")}
}

// Summarize returns the overall record followed by one record per window.
func (s *Summarizer) Summarize(ctx context.Context, segs []types.Segment) ([]types.SummaryRecord, error) {
	if len(segs) == 0 {
		return nil, ErrEmptyTranscript
	}

	windows := Windows(len(segs), s.window)
	records := make([]types.SummaryRecord, 0, len(windows)+1)
	records = append(records, types.SummaryRecord{})
	found := make([]types.Entities, 0, len(windows))

	for i, w := range windows {
		first, last := segs[w.Start], segs[w.End-1]
		rec := types.SummaryRecord{
			StartTime: first.Start,
			EndTime:   last.End,
			StartID:   first.ID,
			EndID:     last.ID,
		}

		text := ChunkText(segs[w.Start:w.End], s.threshold)
		if strings.TrimSpace(text) != "" {
			ents, err := s.analyzer.ExtractEntities(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("window %d entities: %w", i, err)
			}
			summary, err := s.analyzer.FocusedSummary(ctx, text, ents)
			if err != nil {
				return nil, fmt.Errorf("window %d summary: %w", i, err)
			}
			rec.Entities = ents
			rec.Summary = summary
			found = append(found, ents)
		}

		s.log.WithFields(logrus.Fields{
			"window":   i + 1,
			"windows":  len(windows),
			"start_id": rec.StartID,
			"end_id":   rec.EndID,
		}).Debug("window summarized")
		records = append(records, rec)
	}

	joined := make([]string, 0, len(windows))
	for _, r := range records[1:] {
		joined = append(joined, r.Summary)
	}
	overall, err := s.analyzer.OverallSummary(ctx, strings.Join(joined, "\n"))
	if err != nil {
		return nil, fmt.Errorf("overall summary: %w", err)
	}
	records[0] = types.SummaryRecord{
		Summary:   overall,
		StartTime: segs[0].Start,
		EndTime:   segs[len(segs)-1].End,
		StartID:   segs[0].ID,
		EndID:     segs[len(segs)-1].ID,
		Entities:  mergeEntities(found),
	}
	return records, nil
}

// Stage writes a .summary for every transcript that lacks one.
type Stage struct {
	DataDir    string
	Summarizer *Summarizer
	Log        *logger.Logger
}

func (st *Stage) Run(ctx context.Context, meetings []types.Meeting) (*pipeline.Report, error) {
	var items []pipeline.Item[types.Meeting]
	for _, m := range meetings {
		if m.Video == "" {
			continue
		}
		items = append(items, pipeline.Item[types.Meeting]{Key: artifact.VideoName(m.Video), Value: m})
	}
	return pipeline.Run(ctx, st.Log, "summarize", items, st.process)
}

func (st *Stage) process(ctx context.Context, m types.Meeting) error {
	video := artifact.VideoPath(st.DataDir, m.Video)
	segPath := artifact.WithExt(video, artifact.ExtSegment)
	out := artifact.WithExt(video, artifact.ExtSummary)

	if artifact.Exists(out) {
		return pipeline.Skip("already summarized")
	}
	if !artifact.Exists(segPath) {
		return pipeline.Skip("no transcript")
	}

	segs, err := artifact.ReadJSONL[types.Segment](segPath)
	if err != nil {
		return err
	}
	if len(segs) == 0 {
		return pipeline.Skip("empty transcript")
	}

	st.Log.WithField("segments", len(segs)).WithField("file", segPath).Info("summarizing")
	records, err := st.Summarizer.Summarize(ctx, segs)
	if err != nil {
		return err
	}
	return artifact.WriteJSONL(out, records)
}
