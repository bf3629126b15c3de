// Package indexer loads .summary artifacts into the vector index, one
// document per window summary.
package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"council-pipeline-go/internal/artifact"
	"council-pipeline-go/internal/embedding"
	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/manifest"
	"council-pipeline-go/internal/pipeline"
	"council-pipeline-go/internal/types"
	"council-pipeline-go/internal/vectorstore"
)

// Metadata keys added to every document on top of the record's own fields.
const (
	MetaFile = "file"
	MetaDate = "date"
)

type Indexer struct {
	Store      vectorstore.Store
	Embedder   embedding.Embedder
	Collection string
	Dim        int
	Log        *logger.Logger
}

// Run indexes every summary file. meetings supplies each file's date.
func (ix *Indexer) Run(ctx context.Context, summaryFiles []string, meetings []types.Meeting) (*pipeline.Report, error) {
	if err := ix.Store.EnsureCollection(ctx, ix.Collection, ix.Dim); err != nil {
		return nil, err
	}
	items := make([]pipeline.Item[string], len(summaryFiles))
	for i, f := range summaryFiles {
		items[i] = pipeline.Item[string]{Key: f, Value: f}
	}
	return pipeline.Run(ctx, ix.Log, "index", items, func(ctx context.Context, path string) error {
		return ix.indexFile(ctx, path, meetings)
	})
}

func (ix *Indexer) indexFile(ctx context.Context, path string, meetings []types.Meeting) error {
	records, err := artifact.ReadJSONL[types.SummaryRecord](path)
	if err != nil {
		return err
	}
	windows := WindowRecords(records)
	if len(windows) == 0 {
		return pipeline.Skip("no window summaries")
	}

	date, err := meetingDate(path, meetings)
	if err != nil {
		return err
	}

	docs := make([]vectorstore.Document, len(windows))
	ids := make([]string, len(windows))
	for i, r := range windows {
		docs[i] = vectorstore.Document{
			ID:       DocumentID(path, r.StartID, r.EndID),
			Text:     r.Summary,
			Metadata: Metadata(r, path, date),
		}
		ids[i] = docs[i].ID
	}

	existing, err := ix.Store.Existing(ctx, ids)
	if err != nil {
		return err
	}
	if len(existing) == len(ids) {
		return pipeline.Skip("already indexed")
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vecs, err := ix.Embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	for i := range docs {
		docs[i].Embedding = vecs[i]
	}
	if err := ix.Store.Upsert(ctx, docs); err != nil {
		return err
	}
	ix.Log.WithField("file", path).WithField("documents", len(docs)).Info("indexed")
	return nil
}

// WindowRecords drops the whole-meeting record at index 0 and any record
// whose summary is blank.
func WindowRecords(records []types.SummaryRecord) []types.SummaryRecord {
	if len(records) <= 1 {
		return nil
	}
	out := make([]types.SummaryRecord, 0, len(records)-1)
	for _, r := range records[1:] {
		if strings.TrimSpace(r.Summary) != "" {
			out = append(out, r)
		}
	}
	return out
}

// Metadata is every record field except the summary, entity lists
// flattened, plus the source file and the meeting date in unix seconds.
func Metadata(r types.SummaryRecord, path string, date int64) map[string]any {
	return map[string]any{
		"start_time":        r.StartTime,
		"end_time":          r.EndTime,
		"start_id":          int64(r.StartID),
		"end_id":            int64(r.EndID),
		"proper_names":      Flatten(r.ProperNames),
		"ordinance_numbers": Flatten(r.OrdinanceNumbers),
		"docket_numbers":    Flatten(r.DocketNumbers),
		"street_addresses":  Flatten(r.StreetAddresses),
		MetaFile:            path,
		MetaDate:            date,
	}
}

// meetingDate finds the manifest record for the summary's video and
// returns its date.
func meetingDate(path string, meetings []types.Meeting) (int64, error) {
	video := artifact.WithExt(filepath.Base(path), artifact.ExtVideo)
	i := manifest.FindByVideoName(meetings, video)
	if i < 0 {
		return 0, fmt.Errorf("cannot parse %s: no manifest record for %s", path, video)
	}
	if meetings[i].Date.IsZero() {
		return 0, fmt.Errorf("cannot parse %s: manifest record has no date", path)
	}
	return meetings[i].Date.Unix(), nil
}
