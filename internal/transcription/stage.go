package transcription

import (
	"context"
	"fmt"
	"strings"

	"council-pipeline-go/internal/artifact"
	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/pipeline"
	"council-pipeline-go/internal/types"
)

// Stage downloads every manifest video that is not yet on disk, then
// transcribes every local video that lacks its .txt or .json.
type Stage struct {
	DataDir     string
	Downloader  *Downloader
	Transcriber Transcriber
	Log         *logger.Logger
}

// Run processes meetings in manifest order.
func (s *Stage) Run(ctx context.Context, meetings []types.Meeting) (*pipeline.Report, error) {
	var items []pipeline.Item[types.Meeting]
	for _, m := range meetings {
		if m.Video == "" {
			continue
		}
		items = append(items, pipeline.Item[types.Meeting]{Key: artifact.VideoName(m.Video), Value: m})
	}
	return pipeline.Run(ctx, s.Log, "transcribe", items, s.process)
}

func (s *Stage) process(ctx context.Context, m types.Meeting) error {
	video := artifact.VideoPath(s.DataDir, m.Video)
	txt := artifact.WithExt(video, artifact.ExtText)
	segs := artifact.WithExt(video, artifact.ExtSegment)

	downloaded := false
	if !artifact.Exists(video) {
		if err := s.Downloader.Download(ctx, m.Video, video); err != nil {
			return err
		}
		downloaded = true
	}
	if artifact.Exists(txt, segs) {
		if downloaded {
			// publishing needs the local copy even when the transcript exists
			return nil
		}
		return pipeline.Skip("already transcribed")
	}

	tr, err := s.Transcriber.Transcribe(ctx, video)
	if err != nil {
		return err
	}
	return WriteTranscript(video, tr)
}

// WriteTranscript stores tr next to the video as <name>.txt (the full text
// plus a newline) and <name>.json (one segment per line). The .json is
// written last since its presence, with the .txt, marks the video done.
func WriteTranscript(videoPath string, tr types.Transcript) error {
	txt := artifact.WithExt(videoPath, artifact.ExtText)
	segs := artifact.WithExt(videoPath, artifact.ExtSegment)

	if err := artifact.WriteFileAtomic(txt, []byte(strings.TrimRight(tr.Text, "\n")+"\n")); err != nil {
		return fmt.Errorf("write transcript text: %w", err)
	}
	if err := artifact.WriteJSONL(segs, tr.Segments); err != nil {
		return fmt.Errorf("write transcript segments: %w", err)
	}
	return nil
}
