package dataset

import (
	"council-pipeline-go/internal/artifact"
	"council-pipeline-go/internal/types"
)

// Progress records which stage outputs exist for one meeting.
type Progress struct {
	Video       string `json:"video" yaml:"video"`
	Downloaded  bool   `json:"downloaded" yaml:"downloaded"`
	Transcribed bool   `json:"transcribed" yaml:"transcribed"`
	Summarized  bool   `json:"summarized" yaml:"summarized"`
	Linked      bool   `json:"linked" yaml:"linked"`
}

// Totals counts meetings per finished stage.
type Totals struct {
	Meetings    int `json:"meetings" yaml:"meetings"`
	Downloaded  int `json:"downloaded" yaml:"downloaded"`
	Transcribed int `json:"transcribed" yaml:"transcribed"`
	Summarized  int `json:"summarized" yaml:"summarized"`
	Linked      int `json:"linked" yaml:"linked"`
}

// Scan checks the data directory for each meeting's artifacts.
func Scan(dataDir string, meetings []types.Meeting) ([]Progress, Totals) {
	var (
		out []Progress
		t   Totals
	)
	for _, m := range meetings {
		if m.Video == "" {
			continue
		}
		video := artifact.VideoPath(dataDir, m.Video)
		p := Progress{
			Video:       artifact.VideoName(m.Video),
			Downloaded:  artifact.Exists(video),
			Transcribed: artifact.Exists(artifact.WithExt(video, artifact.ExtText), artifact.WithExt(video, artifact.ExtSegment)),
			Summarized:  artifact.Exists(artifact.WithExt(video, artifact.ExtSummary)),
			Linked:      m.BoxLink != "",
		}
		out = append(out, p)

		t.Meetings++
		if p.Downloaded {
			t.Downloaded++
		}
		if p.Transcribed {
			t.Transcribed++
		}
		if p.Summarized {
			t.Summarized++
		}
		if p.Linked {
			t.Linked++
		}
	}
	return out, t
}
