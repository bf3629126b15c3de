package summarizer

import (
	"strings"

	"council-pipeline-go/internal/types"
)

// DefaultWindow is the number of segments summarized together.
const DefaultWindow = 100

// Window is a half-open range [Start, End) of segment positions.
type Window struct {
	Start, End int
}

// Windows splits n segments into consecutive windows of at most w.
func Windows(n, w int) []Window {
	if w <= 0 {
		w = DefaultWindow
	}
	out := make([]Window, 0, (n+w-1)/w)
	for i := 0; i < n; i += w {
		out = append(out, Window{Start: i, End: min(n, i+w)})
	}
	return out
}

// ChunkText joins the text of every segment whose no-speech probability is
// below threshold with single spaces.
func ChunkText(segs []types.Segment, threshold float64) string {
	texts := make([]string, 0, len(segs))
	for _, s := range segs {
		if s.NoSpeechProb < threshold {
			texts = append(texts, s.Text)
		}
	}
	return strings.Join(texts, " ")
}

// mergeEntities concatenates lists, dropping repeats and keeping first-seen
// order.
func mergeEntities(all []types.Entities) types.Entities {
	var out types.Entities
	union := func(dst *[]string, seen map[string]bool, src []string) {
		for _, v := range src {
			if !seen[v] {
				seen[v] = true
				*dst = append(*dst, v)
			}
		}
	}
	names, ords, dockets, addrs := map[string]bool{}, map[string]bool{}, map[string]bool{}, map[string]bool{}
	for _, e := range all {
		union(&out.ProperNames, names, e.ProperNames)
		union(&out.OrdinanceNumbers, ords, e.OrdinanceNumbers)
		union(&out.DocketNumbers, dockets, e.DocketNumbers)
		union(&out.StreetAddresses, addrs, e.StreetAddresses)
	}
	return out
}
