package dataset

import "council-pipeline-go/internal/types"

// ApplyEdits copies operator-entered public links from edits onto the
// manifest records with the same video URL. Records that already have a
// link keep it unless the edit changes it; blank cells never clear one.
// It returns the number of records changed.
func ApplyEdits(meetings, edits []types.Meeting) int {
	links := make(map[string]string, len(edits))
	for _, e := range edits {
		if e.Video != "" && e.BoxLink != "" {
			links[e.Video] = e.BoxLink
		}
	}
	changed := 0
	for i := range meetings {
		link, ok := links[meetings[i].Video]
		if !ok || link == meetings[i].BoxLink {
			continue
		}
		meetings[i].BoxLink = link
		changed++
	}
	return changed
}
