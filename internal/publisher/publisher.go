// Package publisher gives every local video a public link on the storage
// provider and records it in the manifest.
package publisher

import (
	"context"
	"fmt"
	"strings"

	"council-pipeline-go/internal/artifact"
	"council-pipeline-go/internal/box"
	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/manifest"
	"council-pipeline-go/internal/pipeline"
	"council-pipeline-go/internal/types"
)

// Provider is the storage service holding the videos. *box.Client
// satisfies it.
type Provider interface {
	ListFolder(ctx context.Context, folderID string) ([]box.Item, error)
	SharedLink(ctx context.Context, fileID string) (string, error)
	Upload(ctx context.Context, folderID, path string) (box.Item, error)
}

// StaticLink rewrites a shared-page link (/s/) into the direct download
// form the index and front end expect. Other links are returned as is.
func StaticLink(link string) string {
	if !strings.Contains(link, "/s/") {
		return link
	}
	return strings.ReplaceAll(link, "/s/", "/shared/static/") + artifact.ExtVideo + "?dl=1"
}

type Publisher struct {
	DataDir  string
	FolderID string
	Provider Provider
	// Upload sends local videos missing from the folder. When false they
	// are skipped and left for an external sync.
	Upload bool
	Log    *logger.Logger
}

// Run links every manifest video that has a local file and no link yet.
// The manifest is re-read and saved under its lock once all items are done,
// so links found before a failure are kept.
func (p *Publisher) Run(ctx context.Context, manifestPath string) (*pipeline.Report, error) {
	meetings, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	remote, err := p.Provider.ListFolder(ctx, p.FolderID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]box.Item, len(remote))
	for _, it := range remote {
		if it.Type == "file" && strings.HasSuffix(it.Name, artifact.ExtVideo) {
			byName[it.Name] = it
		}
	}

	links := map[string]string{}
	var items []pipeline.Item[types.Meeting]
	for _, m := range meetings {
		if m.Video == "" {
			continue
		}
		items = append(items, pipeline.Item[types.Meeting]{Key: artifact.VideoName(m.Video), Value: m})
	}

	report, runErr := pipeline.Run(ctx, p.Log, "publish", items, func(ctx context.Context, m types.Meeting) error {
		link, err := p.publish(ctx, m, byName)
		if err != nil {
			return err
		}
		links[m.Video] = link
		return nil
	})

	if len(links) > 0 {
		err := manifest.Update(manifestPath, func(current []types.Meeting) ([]types.Meeting, error) {
			return applyLinks(current, links), nil
		})
		if err != nil {
			return report, fmt.Errorf("save links: %w", err)
		}
	}
	return report, runErr
}

func (p *Publisher) publish(ctx context.Context, m types.Meeting, byName map[string]box.Item) (string, error) {
	if m.BoxLink != "" {
		return "", pipeline.Skip("already linked")
	}
	name := artifact.VideoName(m.Video)
	local := artifact.VideoPath(p.DataDir, m.Video)
	if !artifact.Exists(local) {
		return "", pipeline.Skip("video not downloaded")
	}

	item, ok := byName[name]
	if !ok {
		if !p.Upload {
			return "", pipeline.Skip("not in remote folder")
		}
		uploaded, err := p.Provider.Upload(ctx, p.FolderID, local)
		if err != nil {
			return "", err
		}
		item = uploaded
	}

	link, err := p.Provider.SharedLink(ctx, item.ID)
	if err != nil {
		return "", err
	}
	return StaticLink(link), nil
}

// applyLinks sets box_link on records with no link whose video URL is in
// links. Other records sharing the basename are left alone.
func applyLinks(meetings []types.Meeting, links map[string]string) []types.Meeting {
	out := make([]types.Meeting, len(meetings))
	for i, m := range meetings {
		if m.BoxLink == "" && m.Video != "" {
			if link, ok := links[m.Video]; ok {
				m.BoxLink = link
			}
		}
		out[i] = m
	}
	return out
}
