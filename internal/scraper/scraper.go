// Package scraper pulls the meeting listing page and turns each listing row
// into a manifest record.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"council-pipeline-go/internal/logger"
	"council-pipeline-go/internal/manifest"
	"council-pipeline-go/internal/pipeline"
	"council-pipeline-go/internal/retry"
	"council-pipeline-go/internal/types"
)

// UnknownTime is recorded when the date cell does not match the listing format.
const UnknownTime = "Unknown Time"

var (
	dateTimeRe   = regexp.MustCompile(`(\w+,\s\w+\s\d{1,2},\s\d{4})\s*-\s*(\d{1,2}:\d{2}\s*[APMapm]{2})`)
	windowOpenRe = regexp.MustCompile(`window\.open\('([^']+)'`)
)

type Scraper struct {
	client     *http.Client
	maxElapsed time.Duration
	log        *logger.Logger
}

func New(client *http.Client, maxElapsed time.Duration, log *logger.Logger) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Scraper{client: client, maxElapsed: maxElapsed, log: log.Component("scraper")}
}

// Fetch downloads the listing page body.
func (s *Scraper) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, s.maxElapsed, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			s.log.WithError(err).Warn("listing fetch failed, retrying")
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := retry.CheckStatus(resp.StatusCode, b); err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch listing %s: %w", url, err)
	}
	return body, nil
}

// Parse extracts one record per listing row that carries a video link.
// Rows are returned in page order.
func Parse(r io.Reader) ([]types.Meeting, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	var meetings []types.Meeting
	doc.Find("tr.listingRow").Each(func(_ int, row *goquery.Selection) {
		cols := row.Find("td.listItem")
		if cols.Length() < 2 {
			return
		}
		m := types.Meeting{Title: strings.TrimSpace(cols.Eq(0).Text())}
		setDateTime(&m, cellText(cols.Eq(1)))

		row.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			applyLink(&m, a)
		})
		if m.Video != "" {
			meetings = append(meetings, m)
		}
	})
	return meetings, nil
}

// cellText collapses all whitespace runs, including those between child
// elements, to single spaces.
func cellText(s *goquery.Selection) string {
	var parts []string
	s.Contents().Each(func(_ int, n *goquery.Selection) {
		parts = append(parts, n.Text())
	})
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func setDateTime(m *types.Meeting, raw string) {
	match := dateTimeRe.FindStringSubmatch(raw)
	if match == nil {
		m.DateText = raw
		m.Time = UnknownTime
		return
	}
	m.Time = match[2]
	d, err := types.ParseDate(match[1])
	if err != nil {
		m.DateText = match[1]
		return
	}
	m.Date = d
}

func applyLink(m *types.Meeting, a *goquery.Selection) {
	href, _ := a.Attr("href")
	href = strings.TrimSpace(href)

	if href == "javascript:void(0);" {
		if onclick, ok := a.Attr("onclick"); ok {
			if match := windowOpenRe.FindStringSubmatch(onclick); match != nil {
				m.VideoPage = absolute(match[1])
			}
		}
	}

	href = absolute(href)
	switch {
	case strings.Contains(href, ".mp4"):
		m.Video = href
	case strings.Contains(href, "AgendaViewer.php"):
		m.Agenda = href
	case strings.Contains(href, "MinutesViewer.php"):
		m.Minutes = href
	}
}

// absolute fills in the scheme of protocol-relative URLs.
func absolute(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

// Run scrapes the listing and merges it into the manifest, keeping any
// public links already recorded for the same videos.
func (s *Scraper) Run(ctx context.Context, listingURL, manifestPath string) (*pipeline.Report, error) {
	report := pipeline.NewReport("scrape")
	defer report.Finish()
	start := time.Now()

	body, err := s.Fetch(ctx, listingURL)
	if err != nil {
		return report, err
	}
	fresh, err := Parse(bytes.NewReader(body))
	if err != nil {
		return report, err
	}

	err = manifest.Update(manifestPath, func(old []types.Meeting) ([]types.Meeting, error) {
		return manifest.Merge(fresh, old), nil
	})
	if err != nil {
		return report, err
	}

	for _, m := range fresh {
		report.Add(pipeline.ItemResult{Key: m.Video, Status: pipeline.StatusSuccess})
	}
	s.log.WithFields(logrus.Fields{
		"meetings":    len(fresh),
		"manifest":    manifestPath,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("listing saved")
	return report, nil
}
