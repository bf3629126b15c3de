// Package dataset moves the manifest in and out of a spreadsheet for
// operators, and reports how far each meeting has progressed.
package dataset

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"council-pipeline-go/internal/types"
)

const (
	MeetingsSheet = "meetings"
	StatusSheet   = "status"
)

var meetingHeader = []string{"Title", "Date", "Time", "Video", "Video Page", "Agenda", "Minutes", "Box Link"}

// ExportXLSX writes one row per meeting to the meetings sheet and, when
// progress is given, one row per meeting to the status sheet.
func ExportXLSX(path string, meetings []types.Meeting, progress []Progress) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), MeetingsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	rows := make([][]any, 0, len(meetings)+1)
	rows = append(rows, toRow(meetingHeader))
	for _, m := range meetings {
		rows = append(rows, []any{m.Title, dateCell(m), m.Time, m.Video, m.VideoPage, m.Agenda, m.Minutes, m.BoxLink})
	}
	if err := writeRows(f, MeetingsSheet, rows); err != nil {
		return err
	}

	if len(progress) > 0 {
		if _, err := f.NewSheet(StatusSheet); err != nil {
			return fmt.Errorf("add sheet: %w", err)
		}
		rows = [][]any{toRow([]string{"Video", "Downloaded", "Transcribed", "Summarized", "Linked"})}
		for _, p := range progress {
			rows = append(rows, []any{p.Video, p.Downloaded, p.Transcribed, p.Summarized, p.Linked})
		}
		if err := writeRows(f, StatusSheet, rows); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// LoadXLSX reads meetings back from the first sheet. Columns are found by
// header name, so reordered or extra columns are fine. Rows without a video
// link are dropped.
func LoadXLSX(path string) ([]types.Meeting, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "box") || strings.Contains(l, "link") && !strings.Contains(l, "video"):
			setOnce(col, "box_link", i)
		case strings.Contains(l, "page"):
			setOnce(col, "video_page", i)
		case strings.Contains(l, "video") || strings.Contains(l, "mp4"):
			setOnce(col, "video", i)
		case strings.Contains(l, "title") || strings.Contains(l, "name"):
			setOnce(col, "title", i)
		case strings.Contains(l, "date"):
			setOnce(col, "date", i)
		case strings.Contains(l, "time"):
			setOnce(col, "time", i)
		case strings.Contains(l, "agenda"):
			setOnce(col, "agenda", i)
		case strings.Contains(l, "minutes"):
			setOnce(col, "minutes", i)
		}
	}
	if _, ok := col["video"]; !ok {
		return nil, fmt.Errorf("no video column in header %v", rows[0])
	}

	var out []types.Meeting
	for _, r := range rows[1:] {
		get := func(key string) string {
			i, ok := col[key]
			if !ok || i >= len(r) {
				return ""
			}
			return strings.TrimSpace(r[i])
		}
		m := types.Meeting{
			Title:     get("title"),
			Time:      get("time"),
			Video:     get("video"),
			VideoPage: get("video_page"),
			Agenda:    get("agenda"),
			Minutes:   get("minutes"),
			BoxLink:   get("box_link"),
		}
		if raw := get("date"); raw != "" {
			if d, err := types.ParseDate(raw); err == nil {
				m.Date = d
			} else {
				m.DateText = raw
			}
		}
		if !strings.HasPrefix(strings.ToLower(m.Video), "http") {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func dateCell(m types.Meeting) string {
	if m.Date.IsZero() {
		return m.DateText
	}
	return m.Date.Format("2006-01-02")
}

func setOnce(col map[string]int, key string, i int) {
	if _, ok := col[key]; !ok {
		col[key] = i
	}
}

func toRow(cells []string) []any {
	row := make([]any, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
