package types

import (
	"encoding/json"
	"strings"
)

// Meeting is one manifest row. Video is the implicit key.
type Meeting struct {
	Title     string `json:"title"`
	Date      Date   `json:"date"`
	DateText  string `json:"date_text,omitempty"` // raw listing text when Date could not be parsed
	Time      string `json:"time"`
	Video     string `json:"video,omitempty"`
	VideoPage string `json:"video_page,omitempty"`
	Agenda    string `json:"agenda,omitempty"`
	Minutes   string `json:"minutes,omitempty"`
	BoxLink   string `json:"box_link,omitempty"`
}

// UnmarshalJSON accepts a date string no layout matches, as older manifests
// stored the raw listing text in date. Such a row loads with a zero Date and
// the text in DateText.
func (m *Meeting) UnmarshalJSON(b []byte) error {
	type plain Meeting
	aux := struct {
		*plain
		Date json.RawMessage `json:"date"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	m.Date = Date{}
	if len(aux.Date) == 0 {
		return nil
	}
	if err := m.Date.UnmarshalJSON(aux.Date); err != nil {
		var raw string
		if json.Unmarshal(aux.Date, &raw) != nil {
			return err
		}
		if m.DateText == "" {
			m.DateText = strings.TrimSpace(raw)
		}
	}
	return nil
}

// Segment is one timestamped chunk of a speech-to-text result.
type Segment struct {
	ID               int     `json:"id"`
	Seek             int     `json:"seek,omitempty"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	Tokens           []int   `json:"tokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	AvgLogprob       float64 `json:"avg_logprob,omitempty"`
	CompressionRatio float64 `json:"compression_ratio,omitempty"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
}

type Transcript struct {
	Text     string
	Segments []Segment
}

type Entities struct {
	ProperNames      []string `json:"proper_names"`
	OrdinanceNumbers []string `json:"ordinance_numbers"`
	DocketNumbers    []string `json:"docket_numbers"`
	StreetAddresses  []string `json:"street_addresses"`
}

// SummaryRecord is one line of a .summary artifact. The first line of an
// artifact covers the whole meeting, the rest cover one window each.
type SummaryRecord struct {
	Summary   string  `json:"summary"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	StartID   int     `json:"start_id"`
	EndID     int     `json:"end_id"`
	Entities
}
