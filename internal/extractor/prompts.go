package extractor

import (
	"encoding/json"
	"fmt"

	"council-pipeline-go/internal/types"
)

// Task names one kind of request sent to the language model.
type Task string

const (
	TaskProperNames      Task = "proper_names"
	TaskOrdinanceNumbers Task = "ordinance_numbers"
	TaskDocketNumbers    Task = "docket_numbers"
	TaskStreetAddresses  Task = "street_addresses"
	TaskFocusedSummary   Task = "focused_summary"
	TaskOverallSummary   Task = "overall_summary"
)

const listPrompt = `You are extracting structured facts from a transcript of a New Orleans City Council meeting.

%s

Answer using only the transcript. Do not invent values. If there are none, return an empty list.

Return ONLY valid JSON in exactly this form, with no commentary and no backticks:
{"%s": ["..."]}

TRANSCRIPT:
%s
`

var listInstructions = map[Task]string{
	TaskProperNames:      "Identify all proper names in this text.",
	TaskOrdinanceNumbers: "Identify all ordinance numbers in this text.\nThe term 'ordinance' should appear near each returned value.",
	TaskDocketNumbers:    "Identify all docket numbers in this text.\nThe term 'docket' should appear near each returned value.",
	TaskStreetAddresses:  "Identify all street addresses in this text. Return full street addresses.",
}

// BuildListPrompt asks for one entity list. The reply key equals the task name.
func BuildListPrompt(task Task, text string) string {
	return fmt.Sprintf(listPrompt, listInstructions[task], task, text)
}

const focusedPrompt = `Provide a brief bulleted summary of the following transcript from a New Orleans City Council meeting.

In your summary, be sure to include all relevant information about:
- proper names
- ordinance numbers
- docket numbers
- street addresses

These were already found in the transcript:
%s

Return ONLY valid JSON in exactly this form, with no commentary and no backticks:
{"summary": "..."}

TRANSCRIPT:
%s
`

// BuildFocusedPrompt asks for a window summary that covers the given entities.
func BuildFocusedPrompt(text string, ents types.Entities) string {
	found, _ := json.MarshalIndent(ents, "", "  ")
	return fmt.Sprintf(focusedPrompt, found, text)
}

const overallPrompt = `Provide a detailed summary of this description of a New Orleans City Council Meeting.
Cover all the main points in depth.

Return ONLY valid JSON in exactly this form, with no commentary and no backticks:
{"summary": "..."}

DESCRIPTION:
%s
`

// BuildOverallPrompt asks for the summary of the window summaries.
func BuildOverallPrompt(text string) string {
	return fmt.Sprintf(overallPrompt, text)
}
