package pipeline

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// WriteYAML renders one or more reports as a YAML document.
func WriteYAML(w io.Writer, reports ...*Report) error {
	out, err := yaml.Marshal(reports)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// HasFailures reports whether any item in any report failed.
func HasFailures(reports ...*Report) bool {
	for _, r := range reports {
		if r != nil && r.Failed > 0 {
			return true
		}
	}
	return false
}
