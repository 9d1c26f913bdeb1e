package model

import (
	"os"
	"strings"
)

// LoadLabels reads a newline-delimited breed list. Line i names class i.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return []string{}, nil
	}

	labels := strings.Split(text, "\n")
	for i, l := range labels {
		labels[i] = strings.TrimSpace(l)
	}
	return labels, nil
}
