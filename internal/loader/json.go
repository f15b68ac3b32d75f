package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// JSONLoader collects every string value in the document, depth first, into
// a single segment. Object keys are visited in sorted order so output is
// deterministic.
type JSONLoader struct{}

func (l *JSONLoader) Load(_ context.Context, data []byte) ([]Segment, error) {
	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("load json: %w", err)
	}

	var parts []string
	collectStrings(root, &parts)

	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return nil, nil
	}
	return []Segment{{Text: text}}, nil
}

func collectStrings(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) != "" {
			*out = append(*out, t)
		}
	case []any:
		for _, e := range t {
			collectStrings(e, out)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectStrings(t[k], out)
		}
	}
}
