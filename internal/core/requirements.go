package core

import "strings"

// Requirements accumulated over a clarification dialogue.
// Every field is a set; merging is a union and nothing is ever removed.
type Requirements struct {
	Datasets   []string `json:"datasets,omitempty"`
	ChartTypes []string `json:"chart_types,omitempty"`
	Filters    []string `json:"filters,omitempty"`
	Notes      []string `json:"notes,omitempty"`
}

// Merge returns the union of r and other, keeping first-seen order
func (r Requirements) Merge(other Requirements) Requirements {
	return Requirements{
		Datasets:   union(r.Datasets, other.Datasets),
		ChartTypes: union(r.ChartTypes, other.ChartTypes),
		Filters:    union(r.Filters, other.Filters),
		Notes:      union(r.Notes, other.Notes),
	}
}

// Empty reports whether nothing has been learned yet
func (r Requirements) Empty() bool {
	return len(r.Datasets) == 0 && len(r.ChartTypes) == 0 && len(r.Filters) == 0 && len(r.Notes) == 0
}

// Describe renders the requirements as prompt text
func (r Requirements) Describe() string {
	var b strings.Builder
	write := func(label string, values []string) {
		if len(values) == 0 {
			return
		}
		b.WriteString("- ")
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(strings.Join(values, "; "))
		b.WriteString("\n")
	}
	write("datasets", r.Datasets)
	write("chart types", r.ChartTypes)
	write("filters", r.Filters)
	write("notes", r.Notes)
	return b.String()
}

func union(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
