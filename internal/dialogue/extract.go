package dialogue

import (
	"regexp"
	"slices"
	"strings"

	"astro_insight/internal/core"
)

var (
	tokenRe   = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	filterRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwhere\s+([^,.;\n]+)`),
		regexp.MustCompile(`(?i)\bonly\s+([^,.;\n]+)`),
		regexp.MustCompile(`(?i)\bfilter(?:ed)?\s+(?:by\s+|on\s+)?([^,.;\n]+)`),
		regexp.MustCompile(`(?i)\bwith\s+([\w.]+\s*(?:[<>]=?|==?)\s*[\w.+-]+)`),
	}
)

// Extractor finds requirement signals in free text
type Extractor struct {
	chartKeywords []string
	datasets      func() []string
}

// NewExtractor matches chart keywords and the dataset names returned by datasets
func NewExtractor(chartKeywords []string, datasets func() []string) *Extractor {
	if datasets == nil {
		datasets = func() []string { return nil }
	}
	return &Extractor{chartKeywords: chartKeywords, datasets: datasets}
}

// Extract returns the requirements mentioned in text
func (e *Extractor) Extract(text string) core.Requirements {
	var req core.Requirements
	lower := strings.ToLower(text)

	for _, name := range e.datasets() {
		if name != "" && strings.Contains(lower, strings.ToLower(name)) {
			req.Datasets = append(req.Datasets, name)
		}
	}

	words := tokenRe.FindAllString(lower, -1)
	for _, kw := range e.chartKeywords {
		kw = strings.ToLower(kw)
		if slices.Contains(words, kw) || slices.Contains(words, kw+"s") || slices.Contains(words, kw+"es") {
			req.ChartTypes = append(req.ChartTypes, kw)
		}
	}

	for _, re := range filterRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if f := strings.TrimSpace(m[1]); f != "" && !slices.Contains(req.Filters, f) {
				req.Filters = append(req.Filters, f)
			}
		}
	}
	return req
}
