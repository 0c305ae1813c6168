package llm

import "strings"

// Fill replaces {name} placeholders in template. Values are inserted verbatim and
// never rescanned, so code or user text containing braces is safe.
func Fill(template string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
