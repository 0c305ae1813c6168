package coder

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)```[ \t]*(?:python3?|py)?[ \t]*\r?\n(.*?)```")

// CleanCode extracts the script from a model reply, dropping markdown fences.
// The first fenced block wins; an unterminated fence is stripped on its own.
func CleanCode(reply string) string {
	reply = strings.TrimSpace(reply)
	if m := fenceRe.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}

	if strings.HasPrefix(reply, "```") {
		if i := strings.IndexByte(reply, '\n'); i >= 0 {
			reply = reply[i+1:]
		} else {
			reply = ""
		}
	}
	reply = strings.TrimSuffix(strings.TrimSpace(reply), "```")
	return strings.TrimSpace(reply)
}
