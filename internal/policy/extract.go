package policy

import (
	"regexp"
	"strings"
)

const maxActionLength = 200

var (
	actionLabelRe  = regexp.MustCompile(`(?i)Action:\s*(.+?)(?:\n|$)`)
	fencedRe       = regexp.MustCompile("(?s)```(?:\\w+\\n)?\\s*(.*?)```")
	quotedRe       = regexp.MustCompile(`"([^"]+)"`)
	verbLineRe     = regexp.MustCompile(`(?im)^\s*((?:get|craft|go|pick|open|close|move|turn|toggle|use|look|read|put|pour|mix|eat|click|type|scroll|goto|search|inventory|examine|wait|task|focus|stop)\b.*)$`)
	multiVerbRe    = regexp.MustCompile(`(?i)\b((?:get|craft|go to|pick up|open|close|move|turn|toggle|use|look)\s+[^.\n]+)`)
	hedgingPrefix  = []string{"i think", "maybe", "perhaps", "i would", "i should", "let me think", "i'm not sure", "it depends", "based on", "according to", "given", "the ", "this ", "that ", "it ", "there "}
	labelPrefixes  = []string{"action:", "next action:", "my action:", "i will", "i'll"}
)

// ExtractAction pulls a single executable action out of a model reply.
// Candidates are tried most-structured first; the first one passing the
// validity check wins.
func ExtractAction(reply string) (string, bool) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", false
	}

	var candidates []string
	if m := actionLabelRe.FindStringSubmatch(reply); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := fencedRe.FindStringSubmatch(reply); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := quotedRe.FindStringSubmatch(reply); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := verbLineRe.FindStringSubmatch(reply); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := multiVerbRe.FindStringSubmatch(reply); m != nil {
		candidates = append(candidates, m[1])
	}
	if i := strings.IndexByte(reply, '\n'); i >= 0 {
		candidates = append(candidates, reply[:i])
	} else {
		candidates = append(candidates, reply)
	}

	for _, c := range candidates {
		if a, ok := cleanAction(c); ok {
			return a, true
		}
	}
	return "", false
}

func cleanAction(s string) (string, bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, p := range labelPrefixes {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			lower = strings.ToLower(s)
			break
		}
	}
	if !isValidAction(s) {
		return "", false
	}
	return s, true
}

func isValidAction(s string) bool {
	if len(s) < 2 || len(s) > maxActionLength {
		return false
	}
	if strings.HasSuffix(s, "?") {
		return false
	}
	lower := strings.ToLower(s)
	for _, p := range hedgingPrefix {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return true
}
