// Package names mines personal-name candidates from free text.
//
// The heuristic favours precision over recall. It looks at one line at a time
// and only accepts short lines made entirely of capitalized words, initials,
// compounds and suffixes, plus "Last, First" lines which it reorders.
package names

import (
	"regexp"
	"strings"
)

// MaxResults caps how many candidates Extract returns.
const MaxResults = 50

const (
	maxWords         = 4
	maxNameLength    = 50
	minSingleWordLen = 2
	maxSingleWordLen = 20
)

var (
	lineSplit = regexp.MustCompile(`[\n\r]+`)
	// Digits, emails, URL markers and punctuation not found in names.
	lineReject = regexp.MustCompile("\\d|@|www\\.|http|\\.com|[#$%^&*+=<>{}\\[\\]\\\\|`~]")

	capitalized = regexp.MustCompile(`^[A-Z][a-z]+$`)
	compound    = regexp.MustCompile(`^[A-Z][a-z]*[-'][A-Z][a-z]*$`)
	initial     = regexp.MustCompile(`^[A-Z]\.?$`)
	suffix      = regexp.MustCompile(`(?i)^(Jr|Sr|II|III|IV)\.?$`)

	noiseWord = regexp.MustCompile(`(?i)\b(and|or|the|in|on|at|for|with|by|page|line|date|time|total|sum|count)\b`)
)

// singleWordStoplist holds capitalized words that head documents far more
// often than they name people.
var singleWordStoplist = map[string]struct{}{
	"page": {}, "line": {}, "date": {}, "time": {}, "chapter": {}, "section": {},
	"note": {}, "item": {}, "list": {}, "part": {}, "vol": {}, "no": {}, "ref": {},
}

// Extract returns the name candidates found in text in first-seen order,
// without duplicates and at most MaxResults long.
func Extract(text string) []string {
	var candidates []string
	for _, line := range lineSplit.Split(text, -1) {
		candidates = append(candidates, lineCandidates(line)...)
	}
	return finalize(dedupe(candidates))
}

func lineCandidates(line string) []string {
	line = strings.TrimSpace(line)
	if len([]rune(line)) < 2 || lineReject.MatchString(line) {
		return nil
	}

	var out []string
	words := strings.Fields(line)
	switch {
	case len(words) == 1:
		if isSingleWordName(words[0]) {
			out = append(out, words[0])
		}
	case len(words) <= maxWords && allWords(words, isNameToken):
		out = append(out, strings.Join(words, " "))
	}

	if name, ok := reorderLastFirst(line, len(words)); ok {
		out = append(out, name)
	}
	return out
}

func isSingleWordName(word string) bool {
	if len(word) < minSingleWordLen || len(word) > maxSingleWordLen {
		return false
	}
	if !capitalized.MatchString(word) {
		return false
	}
	_, stop := singleWordStoplist[strings.ToLower(word)]
	return !stop
}

func isNameToken(word string) bool {
	return capitalized.MatchString(word) ||
		compound.MatchString(word) ||
		initial.MatchString(word) ||
		suffix.MatchString(word)
}

func isFirstNameToken(word string) bool {
	return capitalized.MatchString(word) || initial.MatchString(word)
}

// reorderLastFirst turns "Smith, John" into "John Smith".
func reorderLastFirst(line string, wordCount int) (string, bool) {
	if !strings.Contains(line, ",") || strings.Contains(line, ".") || wordCount > maxWords {
		return "", false
	}
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return "", false
	}
	last := strings.Fields(parts[0])
	first := strings.Fields(parts[1])
	if len(last) == 0 || len(last) > 2 || !allWords(last, capitalized.MatchString) {
		return "", false
	}
	if len(first) == 0 || len(first) > 3 || !allWords(first, isFirstNameToken) {
		return "", false
	}
	return strings.TrimSpace(parts[1]) + " " + strings.TrimSpace(parts[0]), true
}

func allWords(words []string, ok func(string) bool) bool {
	for _, w := range words {
		if !ok(w) {
			return false
		}
	}
	return true
}

func dedupe(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func finalize(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		n := len(strings.Fields(name))
		if n < 1 || n > maxWords {
			continue
		}
		if len(name) > maxNameLength || len(strings.TrimSpace(name)) <= 1 {
			continue
		}
		if noiseWord.MatchString(name) {
			continue
		}
		out = append(out, name)
		if len(out) == MaxResults {
			break
		}
	}
	return out
}
