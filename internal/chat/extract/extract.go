// Package extract pulls the structured lead marker out of a model reply.
//
// The model is instructed to end its reply with a single line:
//
//	LEAD: name=John Smith | phone=555-555-5555 | zip=12345 | issue=clogged drain
//
// Extraction is tolerant of what models actually produce: the "LEAD:"
// prefix is optional, keys are matched case-insensitively, whitespace
// around keys and values is ignored, and the marker may follow text on
// the same line. When several lines carry a marker, the last one wins.
package extract

import (
	"strings"
)

// markerPrefix is the optional tag in front of the key=value list.
const markerPrefix = "lead:"

// nameKey identifies a marker line; a line without it is plain text.
const nameKey = "name="

// Candidate holds the fields read from a marker. Unknown keys are ignored.
type Candidate struct {
	Name  string
	Phone string
	Zip   string
	Issue string
}

// Valid reports whether the candidate can become a lead (name and phone set).
func (c *Candidate) Valid() bool {
	return c != nil && c.Name != "" && c.Phone != ""
}

// Result is the outcome of Extract.
type Result struct {
	// Reply is the text with the marker removed and surrounding whitespace trimmed.
	Reply string

	// Lead is the parsed marker, nil when no marker line was found.
	Lead *Candidate
}

// Found reports whether a marker line was present, valid or not.
func (r Result) Found() bool {
	return r.Lead != nil
}

// Extract scans reply for the last marker line and parses it.
//
// Text before the marker on its line is kept in the reply; the marker and
// everything after it on that line is removed, then the reply is trimmed.
// A reply without a marker is returned as is.
func Extract(reply string) Result {
	lines := strings.Split(reply, "\n")

	idx, start := -1, -1
	for i := len(lines) - 1; i >= 0; i-- {
		if s := markerStart(lines[i]); s >= 0 {
			idx, start = i, s
			break
		}
	}
	if idx < 0 {
		return Result{Reply: reply}
	}

	lead := parseFields(lines[idx][start:])

	kept := strings.TrimRight(lines[idx][:start], " \t\r")
	if kept == "" {
		lines = append(lines[:idx], lines[idx+1:]...)
	} else {
		lines[idx] = kept
	}

	return Result{
		Reply: strings.TrimSpace(strings.Join(lines, "\n")),
		Lead:  lead,
	}
}

// markerStart returns the byte offset where the marker begins in line, or -1.
// The marker begins at an optional "LEAD:" tag directly in front of the
// first "name=" key, otherwise at the key itself.
func markerStart(line string) int {
	lower := asciiLower(line)
	pos := strings.Index(lower, nameKey)
	if pos < 0 {
		return -1
	}

	before := strings.TrimRight(lower[:pos], " \t")
	if strings.HasSuffix(before, markerPrefix) {
		return len(before) - len(markerPrefix)
	}
	return pos
}

// parseFields reads "key=value" segments separated by '|'.
// Everything before the first "name=" (the optional tag) is skipped.
func parseFields(marker string) *Candidate {
	marker = marker[strings.Index(asciiLower(marker), nameKey):]

	c := &Candidate{}
	for _, seg := range strings.Split(marker, "|") {
		key, value, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		key = asciiLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}

		switch key {
		case "name":
			c.Name = value
		case "phone":
			c.Phone = value
		case "zip":
			c.Zip = value
		case "issue":
			c.Issue = value
		}
	}
	return c
}

// asciiLower lower-cases A-Z only, so byte offsets into the result are
// valid offsets into s.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
