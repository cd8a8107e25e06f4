package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	spaceRe = regexp.MustCompile(`\s+`)
	codeRe  = regexp.MustCompile(`(?i)([a-z]+)\s*(\d+)$`)
)

// ParsedLabel holds the structured data parsed from a spot label such as "Panaji-A1".
type ParsedLabel struct {
	Area  string
	Block string
	Seq   int
}

// Zone returns the display zone, e.g. "Panaji - Block A".
func (p ParsedLabel) Zone() string {
	if p.Area == "" {
		return "Block " + p.Block
	}
	return p.Area + " - Block " + p.Block
}

// Label returns the canonical label, e.g. "Panaji-A1".
func (p ParsedLabel) Label() string {
	if p.Area == "" {
		return fmt.Sprintf("%s%d", p.Block, p.Seq)
	}
	return fmt.Sprintf("%s-%s%d", p.Area, p.Block, p.Seq)
}

// ParseLabel extracts area, block letter(s) and sequence number from a raw spot label.
// The area is everything before the last "-"; it may be empty ("C3").
func ParseLabel(raw string) (ParsedLabel, error) {
	s := strings.TrimSpace(spaceRe.ReplaceAllString(raw, " "))
	if s == "" {
		return ParsedLabel{}, fmt.Errorf("empty spot label")
	}

	area, code := "", s
	if i := strings.LastIndex(s, "-"); i >= 0 {
		area = strings.TrimSpace(s[:i])
		code = strings.TrimSpace(s[i+1:])
	}

	m := codeRe.FindStringSubmatch(code)
	if m == nil || len(m[0]) != len(code) {
		return ParsedLabel{}, fmt.Errorf("unable to parse block and number from label: %q", raw)
	}
	seq, err := strconv.Atoi(m[2])
	if err != nil || seq <= 0 {
		return ParsedLabel{}, fmt.Errorf("invalid spot number in label: %q", raw)
	}

	return ParsedLabel{Area: area, Block: strings.ToUpper(m[1]), Seq: seq}, nil
}
