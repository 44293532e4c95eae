package minutes

import (
	"regexp"
	"strings"
)

// Matches: La séance est ouverte à 19 heures 30
// pdftotext often renders the separators as non-breaking spaces.
var sessionOpenedRegex = regexp.MustCompile(`La séance est ouverte à[\s\x{00A0}][0-9]+[\s\x{00A0}]h(?:eures?)?[\s\x{00A0}][0-9]*`)

// Option configures a Parser.
type Option func(*Parser)

// WithStrictTitles makes the parser fail with ErrDuplicateItemTitle when two
// agenda items share a title, instead of keeping the last one.
func WithStrictTitles() Option {
	return func(p *Parser) {
		p.strictTitles = true
	}
}

// Parser turns the text of one council transcript into a Meeting.
// A Parser holds no per-parse state and is safe for concurrent use.
type Parser struct {
	strictTitles bool
}

// NewParser creates a parser with the given options.
func NewParser(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses a transcript with the default parser.
func Parse(text string) (*Meeting, error) {
	return NewParser().Parse(text)
}

// Parse builds the meeting record of a complete transcript.
//
// Text before the first "CONSEIL COMMUNAL DU" is ignored. The rest is split on
// the session-opened announcement into a preamble, which carries the header
// and the attendee roster, and a body, which carries the agenda items.
func (p *Parser) Parse(text string) (*Meeting, error) {
	preamble, body, err := SplitSections(text)
	if err != nil {
		return nil, err
	}

	header, err := ExtractHeader(preamble)
	if err != nil {
		return nil, err
	}

	items, err := splitItems(body, p.strictTitles)
	if err != nil {
		return nil, err
	}

	attendees, err := ExtractAttendees(preamble)
	if err != nil {
		return nil, err
	}

	return NewMeeting(header.Title, header.Date, items, attendees)
}

// HeaderOffset returns the byte offset of the first "CONSEIL COMMUNAL DU" in
// text, which is the size of the prefix Parse skips.
func HeaderOffset(text string) (int, bool) {
	i := strings.Index(text, headerAnchor)
	return i, i >= 0
}

// SplitSections drops everything before the header anchor and splits the rest
// into preamble and body on the session-opened announcement.
func SplitSections(text string) (preamble, body string, err error) {
	offset, ok := HeaderOffset(text)
	if !ok {
		return "", "", fail(ErrNoTitleFound, "marker %q not found", headerAnchor)
	}

	segments := sessionOpenedRegex.Split(text[offset:], -1)
	for len(segments) > 0 && segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}
	if len(segments) != 2 {
		return "", "", fail(ErrSplitMismatch, "expected preamble and body, got %d segments", len(segments))
	}
	return segments[0], segments[1], nil
}
