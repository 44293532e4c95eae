package minutes

import "regexp"

// TokenKind is the classification of one transcript line.
type TokenKind int

const (
	// PlainText is any line that carries no marker.
	PlainText TokenKind = iota
	// AgendaItemMarker opens a numbered agenda item, e.g. "3.- Décision de principe".
	AgendaItemMarker
	// DecisionMarker opens a formal decision ("Le Conseil,").
	DecisionMarker
	// SpeakerMarker attributes a line to a speaker, e.g. "M.Gobert : ...".
	SpeakerMarker
)

// String returns the string representation of the token kind.
func (k TokenKind) String() string {
	switch k {
	case AgendaItemMarker:
		return "agenda_item"
	case DecisionMarker:
		return "decision"
	case SpeakerMarker:
		return "speaker"
	default:
		return "text"
	}
}

// Token is one classified line. Text is always the full line.
type Token struct {
	Kind TokenKind
	Text string
}

// Line classification regular expressions, evaluated in order.
var (
	// Matches: 3.- Décision de principe
	agendaItemRegex = regexp.MustCompile(`^\s*[0-9]+\.- .*$`)
	// Matches: Le Conseil,
	decisionRegex = regexp.MustCompile(`^\s*Le Conseil,.*$`)
	// Matches: M.Gobert   : Vous avez la parole.
	speakerRegex = regexp.MustCompile(`^\s*M\..*:.*$`)
)

var classifiers = []struct {
	kind  TokenKind
	regex *regexp.Regexp
}{
	{AgendaItemMarker, agendaItemRegex},
	{DecisionMarker, decisionRegex},
	{SpeakerMarker, speakerRegex},
}

// ClassifyLine maps one line (without its terminator) to a token.
// The first matching rule wins; lines matching none are PlainText.
func ClassifyLine(line string) Token {
	for _, c := range classifiers {
		if c.regex.MatchString(line) {
			return Token{Kind: c.kind, Text: line}
		}
	}
	return Token{Kind: PlainText, Text: line}
}
