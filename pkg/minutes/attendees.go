package minutes

import (
	"regexp"
	"strings"
)

// rosterMarker opens the list of attendees.
const rosterMarker = "Sont présents : "

var (
	// agendaMarkerRegex closes the roster. Matching on the original text keeps
	// byte offsets valid whatever the case of the marker.
	agendaMarkerRegex = regexp.MustCompile(`(?i)ORDRE DU JOUR`)
	// rosterSeparatorRegex splits the roster on commas and on " et ".
	rosterSeparatorRegex = regexp.MustCompile(`,|( et )`)
)

// honorificPrefixes are stripped from roster entries, first match wins.
var honorificPrefixes = []string{"MM.", "Mmes", "Mme"}

// ExtractAttendees returns the people listed between "Sont présents : " and
// the first "ORDRE DU JOUR" of the preamble, in roster order.
//
// Entries are names written in capitals, optionally preceded by an honorific
// and an initial ("Mme A.DE LA PROET"). Mixed-case entries are roles such as
// "Bourgmestre-Président" and are dropped.
func ExtractAttendees(preamble string) ([]Person, error) {
	start := strings.Index(preamble, rosterMarker)
	if start < 0 {
		return nil, fail(ErrMissingAttendeeBlock, "marker %q not found", rosterMarker)
	}
	loc := agendaMarkerRegex.FindStringIndex(preamble)
	if loc == nil {
		return nil, fail(ErrMissingAttendeeBlock, "marker %q not found", "ORDRE DU JOUR")
	}
	start += len(rosterMarker)
	end := loc[0]
	if end < start {
		return nil, fail(ErrMissingAttendeeBlock, "agenda marker precedes the attendee roster")
	}

	block := strings.ReplaceAll(strings.TrimSpace(preamble[start:end]), "\n", ",")

	var people []Person
	for _, entry := range rosterSeparatorRegex.Split(block, -1) {
		if name, ok := attendeeName(entry); ok {
			people = append(people, Person{Name: name})
		}
	}
	return people, nil
}

// attendeeName normalizes one roster entry and reports whether it is a name.
func attendeeName(entry string) (string, bool) {
	entry = strings.TrimSpace(entry)
	for _, prefix := range honorificPrefixes {
		if strings.HasPrefix(entry, prefix) {
			entry = entry[len(prefix):]
			break
		}
	}

	// "M.J.GOBERT" carries an honorific and an initial: keep "J.GOBERT".
	if first, last := strings.Index(entry, "."), strings.LastIndex(entry, "."); first < last {
		entry = entry[first+1:]
	}

	entry = strings.TrimSpace(entry)
	if entry == "" || strings.ToUpper(entry) != entry {
		return "", false
	}
	return entry, true
}
