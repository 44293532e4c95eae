package minutes

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// headerAnchor marks the start of the minutes proper.
const headerAnchor = "CONSEIL COMMUNAL DU"

// frenchMonths maps upper-case French month names, accented or not, to months.
var frenchMonths = map[string]time.Month{
	"JANVIER":   time.January,
	"FÉVRIER":   time.February,
	"FEVRIER":   time.February,
	"MARS":      time.March,
	"AVRIL":     time.April,
	"MAI":       time.May,
	"JUIN":      time.June,
	"JUILLET":   time.July,
	"AOUT":      time.August,
	"AOÛT":      time.August,
	"SEPTEMBRE": time.September,
	"OCTOBRE":   time.October,
	"NOVEMBRE":  time.November,
	"DÉCEMBRE":  time.December,
	"DECEMBRE":  time.December,
}

// Matches: CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017
var headerRegex = regexp.MustCompile(`^` + headerAnchor + ` \w+ ([0-9]?[0-9]) (` + monthAlternation() + `) ([0-9]{4})$`)

func monthAlternation() string {
	names := make([]string, 0, len(frenchMonths))
	for name := range frenchMonths {
		names = append(names, regexp.QuoteMeta(name))
	}
	return strings.Join(names, "|")
}

// Header is the title line of a meeting and the date it announces.
type Header struct {
	Title string
	Date  time.Time
}

// ExtractHeader scans the preamble line by line and returns the first line that
// is exactly a meeting header once trimmed. A header naming an unknown month or
// an impossible calendar date is not a header.
func ExtractHeader(preamble string) (Header, error) {
	for _, line := range strings.Split(preamble, "\n") {
		m := headerRegex.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		month := frenchMonths[m[2]]
		year, _ := strconv.Atoi(m[3])

		date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if date.Day() != day || date.Month() != month {
			continue
		}
		return Header{Title: m[0], Date: date}, nil
	}
	return Header{}, fail(ErrNoTitleFound, "no line matches %q followed by a weekday and a date", headerAnchor)
}
