// Package report computes run statistics over a set of meeting records:
// vote unanimity, contentious items and attendance.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
)

// ContentiousItem is an agenda item whose decision was not unanimous.
type ContentiousItem struct {
	MeetingID    string     `json:"meetingId" yaml:"meetingId"`
	MeetingTitle string     `json:"meetingTitle" yaml:"meetingTitle"`
	MeetingDate  *time.Time `json:"meetingDate,omitempty" yaml:"meetingDate,omitempty"`
	ItemTitle    string     `json:"itemTitle" yaml:"itemTitle"`
	Decision     string     `json:"decision,omitempty" yaml:"decision,omitempty"`
}

// AttendanceEntry is the number of roster entries recorded for one name.
type AttendanceEntry struct {
	Name     string `json:"name" yaml:"name"`
	Meetings int    `json:"meetings" yaml:"meetings"`
}

// Report holds the statistics of a set of meetings.
type Report struct {
	Meetings int `json:"meetings" yaml:"meetings"`
	Items    int `json:"items" yaml:"items"`

	// UnanimousVotes counts items not known to be contested; items without a
	// recorded outcome count as unanimous.
	UnanimousVotes   int               `json:"unanimousVotes" yaml:"unanimousVotes"`
	ContentiousItems []ContentiousItem `json:"contentiousItems" yaml:"contentiousItems"`

	// Attendance is sorted by descending count, then name.
	Attendance []AttendanceEntry `json:"attendance" yaml:"attendance"`
}

// Summarize computes the report of meetings. Nil entries are ignored.
func Summarize(meetings []*minutes.Meeting) Report {
	r := Report{
		ContentiousItems: []ContentiousItem{},
		Attendance:       []AttendanceEntry{},
	}
	counts := make(map[string]int)

	for _, m := range meetings {
		if m == nil {
			continue
		}
		r.Meetings++

		var date *time.Time
		if d, ok := m.Date(); ok {
			date = &d
		}

		for _, it := range m.Items() {
			r.Items++
			if it.Unanimity() != minutes.NotUnanimous {
				r.UnanimousVotes++
				continue
			}
			decision, _ := it.Decision()
			r.ContentiousItems = append(r.ContentiousItems, ContentiousItem{
				MeetingID:    m.ID(),
				MeetingTitle: m.Title(),
				MeetingDate:  date,
				ItemTitle:    strings.TrimSpace(it.Title()),
				Decision:     decision,
			})
		}

		for _, p := range m.Attendees() {
			counts[p.Name]++
		}
	}

	r.Attendance = SortAttendance(counts)
	return r
}

// SortAttendance turns a name→count map into entries sorted by descending
// count, then name.
func SortAttendance(counts map[string]int) []AttendanceEntry {
	out := make([]AttendanceEntry, 0, len(counts))
	for name, n := range counts {
		out = append(out, AttendanceEntry{Name: name, Meetings: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Meetings != out[j].Meetings {
			return out[i].Meetings > out[j].Meetings
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ContestedVotes is the number of items with a non-unanimous decision.
func (r Report) ContestedVotes() int {
	return len(r.ContentiousItems)
}

// Log writes the report to logger: one summary line, then one line per
// contentious item and per attendee.
func (r Report) Log(logger logging.Logger) {
	logger.Info("Run statistics",
		logging.F("meetings", r.Meetings),
		logging.F("items", r.Items),
		logging.F("unanimous_votes", r.UnanimousVotes),
		logging.F("contentious_items", r.ContestedVotes()))

	for _, c := range r.ContentiousItems {
		logger.Info("Contentious item",
			logging.F("meeting_id", c.MeetingID),
			logging.F("meeting", c.MeetingTitle),
			logging.F("item", c.ItemTitle))
	}
	for _, a := range r.Attendance {
		logger.Debug("Attendance",
			logging.F("name", a.Name),
			logging.F("meetings", a.Meetings))
	}
}

// WriteText prints a human-readable rendering of the report.
func (r Report) WriteText(w io.Writer) error {
	p := &errWriter{w: w}
	p.printf("Meetings:          %d\n", r.Meetings)
	p.printf("Agenda items:      %d\n", r.Items)
	p.printf("Unanimous votes:   %d\n", r.UnanimousVotes)
	p.printf("Contentious items: %d\n", r.ContestedVotes())

	if len(r.ContentiousItems) > 0 {
		p.printf("\nContentious items:\n")
		for _, c := range r.ContentiousItems {
			date := "----------"
			if c.MeetingDate != nil {
				date = c.MeetingDate.Format("2006-01-02")
			}
			p.printf("  %s  %s\n", date, c.ItemTitle)
		}
	}

	if len(r.Attendance) > 0 {
		p.printf("\nAttendance:\n")
		for _, a := range r.Attendance {
			p.printf("  %-30s %d\n", a.Name, a.Meetings)
		}
	}
	return p.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
