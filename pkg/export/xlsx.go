package export

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
)

// Sheet names of the XLSX archive.
const (
	SheetMeetings  = "Meetings"
	SheetItems     = "Items"
	SheetAttendees = "Attendees"
)

// maxCellText keeps long debate transcripts below the XLSX cell limit.
const maxCellText = 32000

// WriteXLSX writes meetings as a workbook with one sheet per table:
// meetings, agenda items and attendees.
func WriteXLSX(w io.Writer, meetings []*minutes.Meeting) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetMeetings); err != nil {
		return err
	}
	for _, name := range []string{SheetItems, SheetAttendees} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	meetingsSheet := newSheetWriter(f, SheetMeetings,
		"ID", "Date", "Title", "Items", "Attendees", "Contentious Items")
	itemsSheet := newSheetWriter(f, SheetItems,
		"Meeting ID", "Date", "#", "Title", "Unanimous Vote", "Decision", "Discussion")
	attendeesSheet := newSheetWriter(f, SheetAttendees,
		"Meeting ID", "Date", "Name", "Title")

	for _, m := range meetings {
		date := ""
		if d, ok := m.Date(); ok {
			date = d.Format("2006-01-02")
		}
		items := m.Items()
		attendees := m.Attendees()

		contentious := 0
		for i, it := range items {
			if it.Unanimity() == minutes.NotUnanimous {
				contentious++
			}
			decision, _ := it.Decision()
			discussion, _ := it.Discussion()
			itemsSheet.row(m.ID(), date, i+1, it.Title(), voteCell(it.Unanimity()),
				truncate(decision, maxCellText), truncate(discussion, maxCellText))
		}
		for _, p := range attendees {
			attendeesSheet.row(m.ID(), date, p.Name, p.Title)
		}
		meetingsSheet.row(m.ID(), date, m.Title(), len(items), len(attendees), contentious)
	}

	for _, s := range []*sheetWriter{meetingsSheet, itemsSheet, attendeesSheet} {
		if s.err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", s.name, s.err)
		}
	}

	// Widen a few columns
	_ = f.SetColWidth(SheetMeetings, "A", "A", 38) // id
	_ = f.SetColWidth(SheetMeetings, "B", "B", 12) // date
	_ = f.SetColWidth(SheetMeetings, "C", "C", 48) // title
	_ = f.SetColWidth(SheetItems, "D", "D", 60)    // item title
	_ = f.SetColWidth(SheetItems, "F", "G", 80)    // decision, discussion
	_ = f.SetColWidth(SheetAttendees, "C", "C", 28)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// sheetWriter appends rows to one sheet and keeps the first error.
type sheetWriter struct {
	f    *excelize.File
	name string
	next int
	err  error
}

func newSheetWriter(f *excelize.File, name string, headers ...string) *sheetWriter {
	s := &sheetWriter{f: f, name: name, next: 1}
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	s.row(values...)
	return s
}

func (s *sheetWriter) row(values ...any) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, s.next)
	if err != nil {
		s.err = err
		return
	}
	if err := s.f.SetSheetRow(s.name, cell, &values); err != nil {
		s.err = err
		return
	}
	s.next++
}

func voteCell(u minutes.Unanimity) string {
	switch u {
	case minutes.Unanimous:
		return "yes"
	case minutes.NotUnanimous:
		return "no"
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
