package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
)

func str(s string) *string { return &s }

func meeting(t *testing.T, title string, date time.Time, items []minutes.Item, names ...string) *minutes.Meeting {
	t.Helper()
	var people []minutes.Person
	for _, n := range names {
		people = append(people, minutes.Person{Name: n})
	}
	m, err := minutes.NewMeeting(title, date, items, people)
	require.NoError(t, err)
	return m
}

func TestSummarize(t *testing.T) {
	oct := time.Date(2018, time.October, 29, 0, 0, 0, 0, time.UTC)
	nov := time.Date(2018, time.November, 26, 0, 0, 0, 0, time.UTC)

	first := meeting(t, "CONSEIL COMMUNAL DU LUNDI 29 OCTOBRE 2018", oct, []minutes.Item{
		minutes.NewItem("Budget", str("Débat."), str("A l'unanimité, approuve.")),
		minutes.NewItem("Voirie", nil, str("Par 12 voix contre 3, approuve.")),
		minutes.NewItem("Divers", nil, nil),
	}, "J.GOBERT", "F.GHIOT")
	second := meeting(t, "CONSEIL COMMUNAL DU LUNDI 26 NOVEMBRE 2018", nov, []minutes.Item{
		minutes.NewItem("Fabriques d'église", nil, str("Par 10 voix, approuve.")),
	}, "J.GOBERT")

	r := Summarize([]*minutes.Meeting{first, nil, second})

	assert.Equal(t, 2, r.Meetings)
	assert.Equal(t, 4, r.Items)
	// Unknown unanimity counts as unanimous.
	assert.Equal(t, 2, r.UnanimousVotes)
	assert.Equal(t, 2, r.ContestedVotes())

	require.Len(t, r.ContentiousItems, 2)
	assert.Equal(t, "Voirie", r.ContentiousItems[0].ItemTitle)
	assert.Equal(t, first.ID(), r.ContentiousItems[0].MeetingID)
	assert.Equal(t, "Par 12 voix contre 3, approuve.", r.ContentiousItems[0].Decision)
	require.NotNil(t, r.ContentiousItems[0].MeetingDate)
	assert.True(t, oct.Equal(*r.ContentiousItems[0].MeetingDate))
	assert.Equal(t, "Fabriques d'église", r.ContentiousItems[1].ItemTitle)

	assert.Equal(t, []AttendanceEntry{
		{Name: "J.GOBERT", Meetings: 2},
		{Name: "F.GHIOT", Meetings: 1},
	}, r.Attendance)
}

func TestSummarize_Empty(t *testing.T) {
	r := Summarize(nil)
	assert.Zero(t, r.Meetings)
	assert.Zero(t, r.Items)
	assert.NotNil(t, r.ContentiousItems)
	assert.NotNil(t, r.Attendance)
}

func TestSummarize_UndatedMeeting(t *testing.T) {
	m := meeting(t, "CONSEIL COMMUNAL", time.Time{}, []minutes.Item{
		minutes.NewItem("Motion", nil, str("Rejette.")),
	})
	r := Summarize([]*minutes.Meeting{m})
	require.Len(t, r.ContentiousItems, 1)
	assert.Nil(t, r.ContentiousItems[0].MeetingDate)
}

func TestSortAttendance(t *testing.T) {
	tests := []struct {
		name   string
		counts map[string]int
		want   []AttendanceEntry
	}{
		{"empty", map[string]int{}, []AttendanceEntry{}},
		{"by count", map[string]int{"B": 1, "A": 3}, []AttendanceEntry{{"A", 3}, {"B", 1}}},
		{"ties by name", map[string]int{"M.DRUART": 2, "F.GHIOT": 2}, []AttendanceEntry{{"F.GHIOT", 2}, {"M.DRUART", 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SortAttendance(tt.counts))
		})
	}
}

func TestWriteText(t *testing.T) {
	m := meeting(t, "CONSEIL COMMUNAL DU LUNDI 29 OCTOBRE 2018",
		time.Date(2018, time.October, 29, 0, 0, 0, 0, time.UTC),
		[]minutes.Item{minutes.NewItem("Voirie", nil, str("Par 12 voix, approuve."))},
		"J.GOBERT")

	var buf bytes.Buffer
	require.NoError(t, Summarize([]*minutes.Meeting{m}).WriteText(&buf))

	out := buf.String()
	assert.Contains(t, out, "Meetings:          1")
	assert.Contains(t, out, "Contentious items: 1")
	assert.Contains(t, out, "2018-10-29  Voirie")
	assert.Contains(t, out, "J.GOBERT")
}

func TestSummarize_TrimsItemTitles(t *testing.T) {
	m := meeting(t, "CONSEIL COMMUNAL DU LUNDI 29 OCTOBRE 2018",
		time.Date(2018, time.October, 29, 0, 0, 0, 0, time.UTC),
		[]minutes.Item{minutes.NewItem("3.- Travaux\n", nil, str("Le Conseil,Par 20 voix pour,\n"))})

	r := Summarize([]*minutes.Meeting{m})
	require.Len(t, r.ContentiousItems, 1)
	assert.Equal(t, "3.- Travaux", r.ContentiousItems[0].ItemTitle)
}
