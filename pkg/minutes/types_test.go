package minutes

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewItem_Unanimity(t *testing.T) {
	tests := []struct {
		name     string
		decision *string
		want     Unanimity
	}{
		{"no decision", nil, UnanimityUnknown},
		{"unanimous", stringPtr("Le Conseil,\nA l'unanimité,\nDECIDE"), Unanimous},
		{"formula needs the comma", stringPtr("Le Conseil,\nA l'unanimité des membres"), NotUnanimous},
		{"vote count", stringPtr("Le Conseil,\nPar 28 voix pour et 6 abstentions,"), NotUnanimous},
		{"empty decision", stringPtr(""), NotUnanimous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewItem("1.- Budget", nil, tt.decision).Unanimity())
		})
	}
}

func TestUnanimity_Bool(t *testing.T) {
	v, known := Unanimous.Bool()
	assert.True(t, v)
	assert.True(t, known)

	v, known = NotUnanimous.Bool()
	assert.False(t, v)
	assert.True(t, known)

	_, known = UnanimityUnknown.Bool()
	assert.False(t, known)
}

func TestItem_EqualIgnoresUnanimity(t *testing.T) {
	a := NewItem("1.- Budget", stringPtr("M.A : oui"), stringPtr("A l'unanimité,"))
	b := Item{title: "1.- Budget", discussion: stringPtr("M.A : oui"), decision: stringPtr("A l'unanimité,"), unanimity: NotUnanimous}
	assert.True(t, a.Equal(b))

	assert.False(t, a.Equal(NewItem("1.- Budget", nil, stringPtr("A l'unanimité,"))))
	assert.False(t, a.Equal(NewItem("2.- Budget", stringPtr("M.A : oui"), stringPtr("A l'unanimité,"))))
}

func TestNewItem_CopiesInputs(t *testing.T) {
	decision := "Le Conseil,"
	item := NewItem("1.- Budget", nil, &decision)
	decision = "A l'unanimité,"

	got, _ := item.Decision()
	assert.Equal(t, "Le Conseil,", got)
	assert.Equal(t, NotUnanimous, item.Unanimity())
}

func TestNewMeeting(t *testing.T) {
	_, err := NewMeeting("", time.Time{}, nil, nil)
	assert.Error(t, err)

	items := []Item{NewItem("1.- Budget", nil, nil)}
	people := []Person{{Name: "J.GOBERT"}}
	m, err := NewMeeting("CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017", time.Time{}, items, people)
	require.NoError(t, err)

	_, ok := m.Date()
	assert.False(t, ok, "zero time means no date")

	items[0] = NewItem("changed", nil, nil)
	people[0].Name = "changed"
	assert.Equal(t, "1.- Budget", m.Items()[0].Title(), "record does not share the caller's slices")
	assert.Equal(t, "J.GOBERT", m.Attendees()[0].Name)

	returned := m.Attendees()
	returned[0].Name = "changed"
	assert.Equal(t, "J.GOBERT", m.Attendees()[0].Name, "accessors return copies")
}

func TestNewMeeting_TruncatesDate(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	m, err := NewMeeting("CONSEIL", time.Date(2017, 11, 27, 23, 30, 0, 0, paris), nil, nil)
	require.NoError(t, err)

	date, ok := m.Date()
	require.True(t, ok)
	assert.Equal(t, time.Date(2017, 11, 27, 0, 0, 0, 0, time.UTC), date)
}

func TestMeeting_Equal(t *testing.T) {
	date := time.Date(2017, 11, 27, 0, 0, 0, 0, time.UTC)
	items := []Item{NewItem("1.- Budget", nil, stringPtr("A l'unanimité,"))}
	people := []Person{{Name: "J.GOBERT"}}

	a, _ := NewMeeting("CONSEIL", date, items, people)
	b, _ := NewMeeting("CONSEIL", date, items, people)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.True(t, a.Equal(b))

	c, _ := NewMeeting("CONSEIL", date, items, []Person{{Name: "J.GOBERT", Title: "Bourgmestre"}})
	assert.False(t, a.Equal(c))

	d, _ := NewMeeting("CONSEIL", time.Time{}, items, people)
	assert.False(t, a.Equal(d))

	var nilMeeting *Meeting
	assert.False(t, a.Equal(nilMeeting))
	assert.True(t, nilMeeting.Equal(nil))
}

func TestMeeting_MarshalJSON(t *testing.T) {
	date := time.Date(2017, 11, 27, 0, 0, 0, 0, time.UTC)
	m, err := newMeeting("5b2c3c1e-1111-4a4a-8b8b-000000000001", "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017", date,
		[]Item{
			NewItem("Avant-séance\n", stringPtr("M.Gobert : Bonsoir."), nil),
			NewItem("1.- Budget", nil, stringPtr("Le Conseil,A l'unanimité,\n")),
			NewItem("2.- Travaux", nil, stringPtr("Le Conseil,Par 20 voix,\n")),
		},
		[]Person{{Name: "J.GOBERT"}},
	)
	require.NoError(t, err)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"id": "5b2c3c1e-1111-4a4a-8b8b-000000000001",
		"title": "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017",
		"meetingDate": "2017-11-27",
		"items": [
			{"title": "Avant-séance\n", "discussion": "M.Gobert : Bonsoir."},
			{"title": "1.- Budget", "decision": "Le Conseil,A l'unanimité,\n", "unanimousVote": true},
			{"title": "2.- Travaux", "decision": "Le Conseil,Par 20 voix,\n", "unanimousVote": false}
		],
		"attendees": [{"name": "J.GOBERT"}]
	}`, string(data))

	var decoded Meeting
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m.ID(), decoded.ID())
	assert.True(t, m.Equal(&decoded))
}

func TestMeeting_MarshalJSON_NoDate(t *testing.T) {
	m, err := NewMeeting("CONSEIL", time.Time{}, nil, nil)
	require.NoError(t, err)

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "meetingDate")
	assert.Equal(t, []any{}, raw["items"])
	assert.Equal(t, []any{}, raw["attendees"])
}

func TestMeeting_UnmarshalJSON_Invalid(t *testing.T) {
	var m Meeting
	assert.Error(t, json.Unmarshal([]byte(`{"title": "X", "meetingDate": "27/11/2017"}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"title": ""}`), &m))

	require.NoError(t, json.Unmarshal([]byte(`{"title": "X"}`), &m))
	assert.NotEmpty(t, m.ID(), "a missing id is generated")
}

func TestMeeting_MarshalYAML(t *testing.T) {
	m, err := NewMeeting("CONSEIL", time.Date(2018, 3, 8, 0, 0, 0, 0, time.UTC),
		[]Item{NewItem("1.- Budget", nil, stringPtr("A l'unanimité,"))}, nil)
	require.NoError(t, err)

	data, err := yaml.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), "meetingDate:")
	assert.Contains(t, string(data), "2018-03-08")
	assert.Contains(t, string(data), "unanimousVote: true")
}
