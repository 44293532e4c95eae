package minutes

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mnerrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
)

func loadTranscript(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "conseil_2017-11-27.txt"))
	require.NoError(t, err)
	return string(data)
}

func TestParse_Transcript(t *testing.T) {
	meeting, err := Parse(loadTranscript(t))
	require.NoError(t, err)

	assert.Equal(t, "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017", meeting.Title())
	date, ok := meeting.Date()
	require.True(t, ok)
	assert.Equal(t, time.Date(2017, time.November, 27, 0, 0, 0, 0, time.UTC), date)
	assert.NotEmpty(t, meeting.ID())

	items := meeting.Items()
	require.Len(t, items, 4)

	assert.Equal(t, "Avant-séance\n\n", items[0].Title())
	assert.Equal(t, UnanimityUnknown, items[0].Unanimity())
	discussion, ok := items[0].Discussion()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(discussion, "M.Gobert   : Est-ce que je peux inviter"))
	assert.Contains(t, discussion, "ORDRE DU JOUR")

	assert.Equal(t, "1.- Approbation du procès-verbal du Conseil communal du lundi 23 octobre 2017\n", items[1].Title())
	assert.Equal(t, UnanimityUnknown, items[1].Unanimity())
	_, hasDecision := items[1].Decision()
	assert.False(t, hasDecision)

	assert.True(t, strings.HasPrefix(items[2].Title(), "2.- Conseil communal - Remplacement"))
	assert.Contains(t, items[2].Title(), "Reconvocation")
	assert.Equal(t, Unanimous, items[2].Unanimity())
	decision, ok := items[2].Decision()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(decision, "Le Conseil,"))

	assert.True(t, strings.HasPrefix(items[3].Title(), "3.- Décision de principe"))
	assert.Equal(t, NotUnanimous, items[3].Unanimity())
	decision, ok = items[3].Decision()
	require.True(t, ok)
	assert.Contains(t, decision, "Par 28 voix pour et 6 abstentions,")
	assert.Contains(t, decision, "R.ANKAERT J.GOBERT")

	assert.Equal(t, []string{
		"J.GOBERT", "D.STAQUET", "J.GODIN", "F.GHIOT", "J.CHRISTIAENS",
		"M.DI MATTIA", "A.GAVA", "L.WIMLOT", "C.BURGEON", "J.C.WARGNIE",
		"T.ROTOLO", "I.VAN STEEN", "A.DUPONT", "A.BUSCEMI", "H.SERBES",
		"N.NANNI", "R.ANKAERT", "E. MAILLET",
	}, names(meeting.Attendees()))
}

func TestParse_FourAgendaMarkers(t *testing.T) {
	text := "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017\n" +
		"Sont présents : M.J.GOBERT, Bourgmestre-Président, Mme D.STAQUET\n" +
		"ORDRE DU JOUR\n" +
		"La séance est ouverte à 19 h 30\n" +
		"1.- Approbation du procès-verbal\n" +
		"M.Gobert : On peut l'approuver ?\n" +
		"2.- Budget\n" +
		"Le Conseil,\n" +
		"A l'unanimité,\n" +
		"3.- Travaux\n" +
		"Le Conseil,\n" +
		"Par 20 voix pour,\n" +
		"4.- Divers\n"

	meeting, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017", meeting.Title())
	require.Len(t, meeting.Items(), 4)
	assert.Equal(t, []string{"J.GOBERT", "D.STAQUET"}, names(meeting.Attendees()))

	var unanimity []Unanimity
	for _, item := range meeting.Items() {
		unanimity = append(unanimity, item.Unanimity())
	}
	assert.Equal(t, []Unanimity{UnanimityUnknown, Unanimous, NotUnanimous, UnanimityUnknown}, unanimity)
}

func TestParse_Idempotent(t *testing.T) {
	text := loadTranscript(t)

	first, err := Parse(text)
	require.NoError(t, err)
	second, err := Parse(text)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID(), "each parse generates a fresh id")
	assert.True(t, first.Equal(second))
}

func TestParse_Concurrent(t *testing.T) {
	text := loadTranscript(t)
	parser := NewParser()

	var wg sync.WaitGroup
	results := make([]*Meeting, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := parser.Parse(text)
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()

	for _, m := range results[1:] {
		assert.True(t, results[0].Equal(m))
	}
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		sentinel error
		code     mnerrors.ErrorCode
	}{
		{
			name:     "no anchor",
			text:     "Procès-verbal\nSont présents : M.J.GOBERT\nORDRE DU JOUR\nLa séance est ouverte à 19 heures 30\n1.- Budget",
			sentinel: ErrNoTitleFound,
			code:     mnerrors.ErrNoTitleFound,
		},
		{
			name:     "anchor without session opened",
			text:     "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017\nSont présents : M.J.GOBERT\nORDRE DU JOUR\n1.- Budget",
			sentinel: ErrSplitMismatch,
			code:     mnerrors.ErrSplitMismatch,
		},
		{
			name:     "session opened twice",
			text:     "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017\nLa séance est ouverte à 19 heures 30\n1.- A\nLa séance est ouverte à 20 heures 15\n2.- B",
			sentinel: ErrSplitMismatch,
			code:     mnerrors.ErrSplitMismatch,
		},
		{
			name:     "session opened at the very end",
			text:     "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017\nSont présents : M.J.GOBERT\nORDRE DU JOUR\nLa séance est ouverte à 19 heures ",
			sentinel: ErrSplitMismatch,
			code:     mnerrors.ErrSplitMismatch,
		},
		{
			name:     "anchor but unknown month",
			text:     "CONSEIL COMMUNAL DU MERCREDI 8 VENDEMAIRE 2018\nSont présents : M.J.GOBERT\nORDRE DU JOUR\nLa séance est ouverte à 19 heures 30\n1.- Budget",
			sentinel: ErrNoTitleFound,
			code:     mnerrors.ErrNoTitleFound,
		},
		{
			name:     "no roster",
			text:     "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017\nORDRE DU JOUR\nLa séance est ouverte à 19 heures 30\n1.- Budget",
			sentinel: ErrMissingAttendeeBlock,
			code:     mnerrors.ErrMissingAttendeeBlock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meeting, err := Parse(tt.text)
			require.Error(t, err)
			assert.Nil(t, meeting, "a parse is all-or-nothing")
			assert.ErrorIs(t, err, tt.sentinel)

			var pe *mnerrors.PipelineError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.code, pe.Code)
			assert.False(t, mnerrors.IsErrorRetryable(err))
		})
	}
}

func TestParse_MissingRosterOnlyFailsAttendees(t *testing.T) {
	text := "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017\nORDRE DU JOUR\nLa séance est ouverte à 19 heures 30\n1.- Budget\nLe Conseil,\nA l'unanimité,\n"

	preamble, body, err := SplitSections(text)
	require.NoError(t, err)

	header, err := ExtractHeader(preamble)
	require.NoError(t, err)
	assert.Equal(t, "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017", header.Title)

	items := SplitItems(body)
	require.Len(t, items, 1)
	assert.Equal(t, Unanimous, items[0].Unanimity())

	_, err = ExtractAttendees(preamble)
	assert.ErrorIs(t, err, ErrMissingAttendeeBlock)
}

func TestParse_StrictTitles(t *testing.T) {
	text := "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017\n" +
		"Sont présents : M.J.GOBERT\nORDRE DU JOUR\n" +
		"La séance est ouverte à 19 heures 30\n" +
		"Avant-séance\nM.Gobert : Bonsoir.\n" +
		"1.- Divers\nM.Gobert : premier passage\n" +
		"1.- Divers\nM.Gobert : second passage\n"

	lenient, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, lenient.Items(), 2)
	discussion, _ := lenient.Items()[1].Discussion()
	assert.Equal(t, "M.Gobert : second passage", discussion)

	_, err = NewParser(WithStrictTitles()).Parse(text)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateItemTitle)
	assert.Equal(t, mnerrors.ErrDuplicateItemTitle, mnerrors.CodeOf(err))
}

func TestSplitSections(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantPreamble string
		wantBody     string
	}{
		{
			name:         "heures with minutes",
			text:         "Intro\nCONSEIL COMMUNAL DU X\nLa séance est ouverte à 19 heures 30\nbody",
			wantPreamble: "CONSEIL COMMUNAL DU X\n",
			wantBody:     "\nbody",
		},
		{
			name:         "h without minutes",
			text:         "CONSEIL COMMUNAL DU X La séance est ouverte à 19 h body",
			wantPreamble: "CONSEIL COMMUNAL DU X ",
			wantBody:     "body",
		},
		{
			name:         "singular heure",
			text:         "CONSEIL COMMUNAL DU X La séance est ouverte à 1 heure 05 body",
			wantPreamble: "CONSEIL COMMUNAL DU X ",
			wantBody:     " body",
		},
		{
			name:         "non-breaking spaces",
			text:         "CONSEIL COMMUNAL DU X La séance est ouverte à\u00a019\u00a0h\u00a030 body",
			wantPreamble: "CONSEIL COMMUNAL DU X ",
			wantBody:     " body",
		},
		{
			name:         "announcement spanning a line break",
			text:         "CONSEIL COMMUNAL DU X La séance est ouverte à\n19 heures\n30\nbody",
			wantPreamble: "CONSEIL COMMUNAL DU X ",
			wantBody:     "\nbody",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preamble, body, err := SplitSections(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPreamble, preamble)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestHeaderOffset(t *testing.T) {
	text := loadTranscript(t)
	offset, ok := HeaderOffset(text)
	require.True(t, ok)
	assert.Greater(t, offset, 0)
	assert.True(t, strings.HasPrefix(text[offset:], "CONSEIL COMMUNAL DU"))

	_, ok = HeaderOffset("nothing here")
	assert.False(t, ok)
}
