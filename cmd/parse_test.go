package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/export"
)

func parseDeps(cfg *config.CLIConfig) *ParseCommandDeps {
	return &ParseCommandDeps{
		LoadConfig:   loaderFor(cfg),
		NewExtractor: newExtractor,
	}
}

func TestParseCommand_Text(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pv.txt", "Page de garde\n\n"+transcript("27", "NOVEMBRE", "2017"))

	stdout, _, err := execute(t, NewParseCommand(parseDeps(config.DefaultConfig())), path)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Title:   CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017")
	assert.Contains(t, stdout, "Date:    2017-11-27")
	assert.Contains(t, stdout, "Attendees (2):")
	assert.Contains(t, stdout, "  J.GOBERT")
	assert.Contains(t, stdout, "Agenda items (3):")
	assert.Contains(t, stdout, "  2.- Budget\n")
	assert.Contains(t, stdout, "     Decision: Le Conseil,")
}

func TestParseCommand_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pv.txt", transcript("27", "NOVEMBRE", "2017"))

	stdout, _, err := execute(t, NewParseCommand(parseDeps(config.DefaultConfig())), path, "--output", "json")
	require.NoError(t, err)

	var got struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		MeetingDate string `json:"meetingDate"`
		Items       []struct {
			Title         string `json:"title"`
			UnanimousVote *bool  `json:"unanimousVote"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "2017-11-27", got.MeetingDate)
	require.Len(t, got.Items, 3)
	assert.Nil(t, got.Items[0].UnanimousVote)
	require.NotNil(t, got.Items[1].UnanimousVote)
	assert.True(t, *got.Items[1].UnanimousVote)
	require.NotNil(t, got.Items[2].UnanimousVote)
	assert.False(t, *got.Items[2].UnanimousVote)
}

func TestParseCommand_Archive(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pv.txt", transcript("27", "NOVEMBRE", "2017"))

	t.Run("to stdout", func(t *testing.T) {
		stdout, _, err := execute(t, NewParseCommand(parseDeps(config.DefaultConfig())), path, "--archive", "-")
		require.NoError(t, err)
		assert.NoError(t, export.Validate([]byte(stdout)))
		assert.NotContains(t, stdout, "Title:")
	})

	t.Run("to file", func(t *testing.T) {
		archive := filepath.Join(dir, "seance.json")
		stdout, _, err := execute(t, NewParseCommand(parseDeps(config.DefaultConfig())), path, "-a", archive)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Title:")

		meetings, err := readArchive(archive)
		require.NoError(t, err)
		require.Len(t, meetings, 1)
		assert.Equal(t, "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017", meetings[0].Title())
	})
}

func TestParseCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "pv.txt", transcript("27", "NOVEMBRE", "2017"))
	repeated := writeFile(t, dir, "repeated.txt", transcript("27", "NOVEMBRE", "2017")+"2.- Budget\nLe Conseil,\nA l'unanimité,\n")

	strictCfg := config.DefaultConfig()
	strictCfg.StrictTitles = true

	tests := []struct {
		name    string
		cfg     *config.CLIConfig
		args    []string
		wantErr string
	}{
		{"no header", config.DefaultConfig(), []string{writeFile(t, dir, "bad.txt", "Procès-verbal illisible\n")}, "no_title_found"},
		{"missing file", config.DefaultConfig(), []string{filepath.Join(dir, "missing.txt")}, "missing.txt"},
		{"invalid output", config.DefaultConfig(), []string{good, "-o", "xml"}, "invalid output format"},
		{"strict flag", config.DefaultConfig(), []string{repeated, "--strict"}, "Budget"},
		{"strict config", strictCfg, []string{repeated}, "Budget"},
		{"no arguments", config.DefaultConfig(), nil, "accepts 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, NewParseCommand(parseDeps(tt.cfg)), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseCommand_RepeatedTitleAllowedByDefault(t *testing.T) {
	path := writeFile(t, t.TempDir(), "repeated.txt", transcript("27", "NOVEMBRE", "2017")+"2.- Budget\nLe Conseil,\nA l'unanimité,\n")

	stdout, _, err := execute(t, NewParseCommand(parseDeps(config.DefaultConfig())), path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Agenda items (3):")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "Le Conseil,", firstLine("Le Conseil,\nA l'unanimité,"))
	assert.Equal(t, "Le Conseil,", firstLine("Le Conseil,"))
	assert.Equal(t, "", firstLine(""))
}
