package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/report"
)

// seededStore ingests the council directory into a fresh SQLite store indexed
// in miniredis and returns the configuration and the ingest summary.
func seededStore(t *testing.T) (*config.CLIConfig, ingestSummary, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	s := runIngestJSON(t, ingestDeps(cfg), councilDir(t))
	require.Equal(t, 2, s.Imported)
	return cfg, s, mr
}

func meetingsDeps(cfg *config.CLIConfig) *MeetingsCommandDeps {
	return &MeetingsCommandDeps{LoadConfig: loaderFor(cfg), OpenStore: openStore}
}

func listMeetingRows(t *testing.T, cfg *config.CLIConfig, args ...string) []meetingRow {
	t.Helper()
	stdout, _, err := execute(t, NewMeetingsCommand(meetingsDeps(cfg)), append([]string{"list", "-o", "json"}, args...)...)
	require.NoError(t, err)
	var rows []meetingRow
	require.NoError(t, json.Unmarshal([]byte(stdout), &rows))
	return rows
}

func TestMeetingsCommand_List(t *testing.T) {
	cfg, s, _ := seededStore(t)

	rows := listMeetingRows(t, cfg)
	require.Len(t, rows, 2)
	assert.Equal(t, "2018-10-29", rows[0].Date)
	assert.Equal(t, "2018-11-26", rows[1].Date)
	assert.Equal(t, 3, rows[0].Items)
	assert.Equal(t, 2, rows[0].Attendees)
	assert.Equal(t, s.JobID, rows[0].JobID)

	tests := []struct {
		name  string
		args  []string
		dates []string
	}{
		{"from", []string{"--from", "2018-11-01"}, []string{"2018-11-26"}},
		{"to", []string{"--to", "2018-10-31"}, []string{"2018-10-29"}},
		{"limit", []string{"-n", "1"}, []string{"2018-10-29"}},
		{"empty range", []string{"--from", "2019-01-01"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dates []string
			for _, r := range listMeetingRows(t, cfg, tt.args...) {
				dates = append(dates, r.Date)
			}
			assert.Equal(t, tt.dates, dates)
		})
	}

	t.Run("text", func(t *testing.T) {
		stdout, _, err := execute(t, NewMeetingsCommand(meetingsDeps(cfg)), "list")
		require.NoError(t, err)
		assert.Contains(t, stdout, "ID")
		assert.Contains(t, stdout, "CONSEIL COMMUNAL DU LUNDI 29 OCTOBRE 2018")
		assert.Contains(t, stdout, "2 meeting(s)")
	})
}

func TestMeetingsCommand_Show(t *testing.T) {
	cfg, _, _ := seededStore(t)
	rows := listMeetingRows(t, cfg)
	require.NotEmpty(t, rows)

	stdout, _, err := execute(t, NewMeetingsCommand(meetingsDeps(cfg)), "show", rows[0].ID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Title:   CONSEIL COMMUNAL DU LUNDI 29 OCTOBRE 2018")
	assert.Contains(t, stdout, "Source:  "+rows[0].SourcePath)
	assert.Contains(t, stdout, "Job:     "+rows[0].JobID)

	stdout, _, err = execute(t, NewMeetingsCommand(meetingsDeps(cfg)), "show", rows[0].ID, "-o", "json")
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &rec))
	assert.Equal(t, rows[0].ID, rec["id"])

	_, _, err = execute(t, NewMeetingsCommand(meetingsDeps(cfg)), "show", "no-such-meeting")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMeetingsCommand_Export(t *testing.T) {
	cfg, _, _ := seededStore(t)
	dir := t.TempDir()

	for _, name := range []string{"seances.json", "seances.yaml", "seances.xlsx"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			_, stderr, err := execute(t, NewMeetingsCommand(meetingsDeps(cfg)), "export", path)
			require.NoError(t, err)
			assert.Contains(t, stderr, "Exported 2 meeting(s) to "+path)
			assert.FileExists(t, path)
		})
	}

	meetings, err := readArchive(filepath.Join(dir, "seances.json"))
	require.NoError(t, err)
	assert.Len(t, meetings, 2)

	stdout, stderr, err := execute(t, NewMeetingsCommand(meetingsDeps(cfg)), "export", "-", "--from", "2018-11-01")
	require.NoError(t, err)
	assert.Empty(t, stderr)
	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &records))
	assert.Len(t, records, 1)
}

func TestMeetingsCommand_Attendance(t *testing.T) {
	cfg, _, _ := seededStore(t)

	stdout, _, err := execute(t, NewMeetingsCommand(meetingsDeps(cfg)), "attendance", "-o", "json")
	require.NoError(t, err)
	var entries []report.AttendanceEntry
	require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
	assert.Equal(t, []report.AttendanceEntry{
		{Name: "D.STAQUET", Meetings: 2},
		{Name: "J.GOBERT", Meetings: 2},
	}, entries)

	stdout, _, err = execute(t, NewMeetingsCommand(meetingsDeps(cfg)), "attendance")
	require.NoError(t, err)
	assert.Contains(t, stdout, "NAME")
	assert.Contains(t, stdout, "J.GOBERT")
}

func TestMeetingsCommand_Empty(t *testing.T) {
	cfg := testConfig(t)

	stdout, _, err := execute(t, NewMeetingsCommand(meetingsDeps(cfg)), "list")
	require.NoError(t, err)
	assert.Equal(t, "No meetings found.\n", stdout)

	stdout, _, err = execute(t, NewMeetingsCommand(meetingsDeps(cfg)), "attendance")
	require.NoError(t, err)
	assert.Equal(t, "No attendance recorded.\n", stdout)
}

func TestMeetingsCommand_NoDatabase(t *testing.T) {
	_, _, err := execute(t, NewMeetingsCommand(meetingsDeps(config.DefaultConfig())), "list")
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoDatabase)
}

func TestReportCommand(t *testing.T) {
	cfg, _, _ := seededStore(t)

	t.Run("from the store", func(t *testing.T) {
		stdout, _, err := execute(t, NewReportCommand(meetingsDeps(cfg)), "-o", "json")
		require.NoError(t, err)
		var r report.Report
		require.NoError(t, json.Unmarshal([]byte(stdout), &r))
		assert.Equal(t, 2, r.Meetings)
		assert.Equal(t, 6, r.Items)
		assert.Equal(t, 4, r.UnanimousVotes)
		require.Len(t, r.ContentiousItems, 2)
		assert.Equal(t, "3.- Travaux", r.ContentiousItems[0].ItemTitle)
	})

	t.Run("filtered", func(t *testing.T) {
		stdout, _, err := execute(t, NewReportCommand(meetingsDeps(cfg)), "--to", "2018-10-31", "-o", "yaml")
		require.NoError(t, err)
		assert.Contains(t, stdout, "meetings: 1")
	})

	t.Run("from an archive", func(t *testing.T) {
		archive := filepath.Join(t.TempDir(), "seances.json")
		_, _, err := execute(t, NewMeetingsCommand(meetingsDeps(cfg)), "export", archive)
		require.NoError(t, err)

		// The archive path needs no database.
		stdout, _, err := execute(t, NewReportCommand(meetingsDeps(config.DefaultConfig())), "--archive", archive)
		require.NoError(t, err)
		assert.Contains(t, stdout, "Contentious items: 2")
	})

	t.Run("bad archive", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "bad.json", "{}")
		_, _, err := execute(t, NewReportCommand(meetingsDeps(cfg)), "--archive", path)
		require.Error(t, err)
	})
}

func TestJobsCommand_Show(t *testing.T) {
	cfg, s, _ := seededStore(t)

	stdout, _, err := execute(t, NewJobsCommand(meetingsDeps(cfg)), "show", s.JobID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Job:       "+s.JobID)
	assert.Contains(t, stdout, "Status:    completed_with_errors")
	assert.Contains(t, stdout, "Errors (1):")
	assert.NotContains(t, stdout, "Log (")

	stdout, _, err = execute(t, NewJobsCommand(meetingsDeps(cfg)), "show", s.JobID, "--logs")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Log (")
	assert.Contains(t, stdout, "Batch ingest finished")

	stdout, _, err = execute(t, NewJobsCommand(meetingsDeps(cfg)), "show", s.JobID, "-o", "json", "--logs")
	require.NoError(t, err)
	var jr jobReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &jr))
	assert.Equal(t, 3, jr.TotalFiles)
	assert.Equal(t, 2, jr.Imported)
	require.Len(t, jr.Errors, 1)
	assert.Equal(t, "no_title_found", jr.Errors[0].Code)
	assert.NotNil(t, jr.CompletedAt)
	assert.NotEmpty(t, jr.Logs)

	_, _, err = execute(t, NewJobsCommand(meetingsDeps(cfg)), "show", "no-such-job")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFormatLogFields(t *testing.T) {
	assert.Equal(t, "", formatLogFields(nil))
	assert.Equal(t, " file=a.txt stage=parse", formatLogFields(map[string]string{"stage": "parse", "file": "a.txt"}))
}
