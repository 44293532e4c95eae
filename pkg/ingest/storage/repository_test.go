package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/minutes-cli/pkg/db"
	mnerrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()

	cfg := db.DefaultConfig(filepath.Join(t.TempDir(), "minutes.db"))
	database, err := db.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(database) })

	repo := NewRepository(database, logging.NewNopLogger())
	_, err = repo.Migrate(ctx)
	require.NoError(t, err)
	return repo
}

func strPtr(s string) *string { return &s }

func newMeeting(t *testing.T, title string, date time.Time) *minutes.Meeting {
	t.Helper()
	items := []minutes.Item{
		minutes.NewItem("1.- Approbation du procès-verbal", nil, strPtr("Le Conseil, A l'unanimité, approuve.")),
		minutes.NewItem("2.- Budget communal", strPtr("M. le Bourgmestre : débat"), strPtr("Le Conseil, par 15 voix contre 4, adopte.")),
		minutes.NewItem("3.- Divers", nil, nil),
	}
	attendees := []minutes.Person{{Name: "J.GOBERT"}, {Name: "F.GHIOT"}}
	m, err := minutes.NewMeeting(title, date, items, attendees)
	require.NoError(t, err)
	return m
}

func TestIngestJobStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   IngestJobStatus
		terminal bool
	}{
		{IngestJobStatusPending, false},
		{IngestJobStatusInProgress, false},
		{IngestJobStatusCompleted, true},
		{IngestJobStatusCompletedErrors, true},
		{IngestJobStatusFailed, true},
		{IngestJobStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
		})
	}
}

func TestRepository_JobLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	job := &IngestJob{SourcePath: "/data/pv", TotalFiles: 3}
	require.NoError(t, repo.CreateJob(ctx, job))
	require.NotEmpty(t, job.ID)
	assert.Equal(t, IngestJobStatusInProgress, job.Status)

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "/data/pv", got.SourcePath)
	assert.Equal(t, IngestJobStatusInProgress, got.Status)
	assert.Equal(t, 3, got.TotalFiles)
	assert.Nil(t, got.CompletedAt)
	assert.WithinDuration(t, job.StartedAt, got.StartedAt, time.Millisecond)

	err = repo.CompleteJob(ctx, job.ID, IngestJobStatusCompletedErrors, JobCounts{Total: 3, Imported: 1, Skipped: 1, Failed: 1})
	require.NoError(t, err)

	got, err = repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, IngestJobStatusCompletedErrors, got.Status)
	assert.Equal(t, 1, got.ImportedCount)
	assert.Equal(t, 1, got.SkippedCount)
	assert.Equal(t, 1, got.FailedCount)
	require.NotNil(t, got.CompletedAt)
}

func TestRepository_JobErrors(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.GetJob(ctx, "missing")
	assert.True(t, mnerrors.IsNotFound(err))

	err = repo.CompleteJob(ctx, "missing", IngestJobStatusCompleted, JobCounts{})
	assert.True(t, mnerrors.IsNotFound(err))

	job := &IngestJob{SourcePath: "/data"}
	require.NoError(t, repo.CreateJob(ctx, job))

	err = repo.CompleteJob(ctx, job.ID, IngestJobStatusInProgress, JobCounts{})
	assert.True(t, mnerrors.IsInvalidState(err))
}

func TestRepository_RecordError(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	job := &IngestJob{SourcePath: "/data"}
	require.NoError(t, repo.CreateJob(ctx, job))

	require.NoError(t, repo.RecordError(ctx, job.ID, "/data/a.pdf", mnerrors.StageParse, mnerrors.ErrNoTitleFound, "no title"))
	require.NoError(t, repo.RecordError(ctx, job.ID, "/data/b.pdf", mnerrors.StageExtract, mnerrors.ErrExtractionFailed, "pdftotext failed"))

	errs, err := repo.GetJobErrors(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "/data/a.pdf", errs[0].FilePath)
	assert.Equal(t, mnerrors.StageParse, errs[0].Stage)
	assert.Equal(t, mnerrors.ErrNoTitleFound, errs[0].Code)
	assert.Equal(t, mnerrors.ErrExtractionFailed, errs[1].Code)
	assert.False(t, errs[1].CreatedAt.IsZero())

	assert.Error(t, repo.RecordError(ctx, "unknown-job", "/x", mnerrors.StageParse, mnerrors.ErrProcessingError, "x"),
		"foreign key to ingest_jobs is enforced")
}

func TestRepository_SaveAndGetMeeting(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	job := &IngestJob{SourcePath: "/data"}
	require.NoError(t, repo.CreateJob(ctx, job))

	m := newMeeting(t, "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017", time.Date(2017, 11, 27, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.SaveMeeting(ctx, m, MeetingSource{JobID: job.ID, SourcePath: "/data/pv.pdf", ContentHash: "hash-1"}))

	got, err := repo.GetMeeting(ctx, m.ID())
	require.NoError(t, err)
	assert.Equal(t, m.ID(), got.Meeting.ID())
	assert.True(t, m.Equal(got.Meeting))
	assert.Equal(t, job.ID, got.JobID)
	assert.Equal(t, "/data/pv.pdf", got.SourcePath)
	assert.Equal(t, "hash-1", got.ContentHash)

	exists, id, err := repo.ExistsByContentHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, m.ID(), id)

	exists, _, err = repo.ExistsByContentHash(ctx, "hash-2")
	require.NoError(t, err)
	assert.False(t, exists)

	var items, attendees int
	require.NoError(t, repo.db.QueryRow("SELECT COUNT(*) FROM meeting_items WHERE meeting_id = ?", m.ID()).Scan(&items))
	require.NoError(t, repo.db.QueryRow("SELECT COUNT(*) FROM meeting_attendees WHERE meeting_id = ?", m.ID()).Scan(&attendees))
	assert.Equal(t, 3, items)
	assert.Equal(t, 2, attendees)

	var unknown int
	require.NoError(t, repo.db.QueryRow("SELECT COUNT(*) FROM meeting_items WHERE meeting_id = ? AND unanimous IS NULL", m.ID()).Scan(&unknown))
	assert.Equal(t, 1, unknown, "an item without decision stores no vote outcome")
}

func TestRepository_SaveMeeting_Duplicate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	first := newMeeting(t, "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017", time.Date(2017, 11, 27, 0, 0, 0, 0, time.UTC))
	second := newMeeting(t, "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017", time.Date(2017, 11, 27, 0, 0, 0, 0, time.UTC))

	require.NoError(t, repo.SaveMeeting(ctx, first, MeetingSource{SourcePath: "a.pdf", ContentHash: "same"}))
	err := repo.SaveMeeting(ctx, second, MeetingSource{SourcePath: "b.pdf", ContentHash: "same"})
	assert.True(t, mnerrors.IsAlreadyExists(err))

	_, err = repo.GetMeeting(ctx, second.ID())
	assert.True(t, mnerrors.IsNotFound(err))
}

func TestRepository_SaveMeeting_Validation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	assert.True(t, mnerrors.IsValidation(repo.SaveMeeting(ctx, nil, MeetingSource{ContentHash: "x"})))
	m := newMeeting(t, "CONSEIL", time.Time{})
	assert.True(t, mnerrors.IsValidation(repo.SaveMeeting(ctx, m, MeetingSource{})))
}

func TestRepository_ListMeetings(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	nov := newMeeting(t, "CONSEIL COMMUNAL DU LUNDI 27 NOVEMBRE 2017", time.Date(2017, 11, 27, 0, 0, 0, 0, time.UTC))
	undated := newMeeting(t, "CONSEIL COMMUNAL", time.Time{})
	oct := newMeeting(t, "CONSEIL COMMUNAL DU LUNDI 23 OCTOBRE 2017", time.Date(2017, 10, 23, 0, 0, 0, 0, time.UTC))

	for i, m := range []*minutes.Meeting{nov, undated, oct} {
		require.NoError(t, repo.SaveMeeting(ctx, m, MeetingSource{SourcePath: m.Title(), ContentHash: string(rune('a' + i))}))
	}

	all, err := repo.ListMeetings(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, undated.ID(), all[0].Meeting.ID(), "undated records sort first")
	assert.Equal(t, oct.ID(), all[1].Meeting.ID())
	assert.Equal(t, nov.ID(), all[2].Meeting.ID())

	ranged, err := repo.ListMeetings(ctx, ListFilter{From: "2017-11-01", To: "2017-11-30"})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, nov.ID(), ranged[0].Meeting.ID())

	limited, err := repo.ListMeetings(ctx, ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRepository_Attendance(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	a := newMeeting(t, "CONSEIL A", time.Date(2017, 10, 23, 0, 0, 0, 0, time.UTC))
	b, err := minutes.NewMeeting("CONSEIL B", time.Date(2017, 11, 27, 0, 0, 0, 0, time.UTC), nil,
		[]minutes.Person{{Name: "J.GOBERT"}, {Name: "J.GOBERT"}, {Name: "M.DRUART"}})
	require.NoError(t, err)

	require.NoError(t, repo.SaveMeeting(ctx, a, MeetingSource{SourcePath: "a", ContentHash: "a"}))
	require.NoError(t, repo.SaveMeeting(ctx, b, MeetingSource{SourcePath: "b", ContentHash: "b"}))

	counts, err := repo.Attendance(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"J.GOBERT": 3, "F.GHIOT": 1, "M.DRUART": 1}, counts)
}

func TestRepository_WriteBatch(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	job := &IngestJob{SourcePath: "/data"}
	require.NoError(t, repo.CreateJob(ctx, job))

	entries := []logging.LogEntry{
		{JobID: job.ID, Timestamp: time.Now(), Level: "info", Service: "minutes", Message: "started"},
		{JobID: job.ID, Level: "warn", Service: "minutes", Message: "skipped", Fields: map[string]string{"file": "a.pdf"}},
		{JobID: "other", Level: "info", Service: "minutes", Message: "unrelated"},
	}
	require.NoError(t, repo.WriteBatch(ctx, entries))
	require.NoError(t, repo.WriteBatch(ctx, nil))

	logs, err := repo.GetJobLogs(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "started", logs[0].Message)
	assert.Equal(t, "warn", logs[1].Level)
	assert.Equal(t, "a.pdf", logs[1].Fields["file"])
	assert.False(t, logs[1].Time.IsZero())
}

func TestRepository_DBSinkIntegration(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	sink := logging.NewDBSink(logging.DBSinkConfig{Writer: repo, FlushInterval: time.Hour})
	sink.Write(logging.LogEntry{JobID: "job-1", Level: "info", Service: "minutes", Message: "hello"})
	require.NoError(t, sink.Flush(ctx))
	require.NoError(t, sink.Close())

	logs, err := repo.GetJobLogs(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "hello", logs[0].Message)
}
