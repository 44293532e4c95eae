// Package search indexes meeting records in Redis so they can be looked up by
// id, by date order and by attendee.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	mnerrors "github.com/otherjamesbrown/minutes-cli/pkg/errors"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/minutes"
)

// DefaultIndex is the index name used when none is configured.
const DefaultIndex = "citycouncil"

// Redis key suffixes under "<index>:"
const (
	keyMeeting     = "meeting:"    // JSON record per meeting id
	keyByDate      = "by_date"     // sorted set of ids scored by YYYYMMDD
	keyAttendee    = "attendee:"   // set of meeting ids per attendee name
	keyContentious = "contentious" // set of meeting ids with a non-unanimous vote
)

// ClientConfig holds Redis connection configuration.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and checks the connection.
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Indexer stores meeting records under an index name.
type Indexer struct {
	client *redis.Client
	index  string
	logger logging.Logger
}

// NewIndexer creates an indexer. An empty index uses DefaultIndex.
func NewIndexer(client *redis.Client, index string, logger logging.Logger) *Indexer {
	if index == "" {
		index = DefaultIndex
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Indexer{
		client: client,
		index:  index,
		logger: logger.With(logging.F("component", "search_indexer"), logging.F("index", index)),
	}
}

func (x *Indexer) key(parts ...string) string {
	return x.index + ":" + strings.Join(parts, "")
}

// dateScore orders records by date; undated records score 0 and sort first.
func dateScore(m *minutes.Meeting) float64 {
	d, ok := m.Date()
	if !ok {
		return 0
	}
	return float64(d.Year()*10000 + int(d.Month())*100 + d.Day())
}

// Index stores every meeting in a single transaction. Re-indexing a meeting
// with the same id replaces its document.
func (x *Indexer) Index(ctx context.Context, meetings ...*minutes.Meeting) error {
	if len(meetings) == 0 {
		return nil
	}

	pipe := x.client.TxPipeline()
	for _, m := range meetings {
		doc, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal meeting %s: %w", m.ID(), err)
		}

		pipe.Set(ctx, x.key(keyMeeting, m.ID()), doc, 0)
		pipe.ZAdd(ctx, x.key(keyByDate), redis.Z{Score: dateScore(m), Member: m.ID()})
		for _, p := range m.Attendees() {
			pipe.SAdd(ctx, x.key(keyAttendee, p.Name), m.ID())
		}
		for _, it := range m.Items() {
			if it.Unanimity() == minutes.NotUnanimous {
				pipe.SAdd(ctx, x.key(keyContentious), m.ID())
				break
			}
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return mnerrors.New(mnerrors.ErrBackendUnavailable, mnerrors.StageIndex, err,
			"failed to index %d meetings", len(meetings))
	}

	x.logger.Debug("Meetings indexed", logging.F("count", len(meetings)))
	return nil
}

// Get returns the indexed meeting with the given id.
func (x *Indexer) Get(ctx context.Context, id string) (*minutes.Meeting, error) {
	data, err := x.client.Get(ctx, x.key(keyMeeting, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("meeting %s: %w", id, mnerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting %s: %w", id, err)
	}

	var m minutes.Meeting
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode meeting %s: %w", id, err)
	}
	return &m, nil
}

// IDs returns every indexed meeting id in date order, undated first.
func (x *Indexer) IDs(ctx context.Context) ([]string, error) {
	ids, err := x.client.ZRange(ctx, x.key(keyByDate), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	return ids, nil
}

// Count returns the number of indexed meetings.
func (x *Indexer) Count(ctx context.Context) (int64, error) {
	n, err := x.client.ZCard(ctx, x.key(keyByDate)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count meetings: %w", err)
	}
	return n, nil
}

// ByAttendee returns the ids of the meetings name attended, sorted.
func (x *Indexer) ByAttendee(ctx context.Context, name string) ([]string, error) {
	ids, err := x.client.SMembers(ctx, x.key(keyAttendee, name)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up attendee %s: %w", name, err)
	}
	return x.sortByDate(ctx, ids)
}

// Contentious returns the ids of meetings with at least one non-unanimous vote.
func (x *Indexer) Contentious(ctx context.Context) ([]string, error) {
	ids, err := x.client.SMembers(ctx, x.key(keyContentious)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list contentious meetings: %w", err)
	}
	return x.sortByDate(ctx, ids)
}

// sortByDate orders ids like IDs does.
func (x *Indexer) sortByDate(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return ids, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	all, err := x.IDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range all {
		if want[id] {
			out = append(out, id)
		}
	}
	return out, nil
}
