// Package minutes parses the extracted text of French-language municipal council
// minutes into a structured meeting record: title, date, attendees and the
// ordered list of agenda items with their discussion and decision.
//
// Everything in this package is a pure function of its input. It performs no I/O
// and never logs; failures are returned as *errors.PipelineError values whose
// cause is one of the sentinel errors declared in errors.go.
package minutes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// dateLayout is the wire format of meeting dates.
const dateLayout = "2006-01-02"

// Unanimity is the three-valued outcome of a vote.
type Unanimity int

const (
	// UnanimityUnknown means no decision text was captured for the item.
	UnanimityUnknown Unanimity = iota
	// Unanimous means the decision text records a unanimous vote.
	Unanimous
	// NotUnanimous means a decision was captured without the unanimity formula.
	NotUnanimous
)

// String returns the string representation of the unanimity value.
func (u Unanimity) String() string {
	switch u {
	case Unanimous:
		return "unanimous"
	case NotUnanimous:
		return "not_unanimous"
	default:
		return "unknown"
	}
}

// Bool returns the vote outcome and whether it is known.
func (u Unanimity) Bool() (value bool, known bool) {
	switch u {
	case Unanimous:
		return true, true
	case NotUnanimous:
		return false, true
	default:
		return false, false
	}
}

// Person is an attendee of a meeting.
// Title is reserved for honorifics and roles; the roster extractor leaves it empty.
type Person struct {
	Name  string `json:"name" yaml:"name"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
}

// Item is one agenda item of a meeting. Items are immutable once created.
type Item struct {
	title      string
	discussion *string
	decision   *string
	unanimity  Unanimity
}

// NewItem creates an agenda item. Unanimity is derived from the decision text.
func NewItem(title string, discussion, decision *string) Item {
	return Item{
		title:      title,
		discussion: cloneString(discussion),
		decision:   cloneString(decision),
		unanimity:  deriveUnanimity(decision),
	}
}

// Title returns the item title, which is also its identity key.
func (i Item) Title() string { return i.title }

// Discussion returns the debate transcript, if one was captured.
func (i Item) Discussion() (string, bool) { return deref(i.discussion) }

// Decision returns the decision text, if one was captured.
func (i Item) Decision() (string, bool) { return deref(i.decision) }

// Unanimity returns the vote outcome of the item.
func (i Item) Unanimity() Unanimity { return i.unanimity }

// Equal reports whether two items have the same title, discussion and decision.
// Unanimity is not compared.
func (i Item) Equal(other Item) bool {
	return i.title == other.title &&
		equalOptional(i.discussion, other.discussion) &&
		equalOptional(i.decision, other.decision)
}

func (i Item) String() string {
	return fmt.Sprintf("Item{title=%q, discussion=%v, decision=%v, unanimity=%s}",
		i.title, i.discussion != nil, i.decision != nil, i.unanimity)
}

// Meeting is the structured record of one council meeting.
// A Meeting is built once per successful parse and never modified afterwards;
// accessors return copies of the ordered sequences.
type Meeting struct {
	id        string
	title     string
	date      time.Time
	hasDate   bool
	items     []Item
	attendees []Person
}

// NewMeeting creates a meeting record with a freshly generated identifier.
// The zero time means the meeting date is unknown.
func NewMeeting(title string, date time.Time, items []Item, attendees []Person) (*Meeting, error) {
	return newMeeting(uuid.New().String(), title, date, items, attendees)
}

func newMeeting(id, title string, date time.Time, items []Item, attendees []Person) (*Meeting, error) {
	if title == "" {
		return nil, fmt.Errorf("meeting title may not be empty")
	}
	m := &Meeting{
		id:        id,
		title:     title,
		items:     append([]Item(nil), items...),
		attendees: append([]Person(nil), attendees...),
	}
	if !date.IsZero() {
		m.date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		m.hasDate = true
	}
	return m, nil
}

// ID returns the identifier generated for this parse.
func (m *Meeting) ID() string { return m.id }

// Title returns the header line of the meeting.
func (m *Meeting) Title() string { return m.title }

// Date returns the meeting date and whether it is known.
func (m *Meeting) Date() (time.Time, bool) { return m.date, m.hasDate }

// Items returns the agenda items in transcript order.
func (m *Meeting) Items() []Item { return append([]Item(nil), m.items...) }

// Attendees returns the attendees in roster order.
func (m *Meeting) Attendees() []Person { return append([]Person(nil), m.attendees...) }

// Equal reports whether two records are equal in every field except ID.
func (m *Meeting) Equal(other *Meeting) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.title != other.title || m.hasDate != other.hasDate || !m.date.Equal(other.date) {
		return false
	}
	if len(m.items) != len(other.items) || len(m.attendees) != len(other.attendees) {
		return false
	}
	for i := range m.items {
		if !m.items[i].Equal(other.items[i]) || m.items[i].unanimity != other.items[i].unanimity {
			return false
		}
	}
	for i := range m.attendees {
		if m.attendees[i] != other.attendees[i] {
			return false
		}
	}
	return true
}

// wireItem is the serialized shape of an Item.
type wireItem struct {
	Title         string  `json:"title" yaml:"title"`
	Discussion    *string `json:"discussion,omitempty" yaml:"discussion,omitempty"`
	Decision      *string `json:"decision,omitempty" yaml:"decision,omitempty"`
	UnanimousVote *bool   `json:"unanimousVote,omitempty" yaml:"unanimousVote,omitempty"`
}

// wireMeeting is the serialized shape of a Meeting.
type wireMeeting struct {
	ID          string     `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	MeetingDate *string    `json:"meetingDate,omitempty" yaml:"meetingDate,omitempty"`
	Items       []wireItem `json:"items" yaml:"items"`
	Attendees   []Person   `json:"attendees" yaml:"attendees"`
}

func (m *Meeting) toWire() wireMeeting {
	w := wireMeeting{
		ID:        m.id,
		Title:     m.title,
		Items:     make([]wireItem, 0, len(m.items)),
		Attendees: append(make([]Person, 0, len(m.attendees)), m.attendees...),
	}
	if m.hasDate {
		d := m.date.Format(dateLayout)
		w.MeetingDate = &d
	}
	for _, it := range m.items {
		wi := wireItem{
			Title:      it.title,
			Discussion: cloneString(it.discussion),
			Decision:   cloneString(it.decision),
		}
		if v, ok := it.unanimity.Bool(); ok {
			wi.UnanimousVote = &v
		}
		w.Items = append(w.Items, wi)
	}
	return w
}

func fromWire(w wireMeeting) (*Meeting, error) {
	var date time.Time
	if w.MeetingDate != nil {
		d, err := time.Parse(dateLayout, *w.MeetingDate)
		if err != nil {
			return nil, fmt.Errorf("parsing meetingDate: %w", err)
		}
		date = d
	}
	items := make([]Item, 0, len(w.Items))
	for _, wi := range w.Items {
		items = append(items, NewItem(wi.Title, wi.Discussion, wi.Decision))
	}
	id := w.ID
	if id == "" {
		id = uuid.New().String()
	}
	return newMeeting(id, w.Title, date, items, w.Attendees)
}

// MarshalJSON encodes the meeting in its archive shape. HTML characters are
// left unescaped.
func (m *Meeting) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m.toWire()); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON decodes a meeting from its archive shape.
// Unanimity is re-derived from the decision text.
func (m *Meeting) UnmarshalJSON(data []byte) error {
	var w wireMeeting
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := fromWire(w)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

// MarshalYAML encodes the meeting in its archive shape.
func (m *Meeting) MarshalYAML() (interface{}, error) {
	return m.toWire(), nil
}

func deriveUnanimity(decision *string) Unanimity {
	if decision == nil {
		return UnanimityUnknown
	}
	if containsUnanimity(*decision) {
		return Unanimous
	}
	return NotUnanimous
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
