package minutes

import (
	"fmt"
	"strings"
)

// unanimityFormula marks a decision voted without dissent.
const unanimityFormula = "A l'unanimité,"

func containsUnanimity(decision string) bool {
	return strings.Contains(decision, unanimityFormula)
}

// Phase is the section of an agenda item the machine is currently reading.
type Phase int

const (
	// PhaseTitle accumulates the item title.
	PhaseTitle Phase = iota
	// PhaseDebate accumulates the discussion transcript.
	PhaseDebate
	// PhaseDecision accumulates the decision text.
	PhaseDecision
)

func (p Phase) String() string {
	switch p {
	case PhaseTitle:
		return "title"
	case PhaseDebate:
		return "debate"
	case PhaseDecision:
		return "decision"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MachineState is the complete state of the agenda item splitter between two lines.
// The zero value is the initial state.
type MachineState struct {
	Phase      Phase
	Buffer     string
	Title      string
	Discussion *string
	Decision   *string
}

// Step applies one classified line to the state and returns the next state.
// When the line closes an agenda item, the item is returned with ok set.
//
// An empty line is ignored while the buffer is empty; once the buffer holds
// text, empty lines are kept like any other line.
func Step(s MachineState, tok Token) (next MachineState, emitted Item, ok bool) {
	if s.Buffer == "" && tok.Text == "" {
		return s, Item{}, false
	}

	next = s
	switch s.Phase {
	case PhaseTitle:
		switch tok.Kind {
		case PlainText, AgendaItemMarker:
			next.Buffer = s.Buffer + tok.Text + "\n"
		case DecisionMarker:
			next.Title = s.Buffer
			next.Buffer = tok.Text
			next.Phase = PhaseDecision
		case SpeakerMarker:
			next.Title = s.Buffer
			next.Buffer = tok.Text
			next.Phase = PhaseDebate
		default:
			panic(fmt.Sprintf("minutes: unknown token kind %d", tok.Kind))
		}

	case PhaseDebate:
		switch tok.Kind {
		case PlainText, SpeakerMarker:
			next.Buffer = s.Buffer + tok.Text + "\n"
		case DecisionMarker:
			next.Discussion = stringPtr(s.Buffer)
			next.Buffer = tok.Text
			next.Phase = PhaseDecision
		case AgendaItemMarker:
			next.Discussion = stringPtr(s.Buffer)
			emitted, next = closeItem(next, tok)
			return next, emitted, true
		default:
			panic(fmt.Sprintf("minutes: unknown token kind %d", tok.Kind))
		}

	case PhaseDecision:
		switch tok.Kind {
		case PlainText:
			next.Buffer = s.Buffer + tok.Text + "\n"
		case DecisionMarker:
			next.Decision = stringPtr(s.Buffer)
			next.Buffer = tok.Text
		case SpeakerMarker:
			next.Decision = stringPtr(s.Buffer)
			next.Buffer = tok.Text
			next.Phase = PhaseDebate
		case AgendaItemMarker:
			next.Decision = stringPtr(s.Buffer)
			emitted, next = closeItem(next, tok)
			return next, emitted, true
		default:
			panic(fmt.Sprintf("minutes: unknown token kind %d", tok.Kind))
		}

	default:
		panic(fmt.Sprintf("minutes: unknown phase %d", s.Phase))
	}
	return next, Item{}, false
}

// Flush stores the remaining buffer in the slot of the current phase and
// returns the final item. It is applied once, at end of input.
func Flush(s MachineState) Item {
	switch s.Phase {
	case PhaseTitle:
		s.Title = s.Buffer
	case PhaseDebate:
		s.Discussion = stringPtr(s.Buffer)
	case PhaseDecision:
		s.Decision = stringPtr(s.Buffer)
	}
	return NewItem(s.Title, s.Discussion, s.Decision)
}

// closeItem emits the accumulated item and starts a new title with the marker line.
func closeItem(s MachineState, tok Token) (Item, MachineState) {
	item := NewItem(s.Title, s.Discussion, s.Decision)
	return item, MachineState{
		Phase:  PhaseTitle,
		Buffer: tok.Text,
		Title:  s.Title,
	}
}

// SplitItems folds the classifier and the state machine over every line of the
// body. Items sharing a title replace the earlier entry at its original position.
func SplitItems(body string) []Item {
	items, _ := splitItems(body, false)
	return items
}

func splitItems(body string, strict bool) ([]Item, error) {
	var (
		state MachineState
		items orderedItems
	)
	for _, line := range splitLines(body) {
		next, item, ok := Step(state, ClassifyLine(line))
		state = next
		if ok {
			if replaced := items.put(item); replaced && strict {
				return nil, fail(ErrDuplicateItemTitle, "agenda item %q appears more than once", firstLine(item.Title()))
			}
		}
	}
	final := Flush(state)
	if replaced := items.put(final); replaced && strict {
		return nil, fail(ErrDuplicateItemTitle, "agenda item %q appears more than once", firstLine(final.Title()))
	}
	return items.values(), nil
}

// orderedItems keeps items in first-insertion order, keyed by title.
type orderedItems struct {
	index map[string]int
	list  []Item
}

// put inserts the item or replaces the one with the same title in place.
func (o *orderedItems) put(item Item) (replaced bool) {
	if o.index == nil {
		o.index = make(map[string]int)
	}
	if i, ok := o.index[item.Title()]; ok {
		o.list[i] = item
		return true
	}
	o.index[item.Title()] = len(o.list)
	o.list = append(o.list, item)
	return false
}

func (o *orderedItems) values() []Item {
	return append([]Item(nil), o.list...)
}

// splitLines splits text the way a buffered line reader does: "\n", "\r\n"
// and a lone "\r" end a line, and a final terminator does not produce an
// extra empty line.
func splitLines(text string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			lines = append(lines, text[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, text[start:i])
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func stringPtr(s string) *string {
	return &s
}
