package hsm

import (
	"fmt"
	"log"
)

// Spy is the machine's observability hook: every entry, exit, guard
// evaluation, action, transition, no-match event and structural error
// passes through it. This is the domain's logging layer — NewMachine
// installs NoopSpy by default; swap in PrintingSpy for stdout tracing,
// StandardErrorSpy for errors-only stderr logging, or TracingSpy to capture
// an exact trace for assertions in tests.
type Spy[C any] interface {
	OnEntry(name string, ctx C, ev Event)
	OnExit(name string, ctx C, ev Event)
	Action(name string, ctx C, ev Event, actionName string)
	Guard(name string, ctx C, ev Event, guardName string, result bool)
	Event(name string, ctx C, ev Event)
	NoTransition(ctx C, ev Event)
	Error(name string, ctx C, err error)
	ErrorEvent(name string, ctx C, ev Event, err error)
}

// NoopSpy discards every notification. It is the cheapest possible Spy, but
// Init errors become visible only through the error Init returns.
type NoopSpy[C any] struct{}

func (NoopSpy[C]) OnEntry(string, C, Event)             {}
func (NoopSpy[C]) OnExit(string, C, Event)              {}
func (NoopSpy[C]) Action(string, C, Event, string)      {}
func (NoopSpy[C]) Guard(string, C, Event, string, bool) {}
func (NoopSpy[C]) Event(string, C, Event)               {}
func (NoopSpy[C]) NoTransition(C, Event)                {}
func (NoopSpy[C]) Error(string, C, error)               {}
func (NoopSpy[C]) ErrorEvent(string, C, Event, error)   {}

// StandardErrorSpy logs only no-match events and errors, via the standard
// log package. Everything else is silent. A good Spy to install via
// WithSpy when a caller wants Init/dispatch failures surfaced without the
// chatter of a full entry/exit trace.
type StandardErrorSpy[C any] struct{}

func (StandardErrorSpy[C]) OnEntry(string, C, Event)             {}
func (StandardErrorSpy[C]) OnExit(string, C, Event)              {}
func (StandardErrorSpy[C]) Action(string, C, Event, string)      {}
func (StandardErrorSpy[C]) Guard(string, C, Event, string, bool) {}
func (StandardErrorSpy[C]) Event(string, C, Event)               {}

func (StandardErrorSpy[C]) NoTransition(_ C, ev Event) {
	log.Printf("hsm: no transition for event %d", ev.Id)
}

func (StandardErrorSpy[C]) Error(name string, _ C, err error) {
	log.Printf("hsm: error at %s: %v", name, err)
}

func (StandardErrorSpy[C]) ErrorEvent(name string, _ C, ev Event, err error) {
	log.Printf("hsm: error at %s handling event %d: %v", name, ev.Id, err)
}

// PrintingSpy prints every notification to stdout, except no-match events
// and errors, which go through the log package as in StandardErrorSpy;
// useful while developing a new state chart.
type PrintingSpy[C any] struct {
	StandardErrorSpy[C]
}

func (PrintingSpy[C]) OnEntry(name string, _ C, _ Event) { fmt.Println("entry:", name) }
func (PrintingSpy[C]) OnExit(name string, _ C, _ Event)  { fmt.Println("exit:", name) }

func (PrintingSpy[C]) Action(name string, _ C, _ Event, actionName string) {
	fmt.Printf("action: %s (from %s)\n", actionName, name)
}

func (PrintingSpy[C]) Guard(name string, _ C, _ Event, guardName string, result bool) {
	fmt.Printf("guard: %s (from %s) -> %v\n", guardName, name, result)
}

func (PrintingSpy[C]) Event(name string, _ C, ev Event) {
	fmt.Printf("event %d handled by %s\n", ev.Id, name)
}

// TracingSpy records "OE-<name>" on entry and "OX-<name>" on exit into
// Trace, in order. Nothing else is recorded. This reproduces the literal
// traces used to assert scenario behavior in tests.
type TracingSpy[C any] struct {
	Trace *[]string
}

// NewTracingSpy returns a TracingSpy appending into a fresh, empty trace.
func NewTracingSpy[C any]() (*TracingSpy[C], *[]string) {
	trace := &[]string{}
	return &TracingSpy[C]{Trace: trace}, trace
}

func (s *TracingSpy[C]) OnEntry(name string, _ C, _ Event) {
	*s.Trace = append(*s.Trace, "OE-"+name)
}

func (s *TracingSpy[C]) OnExit(name string, _ C, _ Event) {
	*s.Trace = append(*s.Trace, "OX-"+name)
}

func (s *TracingSpy[C]) Action(string, C, Event, string)      {}
func (s *TracingSpy[C]) Guard(string, C, Event, string, bool) {}
func (s *TracingSpy[C]) Event(string, C, Event)               {}
func (s *TracingSpy[C]) NoTransition(C, Event)                {}
func (s *TracingSpy[C]) Error(string, C, error)               {}
func (s *TracingSpy[C]) ErrorEvent(string, C, Event, error)   {}
