package hsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	evFirst = iota + 1
	evSecond
	evThird
	evFourth
)

// buildTwoStage builds root(composite, initial=branch) -> branch(composite,
// initial=stage1) -> {stage1, stage2 leaves}, with a completion transition
// stage1 --None--> stage2. This mirrors the "completion transition fires
// right after the initial descent" shape of the sm1 fixture this engine's
// original C++ implementation ships as a test case.
func buildTwoStage(t *testing.T) (*Machine[struct{}], Handle, Handle, Handle) {
	m := NewMachine[struct{}]("twostage", struct{}{})
	root := m.Root(KindComposite, "root")
	branch := m.Child(root, KindComposite, "branch")
	m.Initial(branch)
	stage1 := m.Child(branch, KindLeaf, "stage1")
	m.Initial(stage1)
	stage2 := m.Child(branch, KindLeaf, "stage2")
	m.AddRow(stage1, None, stage2)
	return m, root, branch, stage1
}

func TestCompletionTransitionOnInit(t *testing.T) {
	m, _, _, _ := buildTwoStage(t)
	spy, trace := NewTracingSpy[struct{}]()
	m.Apply(WithSpy[struct{}](spy))

	require.NoError(t, m.Init())
	assert.Equal(t, []string{"OE-root", "OE-branch", "OE-stage1", "OX-stage1", "OE-stage2"}, *trace)
	assert.Equal(t, []string{"stage2"}, m.CurrentNodes())
}

func TestSelfAndInternalTransition(t *testing.T) {
	m := NewMachine[*int]("samek", new(int))
	root := m.Root(KindComposite, "root")
	s := m.Child(root, KindLeaf, "s")
	m.Initial(s)
	m.AddRow(s, evFirst, s) // external self-transition: exits and re-enters s
	m.Transition(s, evSecond, s).
		Internal().
		Action("bump", func(_ Event, c *int) { *c++ }).
		Build()

	spy, trace := NewTracingSpy[*int]()
	m.Apply(WithSpy[*int](spy))
	require.NoError(t, m.Init())
	*trace = (*trace)[:0]

	m.HandleEvent(Event{Id: evSecond})
	assert.Empty(t, *trace, "internal transition must not exit or re-enter")
	assert.Equal(t, 1, *m.ctx)

	m.HandleEvent(Event{Id: evFirst})
	assert.Equal(t, []string{"OX-s", "OE-s"}, *trace, "external self-transition must exit then re-enter")
}

// buildOrthogonal builds root(orthogonal) with two regions, each holding two
// leaves (a1/a2 and b1/b2), each initially in its first leaf.
func buildOrthogonal(t *testing.T) (m *Machine[struct{}], regionA, a1, a2, regionB, b1, b2 Handle) {
	m = NewMachine[struct{}]("ortho", struct{}{})
	root := m.Root(KindOrthogonal, "root")
	regionA = m.Region(root, "regionA")
	a1 = m.Child(regionA, KindLeaf, "a1")
	m.Initial(a1)
	a2 = m.Child(regionA, KindLeaf, "a2")
	regionB = m.Region(root, "regionB")
	b1 = m.Child(regionB, KindLeaf, "b1")
	m.Initial(b1)
	b2 = m.Child(regionB, KindLeaf, "b2")
	m.AddRow(a1, evFirst, a2)
	m.AddRow(b1, evSecond, b2)
	return
}

func TestOrthogonalDefaultEntryAndIndependentRegions(t *testing.T) {
	m, _, _, a2, _, b1, _ := buildOrthogonal(t)
	require.NoError(t, m.Init())
	assert.ElementsMatch(t, []string{"a1", "b1"}, m.CurrentNodes())

	m.HandleEvent(Event{Id: evFirst})
	assert.ElementsMatch(t, []string{"a2", "b1"}, m.CurrentNodes(), "only regionA reacts to evFirst from a1")
	_ = a2
	_ = b1
}

// TestJoinPattern mirrors the join_sm fixture's pattern: a guarded
// completion transition out of a join pseudostate that only fires once
// every parallel region has reached it, using a shared counter decremented
// on entry to the join leaf in each region.
func TestJoinPattern(t *testing.T) {
	type ctx struct{ joinCount int }
	c := &ctx{joinCount: 2}
	m := NewMachine[*ctx]("join", c)
	top := m.Root(KindComposite, "top")
	ortho := m.Child(top, KindOrthogonal, "ortho")
	m.Initial(ortho)
	regionA := m.Region(ortho, "regionA")
	aWork := m.Child(regionA, KindLeaf, "aWork")
	m.Initial(aWork)
	aJoin := m.Child(regionA, KindLeaf, "aJoin")
	m.Entry(aJoin, "decrement", func(_ Event, c *ctx) { c.joinCount-- })

	regionB := m.Region(ortho, "regionB")
	bWork := m.Child(regionB, KindLeaf, "bWork")
	m.Initial(bWork)
	bJoin := m.Child(regionB, KindLeaf, "bJoin")
	m.Entry(bJoin, "decrement", func(_ Event, c *ctx) { c.joinCount-- })

	sibling := m.Child(top, KindLeaf, "sibling")
	m.AddRow(aWork, evFirst, aJoin)
	m.AddRow(bWork, evSecond, bJoin)
	m.Transition(aJoin, None, sibling).
		Guard("allJoined", func(_ Event, c *ctx) bool { return c.joinCount <= 0 }).
		Build()
	m.Transition(bJoin, None, sibling).
		Guard("allJoined", func(_ Event, c *ctx) bool { return c.joinCount <= 0 }).
		Build()

	require.NoError(t, m.Init())
	m.HandleEvent(Event{Id: evFirst})
	assert.ElementsMatch(t, []string{"aJoin", "bWork"}, m.CurrentNodes(), "join must wait for the other region")

	m.HandleEvent(Event{Id: evSecond})
	assert.Equal(t, []string{"sibling"}, m.CurrentNodes(), "both regions joined: orthogonal exits into sibling")
}

func TestShallowHistoryResumesOneLevel(t *testing.T) {
	m := NewMachine[struct{}]("shallow", struct{}{})
	root := m.Root(KindComposite, "root")
	wizard := m.Child(root, KindComposite, "wizard")
	m.Initial(wizard)
	step1 := m.Child(wizard, KindComposite, "step1")
	m.Initial(step1)
	step1a := m.Child(step1, KindLeaf, "step1a")
	m.Initial(step1a)
	step1b := m.Child(step1, KindLeaf, "step1b")
	step2 := m.Child(wizard, KindLeaf, "step2")

	other := m.Child(root, KindLeaf, "other")
	m.AddRow(step1a, evFirst, step1b)
	m.AddRow(step1b, evSecond, other)
	hist := m.ShallowHistory(wizard)
	m.AddRow(other, evThird, hist)

	require.NoError(t, m.Init())
	m.HandleEvent(Event{Id: evFirst})  // step1a -> step1b
	m.HandleEvent(Event{Id: evSecond}) // step1b -> other; wizard torn down with step1 remembered, step1 with step1b remembered
	assert.Equal(t, []string{"other"}, m.CurrentNodes())

	m.HandleEvent(Event{Id: evThird}) // resume shallow history: wizard resumes step1, but step1 resumes its OWN default (step1a), not the remembered step1b
	assert.Equal(t, []string{"step1a"}, m.CurrentNodes())
	_ = step2
}

func TestDeepHistoryResumesRecursively(t *testing.T) {
	m := NewMachine[struct{}]("deep", struct{}{})
	root := m.Root(KindComposite, "root")
	wizard := m.Child(root, KindComposite, "wizard")
	m.Initial(wizard)
	step1 := m.Child(wizard, KindComposite, "step1")
	m.Initial(step1)
	step1a := m.Child(step1, KindLeaf, "step1a")
	m.Initial(step1a)
	step1b := m.Child(step1, KindLeaf, "step1b")

	other := m.Child(root, KindLeaf, "other")
	m.AddRow(step1a, evFirst, step1b)
	m.AddRow(step1b, evSecond, other)
	hist := m.DeepHistory(wizard)
	m.AddRow(other, evThird, hist)

	require.NoError(t, m.Init())
	m.HandleEvent(Event{Id: evFirst})  // step1a -> step1b
	m.HandleEvent(Event{Id: evSecond}) // step1b -> other
	m.HandleEvent(Event{Id: evThird})  // resume deep history: wizard -> step1 -> step1b, the exact remembered leaf
	assert.Equal(t, []string{"step1b"}, m.CurrentNodes(), "deep history resumes the exact remembered leaf")
}

func TestForceTransitionTo(t *testing.T) {
	m, _, _, a2, _, _, b2 := buildOrthogonal(t)
	require.NoError(t, m.Init())
	m.ForceTransitionTo(a2)
	assert.ElementsMatch(t, []string{"a2", "b1"}, m.CurrentNodes())
	m.ForceTransitionTo(b2)
	assert.ElementsMatch(t, []string{"a1", "b2"}, m.CurrentNodes(), "ForceTransitionTo re-enters default elsewhere in the tree")
}

func TestInitValidationError(t *testing.T) {
	m := NewMachine[struct{}]("broken", struct{}{})
	root := m.Root(KindComposite, "root")
	m.Child(root, KindLeaf, "onlyChild") // never marked Initial

	err := m.Init()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingInitial)
	assert.False(t, m.InitStatus())
}

func TestNoTransitionSpy(t *testing.T) {
	m, _, _, _ := buildTwoStage(t)
	var noMatch []Event
	m.Apply(WithSpy[struct{}](&recordingSpy{noMatch: &noMatch}))
	require.NoError(t, m.Init())
	m.HandleEvent(Event{Id: evThird})
	assert.Equal(t, []Event{{Id: evThird}}, noMatch)
}

// recordingSpy records every NoTransition call; everything else is a no-op.
type recordingSpy struct {
	NoopSpy[struct{}]
	noMatch *[]Event
}

func (s *recordingSpy) NoTransition(_ struct{}, ev Event) {
	*s.noMatch = append(*s.noMatch, ev)
}

func TestRingFifoDropsWhenFull(t *testing.T) {
	f := NewRingFifo(2)
	assert.True(t, f.Push(Event{Id: 1}))
	assert.True(t, f.Push(Event{Id: 2}))
	assert.False(t, f.Push(Event{Id: 3}))
	assert.Equal(t, Event{Id: 1}, f.Front())
	f.PopFront()
	assert.Equal(t, Event{Id: 2}, f.Front())
	assert.True(t, f.Push(Event{Id: 3}))
}
