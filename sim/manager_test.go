package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestResources_AllOrNothing(t *testing.T) {
	// GIVEN one resource of type a and one of type b
	m := NewModel("all-or-nothing")
	ta, tb := m.NewResourceType("a"), m.NewResourceType("b")
	alwaysOn(m.NewResource("ra"), ta, 0, 1000)
	alwaysOn(m.NewResource("rb"), tb, 0, 1000)
	onlyA := m.NewActivity("only_a")
	onlyA.NewWorkGroup("wg", 0, ConstantTime(50)).Require(ta, 1)
	both := m.NewActivity("both")
	both.NewWorkGroup("wg", 0, ConstantTime(10)).Require(ta, 1).Require(tb, 1)
	onlyB := m.NewActivity("only_b")
	onlyB.NewWorkGroup("wg", 0, ConstantTime(10)).Require(tb, 1)
	g := m.Flows()
	fA, fBoth, fB := g.NewSingle("fa", onlyA), g.NewSingle("fboth", both), g.NewSingle("fb", onlyB)
	et := m.NewElementType("e", 0)

	// WHEN a holds the a resource, then both and only_b are requested
	_, rec := runModel(t, m, 500, func(s *Simulation) {
		s.StartElement(0, et, fA)
		s.StartElement(1, et, fBoth)
		s.StartElement(2, et, fB)
	})

	// THEN the blocked request reserved nothing: only_b starts at once
	assert.Equal(t, []string{"only_a@0", "only_b@2", "both@50"}, rec.starts())
}

func TestActivityQueue_OrderedByElementPriority(t *testing.T) {
	// GIVEN a single resource and a busy first element
	m := NewModel("priority")
	rt := m.NewResourceType("staff")
	alwaysOn(m.NewResource("r1"), rt, 0, 1000)
	act := m.NewActivity("serve")
	act.NewWorkGroup("wg", 0, ConstantTime(10)).Require(rt, 1)
	f := m.Flows().NewSingle("serve", act)
	normal := m.NewElementType("normal", 5)
	urgent := m.NewElementType("urgent", 0)

	// WHEN a normal element queues before an urgent one
	_, rec := runModel(t, m, 500, func(s *Simulation) {
		s.StartElement(0, normal, f)
		s.StartElement(1, normal, f)
		s.StartElement(2, urgent, f)
	})

	// THEN the urgent element is served first
	var ids []int64
	var clocks []int64
	for _, ai := range rec.activity(ActivityStart) {
		ids = append(ids, ai.ElementID)
		clocks = append(clocks, ai.Clock)
	}
	assert.Equal(t, []int64{1, 3, 2}, ids)
	assert.Equal(t, []int64{0, 10, 20}, clocks)
}

func TestRequestResources_WorkGroupsTriedInPriorityOrder(t *testing.T) {
	// GIVEN a preferred workgroup needing a senior and a fallback needing two juniors
	m := NewModel("workgroups")
	senior, junior := m.NewResourceType("senior"), m.NewResourceType("junior")
	alwaysOn(m.NewResource("s1"), senior, 0, 1000)
	alwaysOn(m.NewResource("j1"), junior, 0, 1000)
	alwaysOn(m.NewResource("j2"), junior, 0, 1000)
	act := m.NewActivity("review")
	act.NewWorkGroup("pair", 1, ConstantTime(20)).Require(junior, 2)
	act.NewWorkGroup("solo", 0, ConstantTime(20)).Require(senior, 1)
	f := m.Flows().NewSingle("review", act)
	et := m.NewElementType("doc", 0)

	// WHEN two elements arrive together
	_, rec := runModel(t, m, 500, func(s *Simulation) {
		s.StartElement(0, et, f)
		s.StartElement(0, et, f)
	})

	// THEN the first gets the preferred workgroup and the second the fallback
	started := rec.activity(ActivityStart)
	require.Len(t, started, 2)
	assert.Equal(t, "solo", started[0].WorkGroup)
	assert.Equal(t, "pair", started[1].WorkGroup)
	assert.Equal(t, int64(0), started[1].Clock)
}

func TestReleaseResources_NotHeld_Panics(t *testing.T) {
	m := NewModel("release")
	rt := m.NewResourceType("staff")
	r := m.NewResource("r1")
	alwaysOn(r, rt, 0, 100)
	act := m.NewActivity("serve")
	act.NewWorkGroup("wg", 0, ConstantTime(10)).Require(rt, 1)
	m.Flows().NewSingle("serve", act)
	s, err := NewSimulation(m, Config{End: 100})
	require.NoError(t, err)

	item := &WorkItem{element: &Element{id: 7}, activity: act, caught: []caughtResource{{res: r, role: rt}}}
	assert.PanicsWithValue(t, "manager 0: releasing resource r1 not held by element 7", func() {
		s.Managers()[0].ReleaseResources(item)
	})
}

func TestReleaseResources_ForeignManager_Panics(t *testing.T) {
	// GIVEN two unrelated activities, hence two managers
	m := NewModel("foreign")
	t1, t2 := m.NewResourceType("t1"), m.NewResourceType("t2")
	alwaysOn(m.NewResource("r1"), t1, 0, 100)
	r2 := m.NewResource("r2")
	alwaysOn(r2, t2, 0, 100)
	a1 := m.NewActivity("a1")
	a1.NewWorkGroup("wg", 0, ConstantTime(10)).Require(t1, 1)
	a2 := m.NewActivity("a2")
	a2.NewWorkGroup("wg", 0, ConstantTime(10)).Require(t2, 1)
	s, err := NewSimulation(m, Config{End: 100})
	require.NoError(t, err)
	require.Len(t, s.Managers(), 2)

	// WHEN manager 0 is asked to release a resource of manager 1
	item := &WorkItem{element: &Element{id: 1}, activity: a1, caught: []caughtResource{{res: r2, role: t2}}}

	// THEN it panics
	assert.PanicsWithValue(t, "manager 0: releasing resource r2 owned by another manager", func() {
		s.Managers()[0].ReleaseResources(item)
	})
}

func TestManager_InUseNeverExceedsAvailable(t *testing.T) {
	// GIVEN two resources shared by overlapping requests
	m := NewModel("capacity")
	rt := m.NewResourceType("staff")
	alwaysOn(m.NewResource("r1"), rt, 0, 300)
	alwaysOn(m.NewResource("r2"), rt, 100, 300)
	act := m.NewActivity("serve")
	act.NewWorkGroup("wg", 0, ConstantTime(25)).Require(rt, 1)
	f := m.Flows().NewSingle("serve", act)
	et := m.NewElementType("e", 0)

	s, err := NewSimulation(m, Config{End: 600})
	require.NoError(t, err)
	var violations []string
	maxInUse := 0
	s.AddListener(ListenerFunc(func(info Info) {
		if _, ok := info.(TimeChangeInfo); !ok {
			return
		}
		// time changes are delivered between wavefronts, outside any manager lock
		available, inUse := rt.Counts()
		if inUse > available {
			violations = append(violations, info.(TimeChangeInfo).String())
		}
		maxInUse = max(maxInUse, inUse)
	}))
	for ts := int64(0); ts < 400; ts += 10 {
		s.StartElement(ts, et, f)
	}

	// WHEN run
	s.Run()

	// THEN holders never outnumber listed resources, and both were used at once
	assert.Empty(t, violations)
	assert.Equal(t, 2, maxInUse)
	available, inUse := rt.Counts()
	assert.Equal(t, 0, available)
	assert.Equal(t, 0, inUse)
}

func TestInterruptibleActivity_ResumesWithRemainingTime(t *testing.T) {
	// GIVEN a resource available [0, 20) and again from 30
	m := NewModel("interrupt")
	rt := m.NewResourceType("machine")
	r := m.NewResource("m1")
	alwaysOn(r, rt, 0, 20)
	alwaysOn(r, rt, 30, 100)
	act := m.NewActivity("process")
	act.Interruptible = true
	act.NewWorkGroup("wg", 0, ConstantTime(50)).Require(rt, 1)
	f := m.Flows().NewSingle("process", act)
	et := m.NewElementType("job", 0)

	// WHEN a 50-tick job starts at 0
	s, rec := runModel(t, m, 500, func(s *Simulation) { s.StartElement(0, et, f) })

	// THEN it is interrupted at 20 and resumed at 30 for the remaining 30 ticks
	var got []string
	for _, ai := range rec.activity(ActivityStart, ActivityInterrupt, ActivityResume, ActivityEnd) {
		got = append(got, ai.String())
	}
	assert.Equal(t, []string{
		"[0] E1 START process/wg",
		"[20] E1 INTERRUPT process/wg",
		"[30] E1 RESUME process/wg",
		"[60] E1 END process/wg",
	}, got)
	assert.Equal(t, int64(1), s.ElementsFinished())
}

func TestNonInterruptibleActivity_TimedOutResourceLeavesOnRelease(t *testing.T) {
	// GIVEN a resource available [0, 20) and again from 30
	m := NewModel("timeout")
	rt := m.NewResourceType("machine")
	r := m.NewResource("m1")
	alwaysOn(r, rt, 0, 20)
	alwaysOn(r, rt, 30, 100)
	act := m.NewActivity("process")
	act.NewWorkGroup("wg", 0, ConstantTime(50)).Require(rt, 1)
	f := m.Flows().NewSingle("process", act)
	et := m.NewElementType("job", 0)

	// WHEN a 50-tick job starts at 0 and a second job arrives at 25
	_, rec := runModel(t, m, 500, func(s *Simulation) {
		s.StartElement(0, et, f)
		s.StartElement(25, et, f)
	})

	// THEN the first job keeps its resource past the window and the second
	// starts when it is released
	assert.Empty(t, rec.activity(ActivityInterrupt))
	assert.Equal(t, []string{"process@0", "process@50"}, rec.starts())
	ends := rec.activity(ActivityEnd)
	require.Len(t, ends, 2)
	assert.Equal(t, int64(50), ends[0].Clock)
	assert.Equal(t, int64(100), ends[1].Clock)
}

func TestPresentialActivities_OneAtATimePerElement(t *testing.T) {
	// GIVEN a parallel split into two presential activities with free resources
	m := NewModel("presential")
	rt := m.NewResourceType("staff")
	alwaysOn(m.NewResource("r1"), rt, 0, 1000)
	alwaysOn(m.NewResource("r2"), rt, 0, 1000)
	left := m.NewActivity("left")
	left.NewWorkGroup("wg", 0, ConstantTime(10)).Require(rt, 1)
	right := m.NewActivity("right")
	right.NewWorkGroup("wg", 0, ConstantTime(10)).Require(rt, 1)
	g := m.Flows()
	split := g.NewParallel("split")
	join := g.NewSynchronization("join")
	split.Link(g.NewSingle("left", left)).Link(join)
	split.Link(g.NewSingle("right", right)).Link(join)
	et := m.NewElementType("e", 0)

	// WHEN one element runs the split
	s, rec := runModel(t, m, 500, func(s *Simulation) { s.StartElement(0, et, split) })

	// THEN the second activity waits for the element, not for resources
	assert.Equal(t, []string{"left@0", "right@10"}, rec.starts())
	assert.Equal(t, int64(1), s.ElementsFinished())
}

func TestNonPresentialActivities_RunInParallel(t *testing.T) {
	m := NewModel("non-presential")
	g := m.Flows()
	split := g.NewParallel("split")
	join := g.NewSynchronization("join")
	split.Link(g.NewSingle("left", freeActivity(m, "left", 10))).Link(join)
	split.Link(g.NewSingle("right", freeActivity(m, "right", 10))).Link(join)
	et := m.NewElementType("e", 0)

	_, rec := runModel(t, m, 500, func(s *Simulation) { s.StartElement(0, et, split) })

	assert.Equal(t, []string{"left@0", "right@0"}, rec.starts())
}

func TestSignalAvailable_ActivityPriorityWinsFreedResource(t *testing.T) {
	for seed := int64(1); seed <= 40; seed++ {
		// GIVEN a routine and an urgent activity both waiting for one
		// resource that rolls on at 5
		m := NewModel("activity-priority")
		rt := m.NewResourceType("staff")
		alwaysOn(m.NewResource("r1"), rt, 5, 1000)
		routine := m.NewActivity("routine")
		routine.Priority = 10
		routine.NewWorkGroup("wg", 0, ConstantTime(10)).Require(rt, 1)
		urgent := m.NewActivity("urgent")
		urgent.NewWorkGroup("wg", 0, ConstantTime(10)).Require(rt, 1)
		g := m.Flows()
		fRoutine, fUrgent := g.NewSingle("routine", routine), g.NewSingle("urgent", urgent)
		et := m.NewElementType("e", 0)
		s, err := NewSimulation(m, Config{End: 100, Seed: seed})
		require.NoError(t, err)
		rec := &recorder{}
		s.AddListener(rec)
		s.StartElement(0, et, fRoutine)
		s.StartElement(0, et, fUrgent)

		// WHEN the resource arrives
		s.Run()

		// THEN the lower priority value is served first, whatever the seed
		assert.Equal(t, []string{"urgent@5", "routine@15"}, rec.starts(), "seed %d", seed)
	}
}

func TestSignalAvailable_EqualPrioritiesShareFreedResource(t *testing.T) {
	// GIVEN two activities of equal priority waiting for one resource
	wins := map[string]int{}
	for seed := int64(1); seed <= 40; seed++ {
		m := NewModel("equal-priority")
		rt := m.NewResourceType("staff")
		alwaysOn(m.NewResource("r1"), rt, 5, 1000)
		left := m.NewActivity("left")
		left.NewWorkGroup("wg", 0, ConstantTime(10)).Require(rt, 1)
		right := m.NewActivity("right")
		right.NewWorkGroup("wg", 0, ConstantTime(10)).Require(rt, 1)
		g := m.Flows()
		fLeft, fRight := g.NewSingle("left", left), g.NewSingle("right", right)
		et := m.NewElementType("e", 0)
		s, err := NewSimulation(m, Config{End: 100, Seed: seed})
		require.NoError(t, err)
		rec := &recorder{}
		s.AddListener(rec)
		s.StartElement(0, et, fLeft)
		s.StartElement(0, et, fRight)

		// WHEN the resource arrives
		s.Run()

		starts := rec.activity(ActivityStart)
		require.NotEmpty(t, starts)
		wins[starts[0].Activity]++
	}

	// THEN each activity wins the first start under some seed
	assert.Positive(t, wins["left"])
	assert.Positive(t, wins["right"])
}
