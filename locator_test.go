package hotswap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(l *Locator, src ContextSource, scope Scope) []string {
	var ids []string
	for c := range l.Find(src, scope) {
		ids = append(ids, c.ID())
	}
	return ids
}

func TestLocator_SingleContextWins(t *testing.T) {
	reg := newFakeRegistry()
	reg.single[ScopeApplication] = newFakeContext("app", ScopeApplication, true)
	reg.contexts[ScopeApplication] = []Context{newFakeContext("other", ScopeApplication, true)}

	l := NewLocator(nil, ScopeSession)
	assert.Equal(t, []string{"app"}, collect(l, reg, ScopeApplication))
}

func TestLocator_ListedContexts(t *testing.T) {
	reg := newFakeRegistry()
	reg.contexts[ScopeRequest] = []Context{
		newFakeContext("r1", ScopeRequest, true),
		nil,
		newFakeContext("r2", ScopeRequest, false),
	}

	l := NewLocator(nil, ScopeSession)
	assert.Equal(t, []string{"r1", "r2"}, collect(l, reg, ScopeRequest))
	assert.Empty(t, collect(l, reg, ScopeDependent))
	assert.Empty(t, collect(l, nil, ScopeApplication))
}

func TestLocator_TrackedContextsAreActivatedDuringVisit(t *testing.T) {
	reg := newFakeRegistry()
	tracker := newFakeTracker()
	s1 := newFakeContext("s1", ScopeSession, false)
	s2 := newFakeContext("s2", ScopeSession, false)
	tracker.add("s1", s1)
	tracker.add("s2", s2)
	tracker.activateErr["s0"] = ErrNotFound
	reg.tracked[ScopeSession] = tracker

	l := NewLocator(nil, ScopeSession)
	var seen []string
	for c := range l.Find(reg, ScopeSession) {
		assert.True(t, c.Active(), c.ID())
		seen = append(seen, c.ID())
	}
	assert.Equal(t, []string{"s1", "s2"}, seen)
	assert.Equal(t, []string{"s1", "s2"}, tracker.deactivated)
	assert.False(t, s1.Active())
	assert.False(t, s2.Active())
}

func TestLocator_TrackedDeactivatedOnEarlyStop(t *testing.T) {
	reg := newFakeRegistry()
	tracker := newFakeTracker()
	tracker.add("s1", newFakeContext("s1", ScopeSession, false))
	tracker.add("s2", newFakeContext("s2", ScopeSession, false))
	reg.tracked[ScopeSession] = tracker

	l := NewLocator(nil, ScopeSession)
	for range l.Find(reg, ScopeSession) {
		break
	}
	assert.Equal(t, []string{"s1"}, tracker.activated)
	assert.Equal(t, []string{"s1"}, tracker.deactivated)
}

func TestLocator_TrackedDeactivatedOnPanic(t *testing.T) {
	reg := newFakeRegistry()
	tracker := newFakeTracker()
	tracker.add("s1", newFakeContext("s1", ScopeSession, false))
	reg.tracked[ScopeSession] = tracker

	l := NewLocator(nil, ScopeSession)
	require.Panics(t, func() {
		for range l.Find(reg, ScopeSession) {
			panic("consumer failed")
		}
	})
	assert.Equal(t, []string{"s1"}, tracker.deactivated)
}

func TestLocator_ActivationFailureSkipsInstance(t *testing.T) {
	reg := newFakeRegistry()
	tracker := newFakeTracker()
	tracker.activateErr["broken"] = errors.New("storage offline")
	tracker.add("ok", newFakeContext("ok", ScopeSession, false))
	reg.tracked[ScopeSession] = tracker

	l := NewLocator(nil, ScopeSession)
	assert.Equal(t, []string{"ok"}, collect(l, reg, ScopeSession))
}

func TestLocator_TrackableWithoutTrackerFallsBack(t *testing.T) {
	reg := newFakeRegistry()
	reg.contexts[ScopeSession] = []Context{newFakeContext("s", ScopeSession, true)}

	l := NewLocator(nil, ScopeSession)
	assert.True(t, l.Trackable(ScopeSession))
	assert.False(t, l.Trackable(ScopeRequest))
	assert.Equal(t, []string{"s"}, collect(l, reg, ScopeSession))
}
