package hotswap

import (
	"context"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineV1 struct {
	Name string
}

type engineV1Copy struct {
	Name string
}

type engineV2 struct {
	Name  string
	Count int
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), nil)
	require.NoError(t, err)
	return e
}

func resultDiff(want, got Result) string {
	return cmp.Diff(want, got, cmpopts.EquateEmpty())
}

func TestEngine_ReinjectWhenStructureUnchanged(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	old := classOf("l", "Greeter", engineV1{})
	b := reg.bean("greeter", old, ScopeApplication, KindManaged)
	app := newReloadableContext("app", ScopeApplication, true)
	app.put(b, &engineV1{})
	reg.single[ScopeApplication] = app

	oldFP := e.Comparator().Fingerprint(old, StrategyFieldSignatureChange)
	next := classOf("l", "Greeter", engineV1Copy{})
	res := e.Reconcile(context.Background(), reg, next, StrategyFieldSignatureChange, oldFP)

	want := Result{Class: next.ID, Strategy: StrategyFieldSignatureChange, Reinjected: []string{"greeter"}}
	assert.Empty(t, resultDiff(want, res))
	assert.Equal(t, 1, reg.producer.count())
	assert.Zero(t, app.reloads.Len())
	assert.Equal(t, next.Type, b.Class().Type)
}

func TestEngine_InvalidateWhenStructureChanged(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	old := classOf("l", "Greeter", engineV1{})
	b := reg.bean("greeter", old, ScopeApplication, KindManaged)
	app := newReloadableContext("app", ScopeApplication, true)
	app.put(b, &engineV1{})
	reg.single[ScopeApplication] = app

	oldFP := e.Comparator().Fingerprint(old, StrategyFieldSignatureChange)
	res := e.Reconcile(context.Background(), reg, classOf("l", "Greeter", engineV2{}), StrategyFieldSignatureChange, oldFP)

	assert.Equal(t, []string{"greeter"}, res.Invalidated)
	assert.True(t, app.reloads.Contains(b))
	assert.Zero(t, reg.producer.count())
}

func TestEngine_InvalidateFallsBackToReinject(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	b := reg.bean("greeter", classOf("l", "Greeter", engineV1{}), ScopeApplication, KindManaged)
	app := newReloadableContext("app", ScopeApplication, true)
	app.refuse = true
	app.put(b, &engineV1{})
	reg.single[ScopeApplication] = app

	res := e.Reconcile(context.Background(), reg, classOf("l", "Greeter", engineV2{}), StrategyClassChange, emptyString)

	assert.Equal(t, []string{"greeter"}, res.Invalidated)
	assert.Equal(t, 1, reg.producer.count())
}

func TestEngine_FailedReconcileKeepsFingerprint(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	old := classOf("l", "Greeter", engineV1{})
	b := reg.bean("greeter", old, ScopeApplication, KindManaged)
	app := newReloadableContext("app", ScopeApplication, true)
	app.put(b, &engineV1{})
	reg.single[ScopeApplication] = app

	oldFP := e.Comparator().Fingerprint(old, StrategyFieldSignatureChange)
	e.Classes().Record(old.ID, StrategyFieldSignatureChange, oldFP)

	next := classOf("l", "Greeter", engineV2{})
	reg.mdErr = errBoom
	res := e.Reconcile(context.Background(), reg, next, StrategyFieldSignatureChange, emptyString)
	assert.Equal(t, []string{"greeter"}, res.Failed)
	assert.Zero(t, app.reloads.Len())
	assert.Equal(t, old.Type, b.Class().Type)
	fp, ok := e.Classes().Fingerprint(old.ID, StrategyFieldSignatureChange)
	require.True(t, ok)
	assert.Equal(t, oldFP, fp)

	reg.mdErr = nil
	res = e.Reconcile(context.Background(), reg, next, StrategyFieldSignatureChange, emptyString)
	assert.Equal(t, []string{"greeter"}, res.Invalidated)
	assert.True(t, app.reloads.Contains(b))
	assert.Equal(t, next.Type, b.Class().Type)
}

func TestEngine_DefineNewClass(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	class := classOf("l", "pkg.Audit", engineV1{})

	res := e.Reconcile(context.Background(), reg, class, StrategyNever, emptyString)
	assert.Equal(t, []string{"audit"}, res.Defined)
	require.Len(t, reg.BeansForClass(class.ID), 1)

	res = e.Reconcile(context.Background(), reg, class, StrategyNever, emptyString)
	assert.Empty(t, res.Defined)
	assert.Equal(t, []string{"audit"}, res.Reinjected)
	assert.Len(t, reg.BeansForClass(class.ID), 1)
}

func TestEngine_DefineSkipsNonManaged(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	reg.kind = KindSession
	class := classOf("l", "Stateful", engineV1{})

	res := e.Reconcile(context.Background(), reg, class, StrategyNever, emptyString)
	assert.Equal(t, []string{class.ID.String()}, res.Skipped)
	assert.Empty(t, reg.beans)

	reg.kind = KindManaged
	reg.mdErr = errBoom
	res = e.Reconcile(context.Background(), reg, class, StrategyNever, emptyString)
	assert.Equal(t, []string{class.ID.String()}, res.Failed)
}

func TestEngine_TransientScopesSkipped(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	reg.scope = ScopeRequest
	class := classOf("l", "Tracker", engineV1{})
	b := reg.bean("tracker", class, ScopeRequest, KindManaged)
	r := newReloadableContext("r1", ScopeRequest, true)
	r.put(b, &engineV1{})
	reg.contexts[ScopeRequest] = []Context{r}

	res := e.Reconcile(context.Background(), reg, class, StrategyClassChange, emptyString)
	assert.Equal(t, []string{"tracker"}, res.Skipped)
	assert.Zero(t, r.reloads.Len())
	assert.Zero(t, reg.producer.count())
}

func TestEngine_RequestBeanReinjectedWithoutScopeOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SkipTransientScopes = false
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)

	reg := newFakeRegistry()
	reg.scope = ScopeRequest
	class := classOf("l", "Tracker", engineV1{})
	b := reg.bean("tracker", class, ScopeRequest, KindManaged)
	instance := &engineV1{Name: "live"}
	r := newReloadableContext("r1", ScopeRequest, true)
	r.put(b, instance)
	reg.contexts[ScopeRequest] = []Context{r}

	res := e.Reconcile(context.Background(), reg, class, StrategyNever, emptyString)
	assert.Equal(t, []string{"tracker"}, res.Reinjected)
	require.Equal(t, 1, reg.producer.count())
	assert.Same(t, instance, reg.producer.injected[0])

	got, ok, err := r.Get(b)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, instance, got)
}

func TestEngine_TrackedSessions(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	reg.scope = ScopeSession
	class := classOf("l", "Cart", engineV1{})
	b := reg.bean("cart", class, ScopeSession, KindManaged)

	tracker := newFakeTracker()
	for _, id := range []string{"s1", "s2"} {
		c := newReloadableContext(id, ScopeSession, false)
		c.put(b, &engineV1{})
		tracker.add(id, c)
	}
	reg.tracked[ScopeSession] = tracker

	res := e.Reconcile(context.Background(), reg, class, StrategyNever, emptyString)
	assert.Equal(t, []string{"cart"}, res.Reinjected)
	assert.Equal(t, 2, reg.producer.count())
	assert.Equal(t, []string{"s1", "s2"}, tracker.deactivated)
}

func TestEngine_SessionKindAlwaysReinjected(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	b := reg.bean("stateful", classOf("l", "Stateful", engineV1{}), ScopeApplication, KindSession)
	app := newReloadableContext("app", ScopeApplication, true)
	app.put(b, &engineV1{})
	reg.single[ScopeApplication] = app

	res := e.Reconcile(context.Background(), reg, classOf("l", "Stateful", engineV2{}), StrategyClassChange, emptyString)
	assert.Equal(t, []string{"stateful"}, res.Reinjected)
	assert.Zero(t, app.reloads.Len())
	assert.Equal(t, KindSession, b.Kind())
}

func TestEngine_UnsupportedBeanDoesNotStopOthers(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	class := classOf("l", "Shared", engineV1{})
	reg.bean("remote", class, ScopeApplication, KindUnsupported)
	b := reg.bean("local", class, ScopeApplication, KindManaged)
	app := newReloadableContext("app", ScopeApplication, true)
	app.put(b, &engineV1{})
	reg.single[ScopeApplication] = app

	res := e.Reconcile(context.Background(), reg, class, StrategyNever, emptyString)
	assert.Equal(t, []string{"remote"}, res.Failed)
	assert.Equal(t, []string{"local"}, res.Reinjected)
}

func TestEngine_ContextFailureIsolated(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	conversation := Scope("conversation")
	reg.scope = conversation
	class := classOf("l", "Wizard", engineV1{})
	b := reg.bean("wizard", class, conversation, KindManaged)

	broken := newFakeContext("c1", conversation, true)
	broken.getErr = errBoom
	healthy := newFakeContext("c2", conversation, true)
	healthy.put(b, &engineV1{})
	reg.contexts[conversation] = []Context{broken, healthy}

	res := e.Reconcile(context.Background(), reg, class, StrategyNever, emptyString)
	assert.Equal(t, []string{"wizard"}, res.Failed)
	assert.Equal(t, 1, reg.producer.count())
}

func TestEngine_PanicIsRecovered(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	reg.producer.panicMsg = "injector exploded"
	class := classOf("l", "Greeter", engineV1{})
	b := reg.bean("greeter", class, ScopeApplication, KindManaged)
	app := newFakeContext("app", ScopeApplication, true)
	app.put(b, &engineV1{})
	reg.single[ScopeApplication] = app

	res := e.Reconcile(context.Background(), reg, class, StrategyNever, emptyString)
	assert.Equal(t, []string{"greeter"}, res.Failed)
}

func TestEngine_NilRegistry(t *testing.T) {
	e := newTestEngine(t)
	class := classOf("l", "Greeter", engineV1{})
	res := e.Reconcile(context.Background(), nil, class, StrategyNever, emptyString)
	assert.Equal(t, []string{class.ID.String()}, res.Failed)
}

func TestEngine_RemembersFingerprints(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	old := classOf("l", "Greeter", engineV1{})
	b := reg.bean("greeter", old, ScopeApplication, KindManaged)
	app := newReloadableContext("app", ScopeApplication, true)
	app.put(b, &engineV1{})
	reg.single[ScopeApplication] = app

	res := e.Reconcile(context.Background(), reg, old, StrategyFieldSignatureChange, emptyString)
	assert.Equal(t, []string{"greeter"}, res.Invalidated, "no fingerprint known yet")

	fp, ok := e.Classes().Fingerprint(old.ID, StrategyFieldSignatureChange)
	require.True(t, ok)
	assert.Equal(t, e.Comparator().Fingerprint(old, StrategyFieldSignatureChange), fp)

	res = e.Reconcile(context.Background(), reg, classOf("l", "Greeter", engineV1Copy{}), StrategyFieldSignatureChange, emptyString)
	assert.Equal(t, []string{"greeter"}, res.Reinjected)

	res = e.Reconcile(context.Background(), reg, classOf("l", "Greeter", engineV2{}), StrategyFieldSignatureChange, emptyString)
	assert.Equal(t, []string{"greeter"}, res.Invalidated)
}

func TestEngine_ConcurrentReconcilesOfOneClass(t *testing.T) {
	e := newTestEngine(t)
	reg := newFakeRegistry()
	class := classOf("l", "Greeter", engineV1{})
	b := reg.bean("greeter", class, ScopeApplication, KindManaged)
	app := newFakeContext("app", ScopeApplication, true)
	app.put(b, &engineV1{})
	reg.single[ScopeApplication] = app

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.Reconcile(context.Background(), reg, class, StrategyNever, emptyString)
		}()
	}
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, []string{"greeter"}, res.Reinjected)
	}
	assert.Equal(t, len(results), reg.producer.count())
}
