package hotswap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		strategy ReloadStrategy
		old, new string
		hasBean  bool
		want     Action
	}{
		{name: "no bean defines", strategy: StrategyClassChange, old: "a", new: "b", hasBean: false, want: ActionDefine},
		{name: "no bean never", strategy: StrategyNever, hasBean: false, want: ActionDefine},
		{name: "never reinjects", strategy: StrategyNever, old: "a", new: "b", hasBean: true, want: ActionReinject},
		{name: "class change invalidates", strategy: StrategyClassChange, old: "a", new: "a", hasBean: true, want: ActionInvalidate},
		{name: "field changed", strategy: StrategyFieldSignatureChange, old: "a", new: "b", hasBean: true, want: ActionInvalidate},
		{name: "field unchanged", strategy: StrategyFieldSignatureChange, old: "a", new: "a", hasBean: true, want: ActionReinject},
		{name: "method field changed", strategy: StrategyMethodFieldSignatureChange, old: "a", new: "b", hasBean: true, want: ActionInvalidate},
		{name: "method field unchanged", strategy: StrategyMethodFieldSignatureChange, old: "a", new: "a", hasBean: true, want: ActionReinject},
		{name: "empty new counts as unchanged", strategy: StrategyFieldSignatureChange, old: "a", new: "", hasBean: true, want: ActionReinject},
		{name: "unknown old", strategy: StrategyFieldSignatureChange, old: "", new: "b", hasBean: true, want: ActionInvalidate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.strategy, tt.old, tt.new, tt.hasBean))
		})
	}
}

func TestDecideForScope(t *testing.T) {
	assert.Equal(t, ActionSkip, DecideForScope(ScopeRequest, StrategyClassChange, "", "", true))
	assert.Equal(t, ActionSkip, DecideForScope(ScopeDependent, StrategyNever, "", "", true))
	assert.Equal(t, ActionDefine, DecideForScope(ScopeRequest, StrategyNever, "", "", false))
	assert.Equal(t, ActionInvalidate, DecideForScope(ScopeSession, StrategyClassChange, "", "", true))
	assert.Equal(t, ActionReinject, DecideForScope(ScopeApplication, StrategyNever, "", "", true))
}
