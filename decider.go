package hotswap

// Decide picks the reconciliation action for a redefined class.
//
//	strategy         fingerprint changed   action
//	NEVER            -                     REINJECT
//	CLASS_CHANGE     -                     INVALIDATE
//	signature-based  yes                   INVALIDATE
//	signature-based  no                    REINJECT
//	any, no bean for the class             DEFINE
//
// An empty new fingerprint counts as unchanged.
func Decide(strategy ReloadStrategy, oldFingerprint, newFingerprint string, hasBean bool) Action {
	if !hasBean {
		return ActionDefine
	}
	if fingerprintChanged(strategy, oldFingerprint, newFingerprint) {
		return ActionInvalidate
	}
	return ActionReinject
}

// DecideForScope applies the scope override on top of Decide: instances of
// request and dependent beans are never touched in place.
func DecideForScope(scope Scope, strategy ReloadStrategy, oldFingerprint, newFingerprint string, hasBean bool) Action {
	action := Decide(strategy, oldFingerprint, newFingerprint, hasBean)
	if action != ActionDefine && !scope.Reinjectable() {
		return ActionSkip
	}
	return action
}
