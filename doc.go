// Package hotswap reconciles live bean instances of a dependency-injection
// container after one of their classes has been redefined at runtime.
//
// For every bean registered for the changed class it decides whether the live
// instances are left alone, reinjected in place, or invalidated so that the
// owning context recreates them on next access:
// - Comparator fingerprints a class under a reload strategy
// - Decide maps strategy, fingerprints and scope to an Action
// - Locator walks every live context of a scope, including tracked ones
// - Reinjector reruns injection on an existing instance
// - ReloadSet defers invalidation until the context is next accessed
// - ArchiveRegistry routes change events to the registry of their archive
// - Definer defines a bean for a class that has none, or refreshes it in place
//
// Agent bundles these behind the three entry points used by a class-change
// delivery mechanism: RegisterArchive, ReloadBean and RecreateProxy.
package hotswap
