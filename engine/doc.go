// Package engine is the event-processing boundary of tripwire.
//
// An Engine admits each incoming error event through a throttle.Store, dispatches admitted events to
// the configured notification sinks and sweeps idle throttle state in the background. It declines to
// run without at least one usable sink unless it is in test mode, i.e. no notification types are
// configured at all.
package engine
