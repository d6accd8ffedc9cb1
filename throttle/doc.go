// Package throttle decides, per error identity, whether an event is dispatched now or suppressed and
// counted, and evicts state for errors that have gone quiet.
//
// All records live in a single map behind one mutex. Records are never locked individually, so each
// read-decide-write sequence of Store.Admit is atomic with respect to every other Admit and Sweep.
package throttle
