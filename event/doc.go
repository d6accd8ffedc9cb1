// Package event defines ErrorEvent, the unit of input delivered by the error tracker, together with
// its JSON encoding. Events come in two kinds, new-error and new-occurrence.
package event
