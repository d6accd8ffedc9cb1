// Package logging wraps zap for tripwire: a root logger plus named child loggers whose levels can be
// tuned individually, written either to stderr or to systemd-journald.
package logging
