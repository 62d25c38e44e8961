// Package coordinator owns the lifecycle of a tutoring turn: recording,
// processing and auto-playing are mutually exclusive, and a backgrounded
// session must be explicitly resumed before it records or speaks again.
package coordinator
