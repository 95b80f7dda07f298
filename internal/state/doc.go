// Package state implements the bloom session/task/plant state machine.
//
// The Engine is the single source of truth for the device. Every change goes
// through a named operation; nothing outside this package writes a field.
//
// Modes:
//
//	Idle -> Focusing           start, or trigger asserted with a selected task
//	Focusing -> Break          focus countdown reached zero
//	Break -> Focusing          break countdown reached zero
//	Focusing/Break -> Paused   pause, or trigger released (awaits confirmation)
//	Paused -> Focusing/Break   resume, or trigger asserted
//	any -> Withered            goal missed at day boundary, or forced
//	Withered -> Idle           revive
//
// Failure semantics: an operation either applies in full or returns an
// *Error and leaves the engine untouched. No operation panics on bad input.
//
// Emission: state changes are reported only through the event.Bus handed to
// New. The engine never calls back into its consumers.
//
// Concurrency: the Engine is not safe for concurrent use. The device loop
// and the network handlers share it through shared.Accessor, which also
// makes the engine's Bus single-writer-at-a-time.
package state
