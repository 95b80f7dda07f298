// Package harness runs behavioural scenarios against a real engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: focus_then_break
//	description: "A finished focus period starts the break"
//	engine:
//	  max_tasks: 10
//	setup:
//	  - op: add_task
//	    args: { name: "Write report", focus: 1, break: 1 }
//	flow:
//	  - op: start_task
//	    args: { task: 1 }
//	  - op: advance
//	    args: { seconds: 60 }
//	  - op: resume
//	    expect: { error: INVALID_STATE_TRANSITION }
//	assertions:
//	  - type: status
//	    expect: { state: break, timeLeft: 60 }
//	  - type: event_count
//	    tag: TIMER_COMPLETE
//	    count: 1
//	  - type: final_state
//	    table: plant_state
//	    expect: { pending_water: 0 }
//
// Setup steps must succeed. Flow steps without an expect clause must
// succeed too; a step that expects an error code fails the scenario if it
// succeeds.
//
// # Assertion Types
//
//   - status: subset match against the engine status (JSON field names)
//   - event_contains: an event with the tag, and optionally payload values
//   - event_order: tags first appear in the listed order
//   - event_count: a tag appears exactly N times
//   - final_state: a row of the persisted SQLite state
//
// # Determinism
//
// Each run gets a fresh engine, an in-memory SQLite store that receives
// every snapshot synchronously, and a fake clock starting at
// testutil.Epoch. Traces are therefore stable enough for golden files.
package harness
