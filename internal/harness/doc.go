// Package harness runs sync scenarios against an in-memory store.
//
// A scenario seeds a fake store, loads the mirror, and drives it through
// the same coordinators the CLI uses: image mutations, category lifecycle,
// capture, and live messages. Every event the engine applies is recorded in
// a trace, which is compared against a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	live: true
//	setup:
//	  categories: [Art, Travel]
//	  images:
//	    - { id: "1", category: Art, favorite: true }
//	flow:
//	  - op: trash
//	    id: "1"
//	    expect:
//	      outcome: PRECONDITION_REJECTED
//	assertions:
//	  - type: trace_contains
//	    event: ImageTrashed
//	  - type: final_state
//	    table: images
//	    where: { id: "1" }
//	    expect: { isDeleted: false }
//
// With live set, messages the store pushes during a step are delivered to
// the engine after it, so every mutation is also seen as its own echo.
//
// # Assertion Types
//
//   - trace_contains: an op, event kind or push type appears in the trace
//   - trace_order: entries appear in the given order
//   - trace_count: an entry appears exactly N times
//   - final_state: one row of images, store, categories, session, or a
//     journal table has the expected values
//   - visible: the images shown under a category, in order
//
// # Deterministic Testing
//
// Saved images get sequential ids, the journal session is fixed, and the
// engine clock starts at zero, so a scenario's trace is identical across
// runs. After the flow, the journal is replayed once and doubled and both
// rebuilt mirrors must equal the live one.
package harness
