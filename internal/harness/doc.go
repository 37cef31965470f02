// Package harness runs scripted scenarios against the download feature.
//
// A scenario clicks the download button, waits for states or effects, and
// then asserts on what the feature's journal recorded.
//
// # Scenario Format
//
//	name: complete_download
//	description: "A started download runs to 100% and returns to idle"
//	interval: 1ms
//	intake: queue
//	steps:
//	  - click: {}
//	  - await: { effect: completed }
//	  - await: { state: idle }
//	assertions:
//	  - type: final_state
//	    state: idle
//	  - type: state_sequence
//	    states: [idle, downloading, idle]
//	  - type: effect_count
//	    effect: halfway
//	    count: 1
//
// Documents are validated against an embedded CUE schema and then decoded
// strictly, so unknown fields are rejected.
//
// # Steps
//
//   - click: press the button, from the current state or an explicit one
//   - await: wait for a state (optionally a minimum percent) and/or a number
//     of effects of one kind
//   - sleep: pause for a duration
//
// # Assertion Types
//
//   - final_state: the last recorded state kind, optionally its percent
//   - state_sequence: recorded state kinds without consecutive repeats
//   - effect_count: number of recorded effects of a kind
//   - result_count: number of recorded results of a kind
//   - job_launches: number of download jobs started
//
// # Deterministic Testing
//
// Every run uses an in-memory journal and a fixed instance id. The trace
// used for golden comparison is condensed: runs of identical folds collapse
// to one entry and sequence numbers are dropped, so timing differences such
// as the number of ticks before a cancel do not change it.
package harness
