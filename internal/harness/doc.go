// Package harness provides scenario-driven integration tests for the
// event router stack.
//
// A scenario wires the full stack (breaker store, catalog, trigger
// matcher, router) over the in-process bus, publishes a sequence of
// events, and checks the boards that were rendered and the circuit
// states left behind.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	circuits:
//	  - circuit_id: MASTER
//	    state: on
//	responses:
//	  echo: "A CANNED AI REPLY"
//	triggers:
//	  - name: john_arrives
//	    entity_pattern: "person\\.john"
//	    state: home
//	events:
//	  - type: vestaboard_refresh
//	    payload: {}
//	expect:
//	  board_count: 1
//	  boards:
//	    - contains: "A CANNED AI REPLY"
//	  circuits:
//	    - circuit_id: SLEEP_MODE
//	      state: "off"
//
// # Deterministic Testing
//
// Scenarios execute with an offline echo provider factory, a fixed
// normal-tier pick sequence, and the synchronous in-process bus, so a
// scenario produces identical boards across runs and can be snapshotted
// with a golden file.
package harness
