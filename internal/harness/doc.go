// Package harness runs conformance scenarios against the record store façade.
//
// A scenario is a list of façade operations with expected outcomes, followed by
// assertions over the operation trace and the stored rows.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  - kind: entity
//	    verb: upsert
//	    org: org-a
//	    payload: { entity_type: service, entity_name: Haircut, smart_code: HERA.SALON.SERVICE.ENTITY.v1 }
//	    save_as: haircut
//	flow:
//	  - kind: dynamic_field
//	    verb: set
//	    org: org-a
//	    payload: { entity_id: "${haircut.id}", field_name: price, field_type: number, field_value: 65 }
//	    expect:
//	      case: ok
//	      result: { value: 65 }
//	assertions:
//	  - type: trace_contains
//	    action: dynamic_field.set
//	  - type: final_state
//	    table: dynamic_fields
//	    where: { entity_id: "${haircut.id}", field_name: price }
//	    expect: { field_value_number: 65 }
//
// Setup steps must succeed. Flow steps are checked against their expect clause: case is
// "ok" or an error kind such as TypeMismatch, field is the offending field of an error,
// and result is a subset match. ${label.path} references resolve against results saved
// with save_as.
//
// # Assertion Types
//
//   - trace_contains: an action appears in the trace, optionally with a case
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: exactly one row matches and carries the expected values
//   - row_count: exactly N rows match
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory SQLite store with a step clock and sequential ids,
// so traces are identical across runs. Golden files hold one canonical JSON line per
// trace event; see TraceBytes.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/scenario_b_balanced_ticket.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
