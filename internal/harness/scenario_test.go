package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordstore/internal/facade"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
setup:
  - kind: entity
    verb: upsert
    org: org-a
    payload:
      entity_type: service
      entity_name: Haircut
      smart_code: HERA.SALON.SERVICE.ENTITY.v1
    save_as: haircut
flow:
  - kind: entity
    verb: get
    org: org-a
    payload:
      id: ${haircut.id}
    expect:
      case: ok
      result:
        entity_name: Haircut
assertions:
  - type: trace_contains
    action: entity.get
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Len(t, scenario.Setup, 1)
	assert.Len(t, scenario.Flow, 1)
	assert.Len(t, scenario.Assertions, 1)
	assert.Equal(t, facade.KindEntity, scenario.Flow[0].Kind)
	assert.Equal(t, "entity.get", scenario.Flow[0].Action())
	assert.Equal(t, "haircut", scenario.Setup[0].SaveAs)
	assert.Equal(t, "${haircut.id}", scenario.Flow[0].Payload["id"])
	assert.Equal(t, "Haircut", scenario.Flow[0].Expect.Result["entity_name"])
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Invalid(t *testing.T) {
	const flow = `
flow:
  - kind: entity
    verb: get
    org: org-a
`
	const assertions = `
assertions:
  - type: trace_count
    action: entity.get
    count: 1
`
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing name", "description: d" + flow + assertions, "name is required"},
		{"missing description", "name: n" + flow + assertions, "description is required"},
		{"missing flow", "name: n\ndescription: d" + assertions, "flow list is required"},
		{"missing assertions", "name: n\ndescription: d" + flow, "assertions list is required"},
		{"missing verb", "name: n\ndescription: d\nflow:\n  - kind: entity\n" + assertions, "flow[0]: kind and verb are required"},
		{"expect without case", "name: n\ndescription: d\nflow:\n  - kind: entity\n    verb: get\n    expect:\n      field: id\n" + assertions, "flow[0].expect: case is required"},
		{"bad save label", "name: n\ndescription: d\nflow:\n  - kind: entity\n    verb: get\n    save_as: 1x\n" + assertions, "must be an identifier"},
		{"duplicate save label", "name: n\ndescription: d\nsetup:\n  - {kind: entity, verb: get, save_as: x}\nflow:\n  - {kind: entity, verb: get, save_as: x}\n" + assertions, "already used"},
		{"unknown field", "name: n\ndescription: d\nassertion: []" + flow + assertions, "failed to parse YAML"},
		{"malformed", "name: [unclosed", "failed to parse YAML"},
		{"unknown assertion", "name: n\ndescription: d" + flow + "\nassertions:\n  - type: vibes\n", "unknown assertion type"},
		{"negative count", "name: n\ndescription: d" + flow + "\nassertions:\n  - {type: row_count, table: entities, count: -1}\n", "count must be non-negative"},
		{"final state without expect", "name: n\ndescription: d" + flow + "\nassertions:\n  - {type: final_state, table: entities}\n", "expect is required"},
		{"order without actions", "name: n\ndescription: d" + flow + "\nassertions:\n  - {type: trace_order}\n", "actions list is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_TraceCountZeroAllowed(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: n
description: d
flow:
  - {kind: entity, verb: get, org: org-a}
assertions:
  - {type: trace_count, action: entity.read, count: 0}
`))
	require.NoError(t, err)
}

func TestAssertionConstants(t *testing.T) {
	assert.Equal(t, "trace_contains", AssertTraceContains)
	assert.Equal(t, "trace_order", AssertTraceOrder)
	assert.Equal(t, "trace_count", AssertTraceCount)
	assert.Equal(t, "final_state", AssertFinalState)
	assert.Equal(t, "row_count", AssertRowCount)
}

// TestLoadExampleScenarios validates the scenario files in testdata/scenarios.
func TestLoadExampleScenarios(t *testing.T) {
	tests := []struct {
		file           string
		wantSetupCount int
		wantFlowCount  int
	}{
		{"scenario_a_typed_attribute", 1, 4},
		{"scenario_b_balanced_ticket", 0, 3},
		{"scenario_c_idempotent_emit", 1, 3},
		{"scenario_d_relationship_upsert", 2, 4},
		{"scenario_e_archive_then_delete", 2, 5},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", tt.file+".yaml"))
			require.NoError(t, err)

			assert.Equal(t, tt.file, scenario.Name)
			assert.Len(t, scenario.Setup, tt.wantSetupCount)
			assert.Len(t, scenario.Flow, tt.wantFlowCount)
		})
	}
}
