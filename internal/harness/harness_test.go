package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordstore/internal/facade"
)

func upsertStep(name, saveAs string) Step {
	return Step{
		Kind:  facade.KindEntity,
		Verb:  facade.VerbUpsert,
		Org:   "org-a",
		Actor: "owner",
		Payload: map[string]any{
			"entity_type": "product",
			"entity_name": name,
			"smart_code":  "HERA.SALON.PRODUCT.ENTITY.v1",
		},
		SaveAs: saveAs,
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Flow:        []Step{upsertStep("Shampoo", "")},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Action: "entity.upsert", Case: CaseOK},
			{Type: AssertRowCount, Table: "entities", Where: map[string]any{"organization_id": "org-a"}, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 1)
	ev := result.Trace[0]
	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, "entity.upsert", ev.Action)
	assert.Equal(t, "org-a", ev.Org)
	assert.Equal(t, CaseOK, ev.Case)
	assert.Equal(t, "Shampoo", ev.Result.(map[string]any)["entity_name"])
}

func TestRun_TemplatesReachLaterSteps(t *testing.T) {
	scenario := &Scenario{
		Name:        "templates",
		Description: "Saved results feed later payloads and expectations",
		Setup:       []Step{upsertStep("Shampoo", "shampoo")},
		Flow: []Step{{
			Kind:    facade.KindEntity,
			Verb:    facade.VerbGet,
			Org:     "org-a",
			Payload: map[string]any{"id": "${shampoo.id}"},
			Expect: &ExpectClause{
				Case:   CaseOK,
				Result: map[string]any{"id": "${shampoo.id}", "entity_name": "Shampoo", "status": "active"},
			},
		}},
		Assertions: []Assertion{
			{Type: AssertFinalState, Table: "entities",
				Where:  map[string]any{"id": "${shampoo.id}"},
				Expect: map[string]any{"entity_name": "Shampoo", "organization_id": "org-a"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_ExpectMismatch(t *testing.T) {
	tests := []struct {
		name    string
		expect  *ExpectClause
		wantErr string
	}{
		{"wrong case", &ExpectClause{Case: "NotFound"}, `expected case "NotFound", got "ok"`},
		{"wrong result", &ExpectClause{Case: CaseOK, Result: map[string]any{"entity_name": "Conditioner"}},
			"result mismatch at .entity_name (expected Conditioner, got Shampoo)"},
		{"wrong field", &ExpectClause{Case: CaseOK, Field: "entity_name"}, `expected error field "entity_name", got ""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := upsertStep("Shampoo", "")
			step.Expect = tt.expect
			result, err := Run(&Scenario{
				Name:        "mismatch",
				Description: "Expectation failures are reported, not returned",
				Flow:        []Step{step},
				Assertions:  []Assertion{{Type: AssertTraceCount, Action: "entity.upsert", Count: 1}},
			})
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.wantErr)
		})
	}
}

func TestRun_ErrorCaseRecordsField(t *testing.T) {
	step := upsertStep("Shampoo", "")
	step.Payload["smart_code"] = "salon.product"
	step.Expect = &ExpectClause{Case: "InvalidSmartCode", Field: "smart_code"}

	result, err := Run(&Scenario{
		Name:        "bad_code",
		Description: "A malformed smart code is refused",
		Flow:        []Step{step},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Action: "entity.upsert", Case: "InvalidSmartCode"},
			{Type: AssertRowCount, Table: "entities", Count: 0},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "smart_code", result.Trace[0].Field)
}

func TestRun_SetupMustSucceed(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "bad_setup",
		Description: "A failing setup step aborts the run",
		Setup: []Step{{
			Kind:    facade.KindEntity,
			Verb:    facade.VerbGet,
			Org:     "org-a",
			Payload: map[string]any{"id": "missing"},
		}},
		Flow:       []Step{upsertStep("Shampoo", "")},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "entity.upsert", Count: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0] entity.get failed: NotFound")
}

func TestRun_UnknownTemplateLabel(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "bad_template",
		Description: "An unresolved template stops the run",
		Flow: []Step{{
			Kind:    facade.KindEntity,
			Verb:    facade.VerbGet,
			Org:     "org-a",
			Payload: map[string]any{"id": "${nothing.id}"},
		}},
		Assertions: []Assertion{{Type: AssertTraceCount, Action: "entity.get", Count: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow[0]: payload")
	assert.Contains(t, err.Error(), `unknown template label "nothing"`)
}

func TestRun_FreshDatabasePerRun(t *testing.T) {
	scenario := &Scenario{
		Name:        "fresh",
		Description: "Each run starts from an empty store",
		Flow:        []Step{upsertStep("Shampoo", "")},
		Assertions:  []Assertion{{Type: AssertRowCount, Table: "entities", Count: 1}},
	}

	for i := 0; i < 2; i++ {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, "run %d: %v", i, result.Errors)
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/scenario_b_balanced_ticket.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	// Ids and timestamps come from the step clock and sequential ids.
	assert.Equal(t, first.Trace, second.Trace)

	a, err := json.Marshal(first.Trace[0].Result)
	require.NoError(t, err)
	b, err := json.Marshal(second.Trace[0].Result)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)

	result.AddError("first")
	result.AddError("second")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"first", "second"}, result.Errors)
}

func TestStepAction(t *testing.T) {
	assert.Equal(t, "transaction.append-lines", Step{Kind: facade.KindTransaction, Verb: facade.VerbAppendLines}.Action())
}

// TestExampleScenarios runs every scenario under testdata/scenarios and compares its
// trace with the golden file of the same name.
func TestExampleScenarios(t *testing.T) {
	files, err := Discover("testdata/scenarios", "")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err, file)

		t.Run(scenario.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}
