package harness

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/facade"
	"github.com/roach88/recordstore/internal/logging"
	"github.com/roach88/recordstore/internal/store"
	"github.com/roach88/recordstore/internal/testutil"
	"github.com/roach88/recordstore/internal/value"
)

// Harness is the test execution engine.
// It runs scenarios against a fresh store with a deterministic clock and ids.
type Harness struct {
	store *store.Store
	svc   *facade.Service
	saved bindings
	seq   int64
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
//  1. Create fresh in-memory database and façade
//  2. Execute setup steps, each of which must succeed
//  3. Execute flow steps with expect validation
//  4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with an explicit context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.OpenWithOptions(":memory:", store.Options{
		Clock:  testutil.NewStepClock(),
		IDs:    testutil.NewSequentialIDs("id"),
		Logger: logging.Discard(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store: st,
		svc:   facade.New(st, facade.Options{Logger: logging.Discard()}),
		saved: bindings{},
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		result.Trace = append(result.Trace, ev)
		if ev.Case != CaseOK {
			return nil, fmt.Errorf("setup[%d] %s failed: %s", i, ev.Action, ev.Case)
		}
	}

	for i, step := range scenario.Flow {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		result.Trace = append(result.Trace, ev)
		if step.Expect != nil {
			for _, msg := range h.checkExpect(i, step, ev) {
				result.AddError(msg)
			}
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx, Bindings: h.saved}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// execute sends one step through the façade and records its outcome.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	var payload json.RawMessage
	if step.Payload != nil {
		resolved, err := h.saved.resolve(step.Payload)
		if err != nil {
			return TraceEvent{}, fmt.Errorf("payload: %w", err)
		}
		if payload, err = json.Marshal(resolved); err != nil {
			return TraceEvent{}, fmt.Errorf("payload: %w", err)
		}
	}

	h.seq++
	resp := h.svc.Dispatch(ctx, facade.Request{
		ID:             fmt.Sprintf("step-%d", h.seq),
		Kind:           step.Kind,
		Verb:           step.Verb,
		OrganizationID: step.Org,
		Actor:          step.Actor,
		Payload:        payload,
	})

	ev := TraceEvent{Seq: h.seq, Action: step.Action(), Org: step.Org, Case: CaseOK}
	if !resp.OK {
		ev.Case = string(resp.Error.Kind)
		ev.Field = resp.Error.Field
		if resp.Error.Kind == apperr.KindInternal {
			return ev, fmt.Errorf("%s: internal error", step.Action())
		}
		return ev, nil
	}

	generic, err := toGeneric(resp.Result)
	if err != nil {
		return ev, fmt.Errorf("%s: decode result: %w", step.Action(), err)
	}
	ev.Result = generic
	if step.SaveAs != "" {
		h.saved[step.SaveAs] = generic
	}
	return ev, nil
}

// checkExpect compares a flow step's outcome with its expect clause.
func (h *Harness) checkExpect(index int, step Step, ev TraceEvent) []string {
	var errs []string
	exp := step.Expect
	if ev.Case != exp.Case {
		errs = append(errs, fmt.Sprintf("flow[%d] %s: expected case %q, got %q (field %q)",
			index, ev.Action, exp.Case, ev.Case, ev.Field))
		return errs
	}
	if exp.Field != "" && ev.Field != exp.Field {
		errs = append(errs, fmt.Sprintf("flow[%d] %s: expected error field %q, got %q",
			index, ev.Action, exp.Field, ev.Field))
	}
	if len(exp.Result) > 0 {
		want, err := h.saved.resolve(exp.Result)
		if err != nil {
			return append(errs, fmt.Sprintf("flow[%d] %s: expect.result: %v", index, ev.Action, err))
		}
		if path, ok := matchSubset(ev.Result, want, ""); !ok {
			errs = append(errs, fmt.Sprintf("flow[%d] %s: result mismatch at %s", index, ev.Action, path))
		}
	}
	return errs
}

// toGeneric round-trips v through JSON so results compare as plain maps and slices.
func toGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return value.Decode(data)
}
