package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/recstore/internal/ir"
	"github.com/roach88/recstore/internal/queryir"
	"github.com/roach88/recstore/internal/storage"
	"github.com/roach88/recstore/internal/testutil"
)

// Opener creates the store a scenario runs against. It must return an
// empty store configured with opts.
type Opener func(opts storage.Options) (storage.Storage, error)

// Harness executes steps against one store.
type Harness struct {
	store    storage.Storage
	resource *ir.Resource
	tenant   string
	clock    *testutil.ManualClock
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Open a store with a frozen clock and the scenario's ids
// 2. Bootstrap its schema
// 3. Execute steps, recording one trace event each
// 4. Check every expect clause, collecting failures in the result
//
// An error is returned only if the store cannot be opened.
func Run(ctx context.Context, scenario *Scenario, open Opener) (*Result, error) {
	clock := testutil.NewManualClock(scenario.Clock)
	st, err := open(storage.Options{
		Clock: clock.Now,
		IDs:   storage.NewFixedGenerator(scenario.IDs...),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if err := storage.EnsureSchema(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to bootstrap store: %w", err)
	}

	h := &Harness{
		store:    st,
		resource: scenario.Resource.Resource(),
		tenant:   scenario.Tenant,
		clock:    clock,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.execute(ctx, i+1, step)
		result.Trace = append(result.Trace, event)
		for _, msg := range checkExpect(step, event, err) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i+1, step.Op, msg))
		}
	}
	return result, nil
}

// execute runs one step. The returned error is the store's, already
// summarized in the event.
func (h *Harness) execute(ctx context.Context, seq int, step Step) (TraceEvent, error) {
	event := TraceEvent{Seq: seq, Op: step.Op, Tenant: step.Tenant, ID: step.ID, resource: h.resource}
	tenant := h.tenant
	if step.Tenant != "" {
		tenant = step.Tenant
	}

	var err error
	switch step.Op {
	case OpCreate:
		event.Record, err = h.store.Create(ctx, h.resource, tenant, step.Record)
	case OpUpdate:
		event.Record, err = h.store.Update(ctx, h.resource, tenant, step.ID, step.Record)
	case OpDelete:
		event.Record, err = h.store.Delete(ctx, h.resource, tenant, step.ID)
	case OpGet:
		event.Record, err = h.store.Get(ctx, h.resource, tenant, step.ID)
	case OpGetAll:
		var q queryir.Query
		if step.Query != nil {
			q, err = step.Query.Query()
		}
		if err == nil {
			event.Records, event.Total, err = h.store.GetAll(ctx, h.resource, tenant, q)
		}
	case OpTimestamp:
		event.Time, err = h.store.CollectionTimestamp(ctx, h.resource, tenant)
	case OpFlush:
		err = h.store.Flush(ctx)
	case OpClock:
		h.clock.Set(step.At)
		event.Time = step.At
	default:
		err = fmt.Errorf("unknown op %q", step.Op)
	}

	if err != nil {
		event.Record, event.Records, event.Total, event.Time = nil, nil, 0, 0
		event.Err = errorKind(err)
	}
	return event, err
}

// errorKind names the class of a store error.
func errorKind(err error) string {
	var ue *storage.UnicityError
	var ve *queryir.ValidationError
	switch {
	case errors.As(err, &ue):
		return ErrUnicity + " " + ue.Field
	case storage.IsNotFound(err):
		return ErrNotFound
	case errors.As(err, &ve):
		return ErrInvalidQuery
	case storage.IsUnavailable(err):
		return ErrUnavailable
	default:
		return ErrRejected
	}
}
