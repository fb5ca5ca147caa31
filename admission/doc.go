// Package admission bounds how many LLM calls run at once.
//
// A Gate hands out at most Capacity tickets. Callers beyond that queue in
// arrival order until a ticket is released, their context ends, the optional
// wait timeout expires, or the gate is closed.
//
// Basic usage:
//
//	gate := admission.New(admission.Config{Capacity: 3})
//	ticket, err := gate.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer ticket.Release()
//
// Or let the gate scope the slot:
//
//	err := gate.Do(ctx, func(ctx context.Context) error {
//	    return callModel(ctx)
//	})
//
// Releasing a ticket twice is harmless; only the first call frees the slot.
package admission
