// Package forcer defines the voltage-forcing collaborator used by the search
// engine, a scope helper guaranteeing the supply is restored, a file-lock
// wrapper and an in-memory simulator.
package forcer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/OpenTraceLab/OpenTraceVmin/pkg/voltage"
)

// VoltageForcer abstracts the supply that forces target voltages during a
// search. Reset is called once before the first Apply of a logical search and
// Restore once after the last one.
type VoltageForcer interface {
	Reset(ctx context.Context) error
	Apply(ctx context.Context, voltages []voltage.Voltage) error
	Restore(ctx context.Context) error
}

// ErrBusy reports that another process holds the forcing resource.
var ErrBusy = errors.New("forcer: resource busy")

// Scope resets f, runs fn and restores f on every exit path, including a
// panic inside fn. Errors from fn and Restore are combined.
func Scope(ctx context.Context, f VoltageForcer, fn func(ctx context.Context) error) (err error) {
	if f == nil {
		return fmt.Errorf("forcer: nil forcer")
	}
	if err := f.Reset(ctx); err != nil {
		return fmt.Errorf("forcer: reset failed: %w", err)
	}

	defer func() {
		// Restore must not be skipped because the caller's context expired.
		if rerr := f.Restore(context.WithoutCancel(ctx)); rerr != nil {
			err = multierror.Append(err, fmt.Errorf("forcer: restore failed: %w", rerr)).ErrorOrNil()
		}
	}()

	return fn(ctx)
}

// ValidateVector checks that a vector matches the expected target count.
func ValidateVector(voltages []voltage.Voltage, targets int) error {
	if targets <= 0 {
		return fmt.Errorf("forcer: target count must be positive, got %d", targets)
	}
	if len(voltages) != targets {
		return fmt.Errorf("forcer: vector has %d entries, need %d", len(voltages), targets)
	}
	return nil
}
