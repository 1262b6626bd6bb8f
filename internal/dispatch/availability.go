package dispatch

import (
	"context"
	"time"

	"tripdispatch/internal/metrics"
	"tripdispatch/internal/model"
	"tripdispatch/internal/store"
)

// Driver availability bookkeeping. Every function runs inside the caller's
// transaction and expects the affected driver rows to be locked already.

// canGoAvailable reports whether the driver holds no open assignment.
func canGoAvailable(ctx context.Context, tx store.Tx, tenantID, driverID string) (bool, error) {
	n, err := tx.OpenAssignmentCount(ctx, tenantID, driverID)
	return n == 0, err
}

// occupy marks the given drivers busy and returns the ones that flipped.
func occupy(ctx context.Context, tx store.Tx, tenantID string, ids []string, at time.Time) ([]string, error) {
	drivers, err := tx.LockDrivers(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	flip := []string{}
	for _, d := range drivers {
		if d.Status != model.DriverBusy {
			flip = append(flip, d.ID)
		}
	}
	if len(flip) == 0 {
		return flip, nil
	}
	if err := tx.SetDriverStatus(ctx, tenantID, flip, model.DriverBusy, at); err != nil {
		return nil, err
	}
	metrics.DriverStatusChanges.WithLabelValues(string(model.DriverBusy)).Add(float64(len(flip)))
	return flip, nil
}

// release frees the given drivers unless they still hold an open assignment
// on some trip, and returns the ones that flipped.
func release(ctx context.Context, tx store.Tx, tenantID string, ids []string, at time.Time) ([]string, error) {
	drivers, err := tx.LockDrivers(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	flip := []string{}
	for _, d := range drivers {
		if d.Status == model.DriverAvailable {
			continue
		}
		ok, err := canGoAvailable(ctx, tx, tenantID, d.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			flip = append(flip, d.ID)
		}
	}
	if len(flip) == 0 {
		return flip, nil
	}
	if err := tx.SetDriverStatus(ctx, tenantID, flip, model.DriverAvailable, at); err != nil {
		return nil, err
	}
	metrics.DriverStatusChanges.WithLabelValues(string(model.DriverAvailable)).Add(float64(len(flip)))
	return flip, nil
}
