package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"tripdispatch/internal/model"
	"tripdispatch/internal/store"
)

// replaceAssignments swaps the trip's assignment set for one row per driver.
// Name, phone and plate are copied from the driver as of now.
func replaceAssignments(ctx context.Context, tx store.Tx, trip model.Trip, drivers []model.Driver, status model.TripStatus, at time.Time) ([]model.Assignment, error) {
	if err := tx.DeleteAssignments(ctx, trip.TenantID, trip.ID); err != nil {
		return nil, err
	}
	rows := make([]model.Assignment, 0, len(drivers))
	for _, d := range drivers {
		rows = append(rows, model.Assignment{
			ID:           uuid.NewString(),
			TenantID:     trip.TenantID,
			TripID:       trip.ID,
			DriverID:     d.ID,
			DriverName:   d.Name,
			DriverPhone:  d.Phone,
			LicensePlate: d.LicensePlate,
			Status:       status,
			AssignedAt:   at,
			UpdatedAt:    at,
		})
	}
	if err := tx.InsertAssignments(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func assignedDriverIDs(rows []model.Assignment) []string {
	ids := make([]string, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.DriverID)
	}
	return ids
}

func holdsAssignment(rows []model.Assignment, driverID string) bool {
	for _, a := range rows {
		if a.DriverID == driverID {
			return true
		}
	}
	return false
}

// normalizeIDs trims and de-duplicates ids, keeping first-seen order.
func normalizeIDs(ids []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// minus returns the elements of a not in b.
func minus(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, x := range b {
		in[x] = true
	}
	out := []string{}
	for _, x := range a {
		if !in[x] {
			out = append(out, x)
		}
	}
	return out
}

func union(a, b []string) []string {
	return append(append([]string{}, a...), minus(b, a)...)
}

// lockRoster locks every driver in ids and resolves want against the locked rows.
// A wanted id that does not resolve in the tenant is a validation error.
func lockRoster(ctx context.Context, tx store.Tx, tenantID string, lock, want []string) ([]model.Driver, error) {
	locked, err := tx.LockDrivers(ctx, tenantID, lock)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Driver, len(locked))
	for _, d := range locked {
		byID[d.ID] = d
	}
	out := make([]model.Driver, 0, len(want))
	for _, id := range want {
		d, ok := byID[id]
		if !ok {
			return nil, invalid("driver %s not found", id)
		}
		out = append(out, d)
	}
	return out, nil
}
