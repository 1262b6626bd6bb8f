package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"tripdispatch/internal/model"
)

func seedTrip(t *testing.T, m *Memory, tenant, id string) {
	t.Helper()
	now := time.Now().UTC()
	err := m.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertTrip(ctx, model.Trip{ID: id, TenantID: tenant, Code: "T-" + id, PickupLocation: "a", DeliveryLocation: "b", Status: model.TripPending, CreatedAt: now, UpdatedAt: now})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestMemoryRollbackRestoresState(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedTrip(t, m, "t1", "trip-1")
	boom := errors.New("boom")
	err := m.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.SetTripStatus(ctx, "t1", "trip-1", model.TripAssigned, time.Now()); err != nil {
			return err
		}
		if err := tx.InsertDriver(ctx, model.Driver{ID: "d1", TenantID: "t1", Status: model.DriverBusy}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	tr, err := m.GetTrip(ctx, "t1", "trip-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tr.Status != model.TripPending {
		t.Fatalf("status not rolled back: %s", tr.Status)
	}
	if _, err := m.GetDriver(ctx, "t1", "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("driver insert not rolled back: %v", err)
	}
}

func TestMemoryTenantIsolation(t *testing.T) {
	m := NewMemory()
	seedTrip(t, m, "t1", "trip-1")
	if _, err := m.GetTrip(context.Background(), "t2", "trip-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant read must be not found, got %v", err)
	}
	items, _, err := m.ListTrips(context.Background(), TripQuery{TenantID: "t2"})
	if err != nil || len(items) != 0 {
		t.Fatalf("cross-tenant list leaked: %v %d", err, len(items))
	}
}

func TestMemoryInsertPhotosSkipsKnownLocalIdentifier(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedTrip(t, m, "t1", "trip-1")
	mk := func(id, local string) model.Photo {
		return model.Photo{ID: id, TenantID: "t1", TripID: "trip-1", FileName: id + ".jpg", FileType: "image/jpeg", LocalIdentifier: local, UploadedByDriver: "d1", CreatedAt: time.Now()}
	}
	var first, second []model.Photo
	err := m.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		first, err = tx.InsertPhotos(ctx, []model.Photo{mk("p1", "L1"), mk("p2", "")})
		if err != nil {
			return err
		}
		second, err = tx.InsertPhotos(ctx, []model.Photo{mk("p3", "L1"), mk("p4", "L2")})
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if len(first) != 2 || len(second) != 1 || second[0].ID != "p4" {
		t.Fatalf("unexpected inserts: %d %d", len(first), len(second))
	}
	photos, _ := m.ListPhotos(ctx, "t1", "trip-1")
	if len(photos) != 3 {
		t.Fatalf("want 3 photos, got %d", len(photos))
	}
}

func TestMemoryPhotoCountFloorsAtZero(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedTrip(t, m, "t1", "trip-1")
	var n int
	err := m.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if _, err = tx.AddPhotoCount(ctx, "t1", "trip-1", 2); err != nil {
			return err
		}
		n, err = tx.AddPhotoCount(ctx, "t1", "trip-1", -5)
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	tr, _ := m.GetTrip(ctx, "t1", "trip-1")
	if n != 0 || tr.PhotoCount != 0 || tr.HasPhotos {
		t.Fatalf("want zero count and no photos, got %d %+v", n, tr)
	}
}

func TestMemoryOpenAssignmentCount(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now()
	err := m.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertAssignments(ctx, []model.Assignment{
			{ID: "a1", TenantID: "t1", TripID: "x", DriverID: "d1", Status: model.TripAssigned, AssignedAt: now},
			{ID: "a2", TenantID: "t1", TripID: "y", DriverID: "d1", Status: model.TripInProgress, AssignedAt: now},
			{ID: "a3", TenantID: "t1", TripID: "z", DriverID: "d1", Status: model.TripCompleted, AssignedAt: now},
			{ID: "a4", TenantID: "t2", TripID: "w", DriverID: "d1", Status: model.TripAssigned, AssignedAt: now},
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_ = m.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		n, _ := tx.OpenAssignmentCount(ctx, "t1", "d1")
		if n != 2 {
			t.Fatalf("want 2 open assignments, got %d", n)
		}
		return nil
	})
}

func TestMemoryListDriversPaginates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, id := range []string{"d1", "d2", "d3"} {
			_ = tx.InsertDriver(ctx, model.Driver{ID: id, TenantID: "t1", Status: model.DriverAvailable})
		}
		return nil
	})
	page, next, _ := m.ListDrivers(ctx, "t1", "", "", 2)
	if len(page) != 2 || next != "d2" {
		t.Fatalf("first page: %d next=%q", len(page), next)
	}
	page, next, _ = m.ListDrivers(ctx, "t1", "", next, 2)
	if len(page) != 1 || page[0].ID != "d3" || next != "" {
		t.Fatalf("second page: %+v next=%q", page, next)
	}
}
