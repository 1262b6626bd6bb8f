//go:build postgres_integration

package store

import (
    "context"
    "os"
    "testing"
    "time"

    "github.com/google/uuid"

    "tripdispatch/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    ctx := context.Background()
    p, err := NewPostgres(dsn)
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    defer p.Close()
    if err := p.Ping(ctx); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.Migrate(ctx); err != nil { t.Fatalf("Migrate: %v", err) }

    tenant := "t_it_" + uuid.NewString()[:8]
    tripID := uuid.NewString()
    now := time.Now().UTC()
    err = p.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
        return tx.InsertTrip(ctx, model.Trip{ID: tripID, TenantID: tenant, Code: "IT-1", PickupLocation: "a", DeliveryLocation: "b", Status: model.TripPending, CreatedAt: now, UpdatedAt: now})
    })
    if err != nil { t.Fatalf("InsertTrip: %v", err) }
    err = p.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
        photo := model.Photo{ID: uuid.NewString(), TenantID: tenant, TripID: tripID, FileName: "a.jpg", FileType: "image/jpeg", LocalIdentifier: "L1", UploadedByUser: "u1", CreatedAt: now}
        got, err := tx.InsertPhotos(ctx, []model.Photo{photo})
        if err != nil { return err }
        again := photo
        again.ID = uuid.NewString()
        dup, err := tx.InsertPhotos(ctx, []model.Photo{again})
        if err != nil { return err }
        if len(got) != 1 || len(dup) != 0 { t.Fatalf("dedupe failed: %d %d", len(got), len(dup)) }
        _, err = tx.AddPhotoCount(ctx, tenant, tripID, len(got))
        return err
    })
    if err != nil { t.Fatalf("photos: %v", err) }
    tr, err := p.GetTrip(ctx, tenant, tripID)
    if err != nil { t.Fatalf("GetTrip: %v", err) }
    if tr.PhotoCount != 1 || !tr.HasPhotos { t.Fatalf("photo count not stored: %+v", tr) }
    if _, err := p.GetTrip(ctx, "other", tripID); err != ErrNotFound { t.Fatalf("cross-tenant read: %v", err) }
    if _, err := p.GetTrip(ctx, tenant, "not-a-uuid"); err != ErrNotFound { t.Fatalf("bad id: %v", err) }

    // an exactly full page has no next cursor
    err = p.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
        for _, code := range []string{"D1", "D2"} {
            d := model.Driver{ID: uuid.NewString(), TenantID: tenant, Code: code, Name: code, Phone: code, LicensePlate: code, VehicleType: "van", Status: model.DriverAvailable, CreatedAt: now, UpdatedAt: now}
            if err := tx.InsertDriver(ctx, d); err != nil { return err }
        }
        return nil
    })
    if err != nil { t.Fatalf("InsertDriver: %v", err) }
    drivers, next, err := p.ListDrivers(ctx, tenant, "", "", 2)
    if err != nil || len(drivers) != 2 || next != "" { t.Fatalf("full page: %d %q %v", len(drivers), next, err) }
    drivers, next, err = p.ListDrivers(ctx, tenant, "", "", 1)
    if err != nil || len(drivers) != 1 || next != drivers[0].ID { t.Fatalf("partial page: %d %q %v", len(drivers), next, err) }
    trips, next, err := p.ListTrips(ctx, TripQuery{TenantID: tenant, Limit: 1})
    if err != nil || len(trips) != 1 || next != "" { t.Fatalf("single trip page: %d %q %v", len(trips), next, err) }
}
