package store

import (
	"context"
	"errors"
	"time"

	"tripdispatch/internal/model"
)

// Store is the persistence interface used by the dispatch service.
// Reads outside a transaction see committed state only.
type Store interface {
	// RunInTx runs fn inside one transaction. A non-nil error from fn rolls
	// everything back. Storage contention is retried once before ErrTransient.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Trips
	GetTrip(ctx context.Context, tenantID, tripID string) (model.Trip, error)
	ListTrips(ctx context.Context, q TripQuery) (items []model.Trip, nextCursor string, err error)

	// Assignments
	ListAssignments(ctx context.Context, tenantID, tripID string) ([]model.Assignment, error)

	// Drivers
	GetDriver(ctx context.Context, tenantID, driverID string) (model.Driver, error)
	ListDrivers(ctx context.Context, tenantID string, status model.DriverStatus, cursor string, limit int) ([]model.Driver, string, error)

	// Photos
	ListPhotos(ctx context.Context, tenantID, tripID string) ([]model.Photo, error)

	Ping(ctx context.Context) error
}

// TripQuery filters ListTrips. DriverID restricts to trips the driver is assigned to.
type TripQuery struct {
	TenantID string
	Status   model.TripStatus
	DriverID string
	Cursor   string
	Limit    int
}

// Tx exposes the row-level operations available inside RunInTx.
// Lock* methods take row locks held until commit.
type Tx interface {
	// Trips
	InsertTrip(ctx context.Context, t model.Trip) error
	LockTrip(ctx context.Context, tenantID, tripID string) (model.Trip, error)
	UpdateTrip(ctx context.Context, t model.Trip) error
	SetTripStatus(ctx context.Context, tenantID, tripID string, status model.TripStatus, at time.Time) error
	SoftDeleteTrip(ctx context.Context, tenantID, tripID string, at time.Time) error
	TripCodeTaken(ctx context.Context, tenantID, code, exceptID string) (bool, error)
	// AddPhotoCount adjusts photo_count by delta, floored at zero, and
	// recomputes has_photos. SetPhotoCount overwrites both.
	AddPhotoCount(ctx context.Context, tenantID, tripID string, delta int) (int, error)
	SetPhotoCount(ctx context.Context, tenantID, tripID string, n int) error

	// Assignments
	TripAssignments(ctx context.Context, tenantID, tripID string) ([]model.Assignment, error)
	DeleteAssignments(ctx context.Context, tenantID, tripID string) error
	InsertAssignments(ctx context.Context, rows []model.Assignment) error
	// SetAssignmentStatus only touches rows whose status differs and reports how many changed.
	SetAssignmentStatus(ctx context.Context, tenantID, tripID string, status model.TripStatus, at time.Time) (int, error)
	IsDriverAssigned(ctx context.Context, tenantID, tripID, driverID string) (bool, error)
	// OpenAssignmentCount counts the driver's assignments in assigned or in_progress.
	OpenAssignmentCount(ctx context.Context, tenantID, driverID string) (int, error)

	// Drivers
	InsertDriver(ctx context.Context, d model.Driver) error
	// LockDrivers returns the live drivers among ids, locked in id order.
	LockDrivers(ctx context.Context, tenantID string, ids []string) ([]model.Driver, error)
	UpdateDriver(ctx context.Context, d model.Driver) error
	SetDriverStatus(ctx context.Context, tenantID string, ids []string, status model.DriverStatus, at time.Time) error
	SetDriverLocation(ctx context.Context, tenantID, driverID string, lat, lng float64, at time.Time) error
	SoftDeleteDriver(ctx context.Context, tenantID, driverID string, at time.Time) error
	DriverFieldTaken(ctx context.Context, tenantID, field, value, exceptID string) (bool, error)

	// Photos
	// InsertPhotos skips rows whose LocalIdentifier already exists for the
	// trip and returns the rows actually inserted.
	InsertPhotos(ctx context.Context, photos []model.Photo) ([]model.Photo, error)
	GetPhoto(ctx context.Context, tenantID, tripID, photoID string) (model.Photo, error)
	DeletePhoto(ctx context.Context, tenantID, photoID string) error
	CountPhotos(ctx context.Context, tenantID, tripID string) (int, error)
}

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflicting row")
	ErrTransient = errors.New("transient storage failure")
)
