package store

import (
    "context"
    "database/sql"
    "embed"
    "errors"
    "fmt"
    "io/fs"
    "sort"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/jackc/pgx/v5/pgconn"
    _ "github.com/jackc/pgx/v5/stdlib"

    "tripdispatch/internal/metrics"
    "tripdispatch/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded schema files in name order. Files are idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
    names, err := fs.Glob(migrationsFS, "migrations/*.sql")
    if err != nil { return err }
    sort.Strings(names)
    for _, n := range names {
        b, err := migrationsFS.ReadFile(n)
        if err != nil { return err }
        if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", n, err)
        }
    }
    return nil
}

// RunInTx runs fn in a READ COMMITTED transaction. Serialization failures,
// deadlocks and lock timeouts are retried once, then reported as ErrTransient.
func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
    return retryOnce(func() error { return p.runOnce(ctx, fn) })
}

// retryOnce calls attempt a second time when the first fails with a retryable
// error. A second retryable failure is wrapped in ErrTransient.
func retryOnce(attempt func() error) error {
    err := attempt()
    if !isRetryable(err) { return err }
    metrics.TxRetries.Inc()
    err = attempt()
    if isRetryable(err) {
        return fmt.Errorf("%w: %v", ErrTransient, err)
    }
    return err
}

// translate maps unique violations onto ErrConflict and leaves everything else as is.
func translate(err error) error {
    var pgErr *pgconn.PgError
    if errors.As(err, &pgErr) && pgErr.Code == "23505" {
        return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
    }
    return err
}

func (p *Postgres) runOnce(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
    tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()
    if err := fn(ctx, &pgTx{tx: tx}); err != nil { return translate(err) }
    return translate(tx.Commit())
}

func isRetryable(err error) bool {
    var pgErr *pgconn.PgError
    if !errors.As(err, &pgErr) { return false }
    switch pgErr.Code {
    case "40001", "40P01", "55P03":
        return true
    }
    return false
}

const tripCols = `id::text, tenant_id, code, customer, shipper, customs_broker, company_amount, driver_amount,
    COALESCE(pickup_date::text,''), pickup_time, pickup_location, delivery_location, quantity, quantity_unit,
    volume, volume_unit, weight, vehicle_type, remarks, status, has_photos, photo_count, created_by,
    created_at, updated_at, deleted_at`

const driverCols = `id::text, tenant_id, code, name, phone, license_plate, vehicle_type, status, lat, lng,
    location_at, created_at, updated_at, deleted_at`

const assignCols = `id::text, tenant_id, trip_id::text, driver_id::text, driver_name, driver_phone, license_plate,
    status, assigned_at, updated_at`

const photoCols = `id::text, tenant_id, trip_id::text, file_name, file_size, file_type, COALESCE(local_identifier,''),
    COALESCE(uploaded_by,''), COALESCE(uploaded_by_driver::text,''), created_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanTrip(r rowScanner) (model.Trip, error) {
    var t model.Trip
    var companyAmt, driverAmt, qty, vol, wt sql.NullFloat64
    var deleted sql.NullTime
    err := r.Scan(&t.ID, &t.TenantID, &t.Code, &t.Customer, &t.Shipper, &t.CustomsBroker, &companyAmt, &driverAmt,
        &t.PickupDate, &t.PickupTime, &t.PickupLocation, &t.DeliveryLocation, &qty, &t.QuantityUnit,
        &vol, &t.VolumeUnit, &wt, &t.VehicleType, &t.Remarks, &t.Status, &t.HasPhotos, &t.PhotoCount, &t.CreatedBy,
        &t.CreatedAt, &t.UpdatedAt, &deleted)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return t, ErrNotFound }
        return t, err
    }
    t.CompanyAmount = floatPtr(companyAmt)
    t.DriverAmount = floatPtr(driverAmt)
    t.Quantity = floatPtr(qty)
    t.Volume = floatPtr(vol)
    t.Weight = floatPtr(wt)
    if deleted.Valid { d := deleted.Time; t.DeletedAt = &d }
    return t, nil
}

func scanDriver(r rowScanner) (model.Driver, error) {
    var d model.Driver
    var locAt, deleted sql.NullTime
    err := r.Scan(&d.ID, &d.TenantID, &d.Code, &d.Name, &d.Phone, &d.LicensePlate, &d.VehicleType, &d.Status,
        &d.Lat, &d.Lng, &locAt, &d.CreatedAt, &d.UpdatedAt, &deleted)
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) { return d, ErrNotFound }
        return d, err
    }
    if locAt.Valid { v := locAt.Time; d.LocationAt = &v }
    if deleted.Valid { v := deleted.Time; d.DeletedAt = &v }
    return d, nil
}

func scanAssignment(r rowScanner) (model.Assignment, error) {
    var a model.Assignment
    err := r.Scan(&a.ID, &a.TenantID, &a.TripID, &a.DriverID, &a.DriverName, &a.DriverPhone, &a.LicensePlate,
        &a.Status, &a.AssignedAt, &a.UpdatedAt)
    return a, err
}

func scanPhoto(r rowScanner) (model.Photo, error) {
    var ph model.Photo
    err := r.Scan(&ph.ID, &ph.TenantID, &ph.TripID, &ph.FileName, &ph.FileSize, &ph.FileType, &ph.LocalIdentifier,
        &ph.UploadedByUser, &ph.UploadedByDriver, &ph.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) { return ph, ErrNotFound }
    return ph, err
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
    ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (p *Postgres) GetTrip(ctx context.Context, tenantID, tripID string) (model.Trip, error) {
    if !validID(tripID) { return model.Trip{}, ErrNotFound }
    return scanTrip(p.db.QueryRowContext(ctx, `SELECT `+tripCols+` FROM trips WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`, tenantID, tripID))
}

func (p *Postgres) ListTrips(ctx context.Context, q TripQuery) ([]model.Trip, string, error) {
    limit := clampLimit(q.Limit)
    where := []string{"tenant_id=$1", "deleted_at IS NULL"}
    args := []any{q.TenantID}
    if q.Status != "" {
        args = append(args, q.Status)
        where = append(where, fmt.Sprintf("status=$%d", len(args)))
    }
    if q.DriverID != "" {
        if !validID(q.DriverID) { return []model.Trip{}, "", nil }
        args = append(args, q.DriverID)
        where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM trip_drivers a WHERE a.trip_id=trips.id AND a.driver_id=$%d)", len(args)))
    }
    if q.Cursor != "" {
        args = append(args, q.Cursor)
        where = append(where, fmt.Sprintf("id::text > $%d", len(args)))
    }
    args = append(args, limit+1)
    query := fmt.Sprintf(`SELECT %s FROM trips WHERE %s ORDER BY id LIMIT $%d`, tripCols, strings.Join(where, " AND "), len(args))
    rows, err := p.db.QueryContext(ctx, query, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Trip{}
    for rows.Next() {
        t, err := scanTrip(rows)
        if err != nil { return nil, "", err }
        out = append(out, t)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    out, next := trimPage(out, limit, func(t model.Trip) string { return t.ID })
    return out, next, nil
}

// trimPage cuts a result fetched with limit+1 rows down to limit. The cursor is
// set only when the extra row proved another page exists.
func trimPage[T any](rows []T, limit int, id func(T) string) ([]T, string) {
    if len(rows) <= limit { return rows, "" }
    rows = rows[:limit]
    return rows, id(rows[limit-1])
}

func (p *Postgres) ListAssignments(ctx context.Context, tenantID, tripID string) ([]model.Assignment, error) {
    return tripAssignments(ctx, p.db, tenantID, tripID, false)
}

func tripAssignments(ctx context.Context, q queryer, tenantID, tripID string, lock bool) ([]model.Assignment, error) {
    if !validID(tripID) { return []model.Assignment{}, nil }
    query := `SELECT ` + assignCols + ` FROM trip_drivers WHERE tenant_id=$1 AND trip_id=$2 ORDER BY driver_id`
    if lock { query += ` FOR UPDATE` }
    rows, err := q.QueryContext(ctx, query, tenantID, tripID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Assignment{}
    for rows.Next() {
        a, err := scanAssignment(rows)
        if err != nil { return nil, err }
        out = append(out, a)
    }
    return out, rows.Err()
}

func (p *Postgres) GetDriver(ctx context.Context, tenantID, driverID string) (model.Driver, error) {
    if !validID(driverID) { return model.Driver{}, ErrNotFound }
    return scanDriver(p.db.QueryRowContext(ctx, `SELECT `+driverCols+` FROM drivers WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`, tenantID, driverID))
}

func (p *Postgres) ListDrivers(ctx context.Context, tenantID string, status model.DriverStatus, cursor string, limit int) ([]model.Driver, string, error) {
    limit = clampLimit(limit)
    where := []string{"tenant_id=$1", "deleted_at IS NULL"}
    args := []any{tenantID}
    if status != "" {
        args = append(args, status)
        where = append(where, fmt.Sprintf("status=$%d", len(args)))
    }
    if cursor != "" {
        args = append(args, cursor)
        where = append(where, fmt.Sprintf("id::text > $%d", len(args)))
    }
    args = append(args, limit+1)
    rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM drivers WHERE %s ORDER BY id LIMIT $%d`, driverCols, strings.Join(where, " AND "), len(args)), args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Driver{}
    for rows.Next() {
        d, err := scanDriver(rows)
        if err != nil { return nil, "", err }
        out = append(out, d)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    out, next := trimPage(out, limit, func(d model.Driver) string { return d.ID })
    return out, next, nil
}

func (p *Postgres) ListPhotos(ctx context.Context, tenantID, tripID string) ([]model.Photo, error) {
    if !validID(tripID) { return []model.Photo{}, nil }
    rows, err := p.db.QueryContext(ctx, `SELECT `+photoCols+` FROM trip_photos WHERE tenant_id=$1 AND trip_id=$2 ORDER BY created_at DESC, id DESC`, tenantID, tripID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Photo{}
    for rows.Next() {
        ph, err := scanPhoto(rows)
        if err != nil { return nil, err }
        out = append(out, ph)
    }
    return out, rows.Err()
}

// pgTx implements Tx over a single *sql.Tx.
type pgTx struct {
    tx *sql.Tx
}

func (t *pgTx) InsertTrip(ctx context.Context, tr model.Trip) error {
    _, err := t.tx.ExecContext(ctx, `INSERT INTO trips (id, tenant_id, code, customer, shipper, customs_broker, company_amount, driver_amount,
        pickup_date, pickup_time, pickup_location, delivery_location, quantity, quantity_unit, volume, volume_unit, weight,
        vehicle_type, remarks, status, has_photos, photo_count, created_by, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
        tr.ID, tr.TenantID, tr.Code, tr.Customer, tr.Shipper, tr.CustomsBroker, tr.CompanyAmount, tr.DriverAmount,
        nullIfEmpty(tr.PickupDate), tr.PickupTime, tr.PickupLocation, tr.DeliveryLocation, tr.Quantity, tr.QuantityUnit,
        tr.Volume, tr.VolumeUnit, tr.Weight, tr.VehicleType, tr.Remarks, tr.Status, tr.HasPhotos, tr.PhotoCount,
        tr.CreatedBy, tr.CreatedAt, tr.UpdatedAt)
    return err
}

func (t *pgTx) LockTrip(ctx context.Context, tenantID, tripID string) (model.Trip, error) {
    if !validID(tripID) { return model.Trip{}, ErrNotFound }
    return scanTrip(t.tx.QueryRowContext(ctx, `SELECT `+tripCols+` FROM trips WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL FOR UPDATE`, tenantID, tripID))
}

func (t *pgTx) UpdateTrip(ctx context.Context, tr model.Trip) error {
    res, err := t.tx.ExecContext(ctx, `UPDATE trips SET code=$3, customer=$4, shipper=$5, customs_broker=$6, company_amount=$7,
        driver_amount=$8, pickup_date=$9, pickup_time=$10, pickup_location=$11, delivery_location=$12, quantity=$13,
        quantity_unit=$14, volume=$15, volume_unit=$16, weight=$17, vehicle_type=$18, remarks=$19, updated_at=$20
        WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`,
        tr.TenantID, tr.ID, tr.Code, tr.Customer, tr.Shipper, tr.CustomsBroker, tr.CompanyAmount, tr.DriverAmount,
        nullIfEmpty(tr.PickupDate), tr.PickupTime, tr.PickupLocation, tr.DeliveryLocation, tr.Quantity, tr.QuantityUnit,
        tr.Volume, tr.VolumeUnit, tr.Weight, tr.VehicleType, tr.Remarks, tr.UpdatedAt)
    return expectRow(res, err)
}

func (t *pgTx) SetTripStatus(ctx context.Context, tenantID, tripID string, status model.TripStatus, at time.Time) error {
    res, err := t.tx.ExecContext(ctx, `UPDATE trips SET status=$3, updated_at=$4 WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`, tenantID, tripID, status, at)
    return expectRow(res, err)
}

func (t *pgTx) SoftDeleteTrip(ctx context.Context, tenantID, tripID string, at time.Time) error {
    res, err := t.tx.ExecContext(ctx, `UPDATE trips SET deleted_at=$3 WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`, tenantID, tripID, at)
    return expectRow(res, err)
}

func (t *pgTx) TripCodeTaken(ctx context.Context, tenantID, code, exceptID string) (bool, error) {
    var n int
    err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips WHERE tenant_id=$1 AND code=$2 AND id::text <> $3 AND deleted_at IS NULL`, tenantID, code, exceptID).Scan(&n)
    return n > 0, err
}

func (t *pgTx) AddPhotoCount(ctx context.Context, tenantID, tripID string, delta int) (int, error) {
    var n int
    err := t.tx.QueryRowContext(ctx, `UPDATE trips SET photo_count=GREATEST(photo_count+$3, 0), has_photos=(photo_count+$3) > 0
        WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL RETURNING photo_count`, tenantID, tripID, delta).Scan(&n)
    if errors.Is(err, sql.ErrNoRows) { return 0, ErrNotFound }
    return n, err
}

func (t *pgTx) SetPhotoCount(ctx context.Context, tenantID, tripID string, n int) error {
    if n < 0 { n = 0 }
    res, err := t.tx.ExecContext(ctx, `UPDATE trips SET photo_count=$3, has_photos=$4 WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`, tenantID, tripID, n, n > 0)
    return expectRow(res, err)
}

func (t *pgTx) TripAssignments(ctx context.Context, tenantID, tripID string) ([]model.Assignment, error) {
    return tripAssignments(ctx, t.tx, tenantID, tripID, true)
}

func (t *pgTx) DeleteAssignments(ctx context.Context, tenantID, tripID string) error {
    _, err := t.tx.ExecContext(ctx, `DELETE FROM trip_drivers WHERE tenant_id=$1 AND trip_id=$2`, tenantID, tripID)
    return err
}

func (t *pgTx) InsertAssignments(ctx context.Context, rows []model.Assignment) error {
    for _, a := range rows {
        _, err := t.tx.ExecContext(ctx, `INSERT INTO trip_drivers (id, tenant_id, trip_id, driver_id, driver_name, driver_phone, license_plate, status, assigned_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
            a.ID, a.TenantID, a.TripID, a.DriverID, a.DriverName, a.DriverPhone, a.LicensePlate, a.Status, a.AssignedAt, a.UpdatedAt)
        if err != nil { return err }
    }
    return nil
}

func (t *pgTx) SetAssignmentStatus(ctx context.Context, tenantID, tripID string, status model.TripStatus, at time.Time) (int, error) {
    res, err := t.tx.ExecContext(ctx, `UPDATE trip_drivers SET status=$3, updated_at=$4 WHERE tenant_id=$1 AND trip_id=$2 AND status <> $3`, tenantID, tripID, status, at)
    if err != nil { return 0, err }
    n, err := res.RowsAffected()
    return int(n), err
}

func (t *pgTx) IsDriverAssigned(ctx context.Context, tenantID, tripID, driverID string) (bool, error) {
    if !validID(tripID) || !validID(driverID) { return false, nil }
    var ok bool
    err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM trip_drivers WHERE tenant_id=$1 AND trip_id=$2 AND driver_id=$3)`, tenantID, tripID, driverID).Scan(&ok)
    return ok, err
}

func (t *pgTx) OpenAssignmentCount(ctx context.Context, tenantID, driverID string) (int, error) {
    if !validID(driverID) { return 0, nil }
    var n int
    err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM trip_drivers WHERE tenant_id=$1 AND driver_id=$2 AND status IN ('assigned','in_progress')`, tenantID, driverID).Scan(&n)
    return n, err
}

func (t *pgTx) InsertDriver(ctx context.Context, d model.Driver) error {
    _, err := t.tx.ExecContext(ctx, `INSERT INTO drivers (id, tenant_id, code, name, phone, license_plate, vehicle_type, status, lat, lng, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
        d.ID, d.TenantID, d.Code, d.Name, d.Phone, d.LicensePlate, d.VehicleType, d.Status, d.Lat, d.Lng, d.CreatedAt, d.UpdatedAt)
    return err
}

func (t *pgTx) LockDrivers(ctx context.Context, tenantID string, ids []string) ([]model.Driver, error) {
    valid := make([]string, 0, len(ids))
    for _, id := range ids { if validID(id) { valid = append(valid, id) } }
    if len(valid) == 0 { return []model.Driver{}, nil }
    rows, err := t.tx.QueryContext(ctx, `SELECT `+driverCols+` FROM drivers WHERE tenant_id=$1 AND id = ANY($2::uuid[]) AND deleted_at IS NULL ORDER BY id FOR UPDATE`, tenantID, valid)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Driver{}
    for rows.Next() {
        d, err := scanDriver(rows)
        if err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (t *pgTx) UpdateDriver(ctx context.Context, d model.Driver) error {
    res, err := t.tx.ExecContext(ctx, `UPDATE drivers SET name=$3, phone=$4, license_plate=$5, vehicle_type=$6, updated_at=$7
        WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`, d.TenantID, d.ID, d.Name, d.Phone, d.LicensePlate, d.VehicleType, d.UpdatedAt)
    return expectRow(res, err)
}

func (t *pgTx) SetDriverStatus(ctx context.Context, tenantID string, ids []string, status model.DriverStatus, at time.Time) error {
    valid := make([]string, 0, len(ids))
    for _, id := range ids { if validID(id) { valid = append(valid, id) } }
    if len(valid) == 0 { return nil }
    _, err := t.tx.ExecContext(ctx, `UPDATE drivers SET status=$3, updated_at=$4 WHERE tenant_id=$1 AND id = ANY($2::uuid[]) AND status <> $3`, tenantID, valid, status, at)
    return err
}

func (t *pgTx) SetDriverLocation(ctx context.Context, tenantID, driverID string, lat, lng float64, at time.Time) error {
    if !validID(driverID) { return ErrNotFound }
    res, err := t.tx.ExecContext(ctx, `UPDATE drivers SET lat=$3, lng=$4, location_at=$5, updated_at=$5 WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`, tenantID, driverID, lat, lng, at)
    return expectRow(res, err)
}

func (t *pgTx) SoftDeleteDriver(ctx context.Context, tenantID, driverID string, at time.Time) error {
    if !validID(driverID) { return ErrNotFound }
    res, err := t.tx.ExecContext(ctx, `UPDATE drivers SET deleted_at=$3 WHERE tenant_id=$1 AND id=$2 AND deleted_at IS NULL`, tenantID, driverID, at)
    return expectRow(res, err)
}

var driverUniqueCols = map[string]string{"code": "code", "phone": "phone", "license_plate": "license_plate"}

func (t *pgTx) DriverFieldTaken(ctx context.Context, tenantID, field, value, exceptID string) (bool, error) {
    col, ok := driverUniqueCols[field]
    if !ok { return false, fmt.Errorf("unknown driver field %q", field) }
    var n int
    err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM drivers WHERE tenant_id=$1 AND `+col+`=$2 AND id::text <> $3 AND deleted_at IS NULL`, tenantID, value, exceptID).Scan(&n)
    return n > 0, err
}

func (t *pgTx) InsertPhotos(ctx context.Context, photos []model.Photo) ([]model.Photo, error) {
    out := []model.Photo{}
    for _, ph := range photos {
        var id string
        err := t.tx.QueryRowContext(ctx, `INSERT INTO trip_photos (id, tenant_id, trip_id, file_name, file_size, file_type, local_identifier, uploaded_by, uploaded_by_driver, created_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
            ON CONFLICT (tenant_id, trip_id, local_identifier) WHERE local_identifier IS NOT NULL DO NOTHING
            RETURNING id::text`,
            ph.ID, ph.TenantID, ph.TripID, ph.FileName, ph.FileSize, ph.FileType, nullIfEmpty(ph.LocalIdentifier),
            nullIfEmpty(ph.UploadedByUser), nullIfEmpty(ph.UploadedByDriver), ph.CreatedAt).Scan(&id)
        if errors.Is(err, sql.ErrNoRows) { continue }
        if err != nil { return nil, err }
        out = append(out, ph)
    }
    return out, nil
}

func (t *pgTx) GetPhoto(ctx context.Context, tenantID, tripID, photoID string) (model.Photo, error) {
    if !validID(tripID) || !validID(photoID) { return model.Photo{}, ErrNotFound }
    return scanPhoto(t.tx.QueryRowContext(ctx, `SELECT `+photoCols+` FROM trip_photos WHERE tenant_id=$1 AND trip_id=$2 AND id=$3 FOR UPDATE`, tenantID, tripID, photoID))
}

func (t *pgTx) DeletePhoto(ctx context.Context, tenantID, photoID string) error {
    if !validID(photoID) { return ErrNotFound }
    res, err := t.tx.ExecContext(ctx, `DELETE FROM trip_photos WHERE tenant_id=$1 AND id=$2`, tenantID, photoID)
    return expectRow(res, err)
}

func (t *pgTx) CountPhotos(ctx context.Context, tenantID, tripID string) (int, error) {
    var n int
    err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM trip_photos WHERE tenant_id=$1 AND trip_id=$2`, tenantID, tripID).Scan(&n)
    return n, err
}

// Helpers
func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func floatPtr(v sql.NullFloat64) *float64 { if !v.Valid { return nil }; f := v.Float64; return &f }

// validID guards uuid columns so malformed ids read as absent rather than as SQL errors.
func validID(id string) bool { _, err := uuid.Parse(id); return err == nil }

func expectRow(res sql.Result, err error) error {
    if err != nil { return err }
    n, err := res.RowsAffected()
    if err != nil { return err }
    if n == 0 { return ErrNotFound }
    return nil
}
