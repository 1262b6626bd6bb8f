package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"tripdispatch/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// A transaction holds the store mutex for its whole duration and restores a
// snapshot when fn fails, so concurrent callers are fully serialized.
type Memory struct {
	mu sync.Mutex
	st memState
}

type memState struct {
	trips   map[string]model.Trip       // id -> trip
	assigns map[string]model.Assignment // id -> assignment row
	drivers map[string]model.Driver     // id -> driver
	photos  map[string]model.Photo      // id -> photo
}

func NewMemory() *Memory {
	return &Memory{st: memState{
		trips:   map[string]model.Trip{},
		assigns: map[string]model.Assignment{},
		drivers: map[string]model.Driver{},
		photos:  map[string]model.Photo{},
	}}
}

func (s memState) clone() memState {
	c := memState{
		trips:   make(map[string]model.Trip, len(s.trips)),
		assigns: make(map[string]model.Assignment, len(s.assigns)),
		drivers: make(map[string]model.Driver, len(s.drivers)),
		photos:  make(map[string]model.Photo, len(s.photos)),
	}
	for k, v := range s.trips {
		c.trips[k] = v
	}
	for k, v := range s.assigns {
		c.assigns[k] = v
	}
	for k, v := range s.drivers {
		c.drivers[k] = v
	}
	for k, v := range s.photos {
		c.photos[k] = v
	}
	return c
}

func (m *Memory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.st.clone()
	if err := fn(ctx, &memTx{st: &m.st}); err != nil {
		m.st = snap
		return err
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) GetTrip(ctx context.Context, tenantID, tripID string) (model.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.liveTrip(tenantID, tripID)
}

func (m *Memory) ListTrips(ctx context.Context, q TripQuery) ([]model.Trip, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := clampLimit(q.Limit)
	var mine map[string]bool
	if q.DriverID != "" {
		mine = map[string]bool{}
		for _, a := range m.st.assigns {
			if a.TenantID == q.TenantID && a.DriverID == q.DriverID {
				mine[a.TripID] = true
			}
		}
	}
	ids := make([]string, 0, len(m.st.trips))
	for id, t := range m.st.trips {
		if t.TenantID != q.TenantID || t.DeletedAt != nil {
			continue
		}
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		if mine != nil && !mine[id] {
			continue
		}
		if q.Cursor != "" && id <= q.Cursor {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := []model.Trip{}
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		out = append(out, m.st.trips[id])
	}
	next := ""
	if len(out) == limit && len(ids) > limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) ListAssignments(ctx context.Context, tenantID, tripID string) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.tripAssignments(tenantID, tripID), nil
}

func (m *Memory) GetDriver(ctx context.Context, tenantID, driverID string) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.st.drivers[driverID]
	if !ok || d.TenantID != tenantID || d.DeletedAt != nil {
		return model.Driver{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) ListDrivers(ctx context.Context, tenantID string, status model.DriverStatus, cursor string, limit int) ([]model.Driver, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = clampLimit(limit)
	ids := []string{}
	for id, d := range m.st.drivers {
		if d.TenantID != tenantID || d.DeletedAt != nil {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		if cursor != "" && id <= cursor {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := []model.Driver{}
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		out = append(out, m.st.drivers[id])
	}
	next := ""
	if len(out) == limit && len(ids) > limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (m *Memory) ListPhotos(ctx context.Context, tenantID, tripID string) ([]model.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Photo{}
	for _, p := range m.st.photos {
		if p.TenantID == tenantID && p.TripID == tripID {
			out = append(out, p)
		}
	}
	// newest first, like the API
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memState) liveTrip(tenantID, tripID string) (model.Trip, error) {
	t, ok := s.trips[tripID]
	if !ok || t.TenantID != tenantID || t.DeletedAt != nil {
		return model.Trip{}, ErrNotFound
	}
	return t, nil
}

func (s *memState) tripAssignments(tenantID, tripID string) []model.Assignment {
	out := []model.Assignment{}
	for _, a := range s.assigns {
		if a.TenantID == tenantID && a.TripID == tripID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out
}

// memTx operates directly on the locked state.
type memTx struct {
	st *memState
}

func (t *memTx) InsertTrip(ctx context.Context, tr model.Trip) error {
	t.st.trips[tr.ID] = tr
	return nil
}

func (t *memTx) LockTrip(ctx context.Context, tenantID, tripID string) (model.Trip, error) {
	return t.st.liveTrip(tenantID, tripID)
}

func (t *memTx) UpdateTrip(ctx context.Context, tr model.Trip) error {
	if _, err := t.st.liveTrip(tr.TenantID, tr.ID); err != nil {
		return err
	}
	t.st.trips[tr.ID] = tr
	return nil
}

func (t *memTx) SetTripStatus(ctx context.Context, tenantID, tripID string, status model.TripStatus, at time.Time) error {
	tr, err := t.st.liveTrip(tenantID, tripID)
	if err != nil {
		return err
	}
	tr.Status = status
	tr.UpdatedAt = at
	t.st.trips[tripID] = tr
	return nil
}

func (t *memTx) SoftDeleteTrip(ctx context.Context, tenantID, tripID string, at time.Time) error {
	tr, err := t.st.liveTrip(tenantID, tripID)
	if err != nil {
		return err
	}
	tr.DeletedAt = &at
	t.st.trips[tripID] = tr
	return nil
}

func (t *memTx) TripCodeTaken(ctx context.Context, tenantID, code, exceptID string) (bool, error) {
	for id, tr := range t.st.trips {
		if id != exceptID && tr.TenantID == tenantID && tr.Code == code && tr.DeletedAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) AddPhotoCount(ctx context.Context, tenantID, tripID string, delta int) (int, error) {
	tr, err := t.st.liveTrip(tenantID, tripID)
	if err != nil {
		return 0, err
	}
	n := tr.PhotoCount + delta
	if n < 0 {
		n = 0
	}
	tr.PhotoCount = n
	tr.HasPhotos = n > 0
	t.st.trips[tripID] = tr
	return n, nil
}

func (t *memTx) SetPhotoCount(ctx context.Context, tenantID, tripID string, n int) error {
	tr, err := t.st.liveTrip(tenantID, tripID)
	if err != nil {
		return err
	}
	if n < 0 {
		n = 0
	}
	tr.PhotoCount = n
	tr.HasPhotos = n > 0
	t.st.trips[tripID] = tr
	return nil
}

func (t *memTx) TripAssignments(ctx context.Context, tenantID, tripID string) ([]model.Assignment, error) {
	return t.st.tripAssignments(tenantID, tripID), nil
}

func (t *memTx) DeleteAssignments(ctx context.Context, tenantID, tripID string) error {
	for id, a := range t.st.assigns {
		if a.TenantID == tenantID && a.TripID == tripID {
			delete(t.st.assigns, id)
		}
	}
	return nil
}

func (t *memTx) InsertAssignments(ctx context.Context, rows []model.Assignment) error {
	for _, a := range rows {
		t.st.assigns[a.ID] = a
	}
	return nil
}

func (t *memTx) SetAssignmentStatus(ctx context.Context, tenantID, tripID string, status model.TripStatus, at time.Time) (int, error) {
	n := 0
	for id, a := range t.st.assigns {
		if a.TenantID != tenantID || a.TripID != tripID || a.Status == status {
			continue
		}
		a.Status = status
		a.UpdatedAt = at
		t.st.assigns[id] = a
		n++
	}
	return n, nil
}

func (t *memTx) IsDriverAssigned(ctx context.Context, tenantID, tripID, driverID string) (bool, error) {
	for _, a := range t.st.assigns {
		if a.TenantID == tenantID && a.TripID == tripID && a.DriverID == driverID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) OpenAssignmentCount(ctx context.Context, tenantID, driverID string) (int, error) {
	n := 0
	for _, a := range t.st.assigns {
		if a.TenantID == tenantID && a.DriverID == driverID && a.Status.Open() {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertDriver(ctx context.Context, d model.Driver) error {
	t.st.drivers[d.ID] = d
	return nil
}

func (t *memTx) LockDrivers(ctx context.Context, tenantID string, ids []string) ([]model.Driver, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := []model.Driver{}
	for _, id := range sorted {
		d, ok := t.st.drivers[id]
		if ok && d.TenantID == tenantID && d.DeletedAt == nil {
			out = append(out, d)
		}
	}
	return out, nil
}

func (t *memTx) UpdateDriver(ctx context.Context, d model.Driver) error {
	cur, ok := t.st.drivers[d.ID]
	if !ok || cur.TenantID != d.TenantID || cur.DeletedAt != nil {
		return ErrNotFound
	}
	t.st.drivers[d.ID] = d
	return nil
}

func (t *memTx) SetDriverStatus(ctx context.Context, tenantID string, ids []string, status model.DriverStatus, at time.Time) error {
	for _, id := range ids {
		d, ok := t.st.drivers[id]
		if !ok || d.TenantID != tenantID || d.Status == status {
			continue
		}
		d.Status = status
		d.UpdatedAt = at
		t.st.drivers[id] = d
	}
	return nil
}

func (t *memTx) SetDriverLocation(ctx context.Context, tenantID, driverID string, lat, lng float64, at time.Time) error {
	d, ok := t.st.drivers[driverID]
	if !ok || d.TenantID != tenantID || d.DeletedAt != nil {
		return ErrNotFound
	}
	d.Lat, d.Lng = lat, lng
	d.LocationAt = &at
	d.UpdatedAt = at
	t.st.drivers[driverID] = d
	return nil
}

func (t *memTx) SoftDeleteDriver(ctx context.Context, tenantID, driverID string, at time.Time) error {
	d, ok := t.st.drivers[driverID]
	if !ok || d.TenantID != tenantID || d.DeletedAt != nil {
		return ErrNotFound
	}
	d.DeletedAt = &at
	t.st.drivers[driverID] = d
	return nil
}

func (t *memTx) DriverFieldTaken(ctx context.Context, tenantID, field, value, exceptID string) (bool, error) {
	for id, d := range t.st.drivers {
		if id == exceptID || d.TenantID != tenantID || d.DeletedAt != nil {
			continue
		}
		var v string
		switch field {
		case "code":
			v = d.Code
		case "phone":
			v = d.Phone
		case "license_plate":
			v = d.LicensePlate
		default:
			continue
		}
		if v == value {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertPhotos(ctx context.Context, photos []model.Photo) ([]model.Photo, error) {
	out := []model.Photo{}
	for _, p := range photos {
		if p.LocalIdentifier != "" && t.hasLocalPhoto(p.TenantID, p.TripID, p.LocalIdentifier) {
			continue
		}
		t.st.photos[p.ID] = p
		out = append(out, p)
	}
	return out, nil
}

func (t *memTx) hasLocalPhoto(tenantID, tripID, localID string) bool {
	for _, p := range t.st.photos {
		if p.TenantID == tenantID && p.TripID == tripID && p.LocalIdentifier == localID {
			return true
		}
	}
	return false
}

func (t *memTx) GetPhoto(ctx context.Context, tenantID, tripID, photoID string) (model.Photo, error) {
	p, ok := t.st.photos[photoID]
	if !ok || p.TenantID != tenantID || p.TripID != tripID {
		return model.Photo{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) DeletePhoto(ctx context.Context, tenantID, photoID string) error {
	p, ok := t.st.photos[photoID]
	if !ok || p.TenantID != tenantID {
		return ErrNotFound
	}
	delete(t.st.photos, photoID)
	return nil
}

func (t *memTx) CountPhotos(ctx context.Context, tenantID, tripID string) (int, error) {
	n := 0
	for _, p := range t.st.photos {
		if p.TenantID == tenantID && p.TripID == tripID {
			n++
		}
	}
	return n, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 500:
		return 500
	}
	return limit
}
