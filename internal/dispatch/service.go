// Package dispatch implements trip assignment, transfer and status changes
// while keeping driver availability consistent with open assignments.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"tripdispatch/internal/auth"
	"tripdispatch/internal/events"
	"tripdispatch/internal/metrics"
	"tripdispatch/internal/model"
	"tripdispatch/internal/store"
)

// Options tune behaviour that product owners may still revisit.
type Options struct {
	// AssignKeepsReplacedBusy leaves drivers dropped by Assign busy even when
	// they hold no other open assignment, as the legacy system did. Such
	// drivers stay busy until staff free them.
	AssignKeepsReplacedBusy bool
}

type Service struct {
	store    store.Store
	notify   events.Notifier
	log      *zap.Logger
	validate *validator.Validate
	now      func() time.Time
	opts     Options
}

func NewService(st store.Store, n events.Notifier, log *zap.Logger, opts Options) *Service {
	if n == nil {
		n = events.Discard{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Service{store: st, notify: n, log: log, validate: v, now: time.Now, opts: opts}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// outbox collects notifications inside a transaction; they are published only after commit.
type outbox struct {
	tenant string
	at     time.Time
	items  []events.Notification
}

func (o *outbox) add(topic, typ string, data map[string]any) {
	o.items = append(o.items, events.Notification{Topic: topic, Event: events.New(typ, o.tenant, o.at, data)})
}

func (o *outbox) tenantWide(typ string, data map[string]any) {
	o.add(events.TenantTopic(o.tenant), typ, data)
}

func (o *outbox) toDriver(driverID, typ string, data map[string]any) {
	o.add(events.DriverTopic(o.tenant, driverID), typ, data)
}

func (o *outbox) toStaff(typ string, data map[string]any) {
	o.add(events.RoleTopic(o.tenant, auth.RoleAdmin), typ, data)
	o.add(events.RoleTopic(o.tenant, auth.RoleDispatcher), typ, data)
}

func (o *outbox) driverFlips(ids []string, status model.DriverStatus) {
	for _, id := range ids {
		o.tenantWide(events.DriverStatusChanged, map[string]any{"driverId": id, "status": status})
	}
}

// run executes fn in one transaction and publishes its notifications after commit.
// The outbox is rebuilt on every attempt so a retried transaction never double-publishes.
func (s *Service) run(ctx context.Context, op string, actor Actor, fn func(ctx context.Context, tx store.Tx, box *outbox) error) error {
	if err := actor.identified(); err != nil {
		return s.reject(op, err)
	}
	var box *outbox
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		box = &outbox{tenant: actor.TenantID, at: s.now().UTC()}
		return fn(ctx, tx, box)
	})
	if err != nil {
		return s.reject(op, err)
	}
	events.PublishAll(ctx, s.notify, box.items)
	return nil
}

func (s *Service) reject(op string, err error) error {
	err = classify(err)
	kind := string(KindOf(err))
	if kind == "" {
		kind = "internal"
		s.log.Error("dispatch operation failed", zap.String("op", op), zap.Error(err))
	}
	metrics.DispatchRejections.WithLabelValues(op, kind).Inc()
	return err
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		f := ve[0]
		return &Error{Kind: ValidationError, Message: fmt.Sprintf("%s failed %s validation", f.Field(), f.Tag()), Err: err}
	}
	return &Error{Kind: ValidationError, Message: "invalid input", Err: err}
}

func tripRef(t model.Trip) map[string]any {
	return map[string]any{"tripId": t.ID, "tripCode": t.Code, "status": t.Status}
}

// Assign replaces the trip's driver set, advances pending trips to assigned
// and marks the named drivers busy. Dropped drivers with no other open trip
// are released in the same transaction unless AssignKeepsReplacedBusy is set.
func (s *Service) Assign(ctx context.Context, actor Actor, tripID string, driverIDs []string) (model.TripDetail, error) {
	if err := actor.requireStaff(); err != nil {
		return model.TripDetail{}, s.reject("assign", err)
	}
	ids := normalizeIDs(driverIDs)
	if len(ids) == 0 {
		return model.TripDetail{}, s.reject("assign", invalid("at least one driver is required"))
	}
	var out model.TripDetail
	var dropped []string
	err := s.run(ctx, "assign", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		trip, err := tx.LockTrip(ctx, actor.TenantID, tripID)
		if err != nil {
			return err
		}
		if trip.Status.Terminal() {
			return conflict("trip is %s", trip.Status)
		}
		current, err := tx.TripAssignments(ctx, actor.TenantID, trip.ID)
		if err != nil {
			return err
		}
		before := assignedDriverIDs(current)
		drivers, err := lockRoster(ctx, tx, actor.TenantID, union(before, ids), ids)
		if err != nil {
			return err
		}
		from := trip.Status
		if trip.Status == model.TripPending {
			trip.Status = model.TripAssigned
			trip.UpdatedAt = box.at
			if err := tx.SetTripStatus(ctx, trip.TenantID, trip.ID, trip.Status, box.at); err != nil {
				return err
			}
		}
		rows, err := replaceAssignments(ctx, tx, trip, drivers, trip.Status, box.at)
		if err != nil {
			return err
		}
		busy, err := occupy(ctx, tx, actor.TenantID, ids, box.at)
		if err != nil {
			return err
		}
		dropped = minus(before, ids)
		var freed []string
		if len(dropped) > 0 && !s.opts.AssignKeepsReplacedBusy {
			if freed, err = release(ctx, tx, actor.TenantID, dropped, box.at); err != nil {
				return err
			}
		}
		out = model.TripDetail{Trip: trip, Drivers: rows}

		data := tripRef(trip)
		data["driverIds"] = ids
		box.tenantWide(events.TripAssigned, data)
		for _, id := range ids {
			box.toDriver(id, events.TripAssigned, tripRef(trip))
		}
		if from != trip.Status {
			box.tenantWide(events.TripStatusChanged, s.statusPayload(trip, from, actor, 0))
			metrics.TripTransitions.WithLabelValues(string(from), string(trip.Status), string(actor.Kind)).Inc()
		}
		box.driverFlips(busy, model.DriverBusy)
		box.driverFlips(freed, model.DriverAvailable)
		return nil
	})
	if err != nil {
		return model.TripDetail{}, err
	}
	s.log.Info("trip assigned", zap.String("tenant", actor.TenantID), zap.String("trip", tripID), zap.Strings("drivers", ids), zap.Strings("dropped", dropped))
	return out, nil
}

// Transfer moves a trip to a new driver set: outgoing drivers are released,
// incoming drivers become busy, drivers in both sets are left alone.
func (s *Service) Transfer(ctx context.Context, actor Actor, tripID string, driverIDs []string) (model.TripDetail, error) {
	if err := actor.requireStaff(); err != nil {
		return model.TripDetail{}, s.reject("transfer", err)
	}
	ids := normalizeIDs(driverIDs)
	if len(ids) == 0 {
		return model.TripDetail{}, s.reject("transfer", invalid("at least one driver is required"))
	}
	var out model.TripDetail
	err := s.run(ctx, "transfer", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		trip, err := tx.LockTrip(ctx, actor.TenantID, tripID)
		if err != nil {
			return err
		}
		if trip.Status.Terminal() {
			return conflict("cannot transfer a %s trip", trip.Status)
		}
		current, err := tx.TripAssignments(ctx, actor.TenantID, trip.ID)
		if err != nil {
			return err
		}
		before := assignedDriverIDs(current)
		drivers, err := lockRoster(ctx, tx, actor.TenantID, union(before, ids), ids)
		if err != nil {
			return err
		}
		outgoing := minus(before, ids)
		incoming := minus(ids, before)

		from := trip.Status
		if trip.Status == model.TripPending {
			trip.Status = model.TripAssigned
			trip.UpdatedAt = box.at
			if err := tx.SetTripStatus(ctx, trip.TenantID, trip.ID, trip.Status, box.at); err != nil {
				return err
			}
		}
		rows, err := replaceAssignments(ctx, tx, trip, drivers, trip.Status, box.at)
		if err != nil {
			return err
		}
		freed, err := release(ctx, tx, actor.TenantID, outgoing, box.at)
		if err != nil {
			return err
		}
		busy, err := occupy(ctx, tx, actor.TenantID, incoming, box.at)
		if err != nil {
			return err
		}
		out = model.TripDetail{Trip: trip, Drivers: rows}

		data := tripRef(trip)
		data["driverIds"] = ids
		data["incoming"] = incoming
		data["outgoing"] = outgoing
		box.tenantWide(events.TripTransferred, data)
		for _, id := range incoming {
			box.toDriver(id, events.TripAssigned, tripRef(trip))
		}
		for _, id := range outgoing {
			box.toDriver(id, events.TripTransferred, tripRef(trip))
		}
		if from != trip.Status {
			box.tenantWide(events.TripStatusChanged, s.statusPayload(trip, from, actor, 0))
			metrics.TripTransitions.WithLabelValues(string(from), string(trip.Status), string(actor.Kind)).Inc()
		}
		box.driverFlips(busy, model.DriverBusy)
		box.driverFlips(freed, model.DriverAvailable)
		return nil
	})
	if err != nil {
		return model.TripDetail{}, err
	}
	s.log.Info("trip transferred", zap.String("tenant", actor.TenantID), zap.String("trip", tripID), zap.Strings("drivers", ids))
	return out, nil
}

// UpdateStatus applies a status change after evaluating Decide. Drivers may
// only start and complete trips they are assigned to; completing requires
// photo descriptors, which are recorded in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, tripID string, status model.TripStatus, photos []model.PhotoDescriptor) (model.TripDetail, error) {
	if !status.Valid() {
		return model.TripDetail{}, s.reject("update_status", invalid("unknown trip status %q", status))
	}
	for i := range photos {
		if err := s.check(photos[i]); err != nil {
			return model.TripDetail{}, s.reject("update_status", err)
		}
	}
	var out model.TripDetail
	err := s.run(ctx, "update_status", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		trip, err := tx.LockTrip(ctx, actor.TenantID, tripID)
		if err != nil {
			return err
		}
		current, err := tx.TripAssignments(ctx, actor.TenantID, trip.ID)
		if err != nil {
			return err
		}
		if actor.IsDriver() && !holdsAssignment(current, actor.ID) {
			return forbidden("you are not assigned to this trip")
		}
		dec := Decide(actor.Kind, trip.Status, status, len(photos))
		if !dec.Allowed {
			return newError(dec.Kind, "%s", dec.Reason)
		}
		ids := assignedDriverIDs(current)
		if _, err := tx.LockDrivers(ctx, actor.TenantID, ids); err != nil {
			return err
		}

		from := trip.Status
		trip.Status = status
		trip.UpdatedAt = box.at
		if err := tx.SetTripStatus(ctx, trip.TenantID, trip.ID, status, box.at); err != nil {
			return err
		}
		rows := current
		if dec.ClearAssignments {
			if err := tx.DeleteAssignments(ctx, trip.TenantID, trip.ID); err != nil {
				return err
			}
			rows = []model.Assignment{}
		} else if _, err := tx.SetAssignmentStatus(ctx, trip.TenantID, trip.ID, status, box.at); err != nil {
			return err
		}

		var freed, busy []string
		if dec.ReleaseDrivers {
			if freed, err = release(ctx, tx, actor.TenantID, ids, box.at); err != nil {
				return err
			}
		}
		if dec.OccupyDrivers {
			if busy, err = occupy(ctx, tx, actor.TenantID, ids, box.at); err != nil {
				return err
			}
		}

		recorded := 0
		if dec.RecordPhotos && len(photos) > 0 {
			inserted, count, err := recordPhotos(ctx, tx, actor, trip, photos, box.at)
			if err != nil {
				return err
			}
			recorded = len(inserted)
			trip.PhotoCount, trip.HasPhotos = count, count > 0
		}

		if !dec.ClearAssignments {
			if rows, err = tx.TripAssignments(ctx, trip.TenantID, trip.ID); err != nil {
				return err
			}
		}
		out = model.TripDetail{Trip: trip, Drivers: rows}

		box.tenantWide(events.TripStatusChanged, s.statusPayload(trip, from, actor, recorded))
		if actor.IsDriver() {
			data := tripRef(trip)
			data["driverId"] = actor.ID
			data["driverName"] = actor.Name
			data["photoCount"] = recorded
			box.toStaff(events.TripDriverProgress, data)
		} else {
			for _, id := range ids {
				box.toDriver(id, events.TripStatusUpdated, tripRef(trip))
			}
		}
		box.driverFlips(busy, model.DriverBusy)
		box.driverFlips(freed, model.DriverAvailable)
		metrics.TripTransitions.WithLabelValues(string(from), string(status), string(actor.Kind)).Inc()
		return nil
	})
	if err != nil {
		return model.TripDetail{}, err
	}
	s.log.Info("trip status changed", zap.String("tenant", actor.TenantID), zap.String("trip", tripID), zap.String("status", string(status)), zap.String("actor", actor.ID))
	return out, nil
}

func (s *Service) statusPayload(t model.Trip, from model.TripStatus, actor Actor, photos int) map[string]any {
	return map[string]any{
		"tripId":     t.ID,
		"tripCode":   t.Code,
		"oldStatus":  from,
		"newStatus":  t.Status,
		"hasPhotos":  photos > 0,
		"photoCount": photos,
		"updatedBy":  map[string]any{"id": actor.ID, "kind": actor.Kind, "name": actor.Name},
	}
}
