package dispatch

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tripdispatch/internal/events"
	"tripdispatch/internal/model"
	"tripdispatch/internal/store"
)

func driverRef(d model.Driver) map[string]any {
	return map[string]any{"driverId": d.ID, "code": d.Code, "name": d.Name, "status": d.Status}
}

func lockDriver(ctx context.Context, tx store.Tx, tenantID, driverID string) (model.Driver, error) {
	ds, err := tx.LockDrivers(ctx, tenantID, []string{driverID})
	if err != nil {
		return model.Driver{}, err
	}
	if len(ds) == 0 {
		return model.Driver{}, notFound("driver %s not found", driverID)
	}
	return ds[0], nil
}

func uniqueDriverField(ctx context.Context, tx store.Tx, tenantID, field, value, exceptID string) error {
	taken, err := tx.DriverFieldTaken(ctx, tenantID, field, value, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return conflict("a driver with this %s already exists", strings.ReplaceAll(field, "_", " "))
	}
	return nil
}

func (s *Service) CreateDriver(ctx context.Context, actor Actor, in model.DriverInput) (model.Driver, error) {
	if err := actor.requireAdmin(); err != nil {
		return model.Driver{}, s.reject("create_driver", err)
	}
	in.Code = strings.TrimSpace(in.Code)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := s.check(in); err != nil {
		return model.Driver{}, s.reject("create_driver", err)
	}
	var d model.Driver
	err := s.run(ctx, "create_driver", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		if err := uniqueDriverField(ctx, tx, actor.TenantID, "code", in.Code, ""); err != nil {
			return err
		}
		if err := uniqueDriverField(ctx, tx, actor.TenantID, "phone", in.Phone, ""); err != nil {
			return err
		}
		d = model.Driver{
			ID:           uuid.NewString(),
			TenantID:     actor.TenantID,
			Code:         in.Code,
			Name:         in.Name,
			Phone:        in.Phone,
			LicensePlate: in.LicensePlate,
			VehicleType:  in.VehicleType,
			Status:       model.DriverAvailable,
			CreatedAt:    box.at,
			UpdatedAt:    box.at,
		}
		if err := tx.InsertDriver(ctx, d); err != nil {
			return err
		}
		box.tenantWide(events.DriverCreated, driverRef(d))
		return nil
	})
	if err != nil {
		return model.Driver{}, err
	}
	s.log.Info("driver created", zap.String("tenant", actor.TenantID), zap.String("driver", d.ID))
	return d, nil
}

// GetDriver is open to staff and to the driver themself.
func (s *Service) GetDriver(ctx context.Context, actor Actor, driverID string) (model.Driver, error) {
	if actor.IsDriver() && actor.ID != driverID {
		return model.Driver{}, s.reject("get_driver", forbidden("drivers may only read their own profile"))
	}
	d, err := s.store.GetDriver(ctx, actor.TenantID, driverID)
	if err != nil {
		return model.Driver{}, s.reject("get_driver", err)
	}
	return d, nil
}

func (s *Service) ListDrivers(ctx context.Context, actor Actor, status model.DriverStatus, cursor string, limit int) ([]model.Driver, string, error) {
	if err := actor.requireStaff(); err != nil {
		return nil, "", s.reject("list_drivers", err)
	}
	if status != "" && !status.Valid() {
		return nil, "", s.reject("list_drivers", invalid("unknown driver status %q", status))
	}
	items, next, err := s.store.ListDrivers(ctx, actor.TenantID, status, cursor, limit)
	if err != nil {
		return nil, "", s.reject("list_drivers", err)
	}
	return items, next, nil
}

// UpdateDriver edits the driver profile. Existing assignment snapshots keep the old values.
func (s *Service) UpdateDriver(ctx context.Context, actor Actor, driverID string, patch model.DriverPatch) (model.Driver, error) {
	if err := actor.requireAdmin(); err != nil {
		return model.Driver{}, s.reject("update_driver", err)
	}
	if err := s.check(patch); err != nil {
		return model.Driver{}, s.reject("update_driver", err)
	}
	var d model.Driver
	err := s.run(ctx, "update_driver", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		var err error
		if d, err = lockDriver(ctx, tx, actor.TenantID, driverID); err != nil {
			return err
		}
		if patch.Phone != nil {
			phone := strings.TrimSpace(*patch.Phone)
			patch.Phone = &phone
			if phone != d.Phone {
				if err := uniqueDriverField(ctx, tx, actor.TenantID, "phone", phone, d.ID); err != nil {
					return err
				}
			}
		}
		patch.Apply(&d)
		d.UpdatedAt = box.at
		if err := tx.UpdateDriver(ctx, d); err != nil {
			return err
		}
		box.tenantWide(events.DriverUpdated, driverRef(d))
		return nil
	})
	if err != nil {
		return model.Driver{}, err
	}
	return d, nil
}

// DeleteDriver soft-deletes a driver who holds no open assignment.
func (s *Service) DeleteDriver(ctx context.Context, actor Actor, driverID string) error {
	if err := actor.requireAdmin(); err != nil {
		return s.reject("delete_driver", err)
	}
	return s.run(ctx, "delete_driver", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		d, err := lockDriver(ctx, tx, actor.TenantID, driverID)
		if err != nil {
			return err
		}
		n, err := tx.OpenAssignmentCount(ctx, actor.TenantID, d.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return conflict("driver has %d open trip(s)", n)
		}
		if err := tx.SoftDeleteDriver(ctx, actor.TenantID, d.ID, box.at); err != nil {
			return err
		}
		box.tenantWide(events.DriverDeleted, driverRef(d))
		return nil
	})
}

// SetDriverAvailability lets a driver, or staff on their behalf, go available.
// Busy is only ever set by assignment, and a driver with an open trip stays busy.
func (s *Service) SetDriverAvailability(ctx context.Context, actor Actor, driverID string, status model.DriverStatus) (model.Driver, error) {
	if !status.Valid() {
		return model.Driver{}, s.reject("set_availability", invalid("unknown driver status %q", status))
	}
	if actor.IsDriver() && actor.ID != driverID {
		return model.Driver{}, s.reject("set_availability", forbidden("drivers may only change their own status"))
	}
	if status == model.DriverBusy {
		return model.Driver{}, s.reject("set_availability", forbidden("drivers become busy only through trip assignment"))
	}
	var d model.Driver
	err := s.run(ctx, "set_availability", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		var err error
		if d, err = lockDriver(ctx, tx, actor.TenantID, driverID); err != nil {
			return err
		}
		if d.Status == status {
			return nil
		}
		ok, err := canGoAvailable(ctx, tx, actor.TenantID, d.ID)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("driver still has an open trip")
		}
		freed, err := release(ctx, tx, actor.TenantID, []string{d.ID}, box.at)
		if err != nil {
			return err
		}
		d.Status, d.UpdatedAt = status, box.at
		box.driverFlips(freed, status)
		if !actor.IsDriver() {
			box.toDriver(d.ID, events.DriverYourStatus, driverRef(d))
		}
		return nil
	})
	if err != nil {
		return model.Driver{}, err
	}
	return d, nil
}

// UpdateDriverLocation records the driver's last known position.
func (s *Service) UpdateDriverLocation(ctx context.Context, actor Actor, driverID string, p model.GeoPoint) (model.Driver, error) {
	if !actor.IsDriver() || actor.ID != driverID {
		return model.Driver{}, s.reject("update_location", forbidden("only the driver may report their location"))
	}
	if err := s.check(p); err != nil {
		return model.Driver{}, s.reject("update_location", err)
	}
	var d model.Driver
	err := s.run(ctx, "update_location", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		var err error
		if d, err = lockDriver(ctx, tx, actor.TenantID, driverID); err != nil {
			return err
		}
		if err := tx.SetDriverLocation(ctx, actor.TenantID, d.ID, p.Lat, p.Lng, box.at); err != nil {
			return err
		}
		at := box.at
		d.Lat, d.Lng, d.LocationAt, d.UpdatedAt = p.Lat, p.Lng, &at, at
		box.tenantWide(events.DriverLocation, map[string]any{"driverId": d.ID, "latitude": p.Lat, "longitude": p.Lng})
		return nil
	})
	if err != nil {
		return model.Driver{}, err
	}
	return d, nil
}
