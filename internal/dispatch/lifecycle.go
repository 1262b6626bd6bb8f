package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tripdispatch/internal/events"
	"tripdispatch/internal/model"
	"tripdispatch/internal/store"
)

// newTripCode builds a readable tenant-unique candidate code, e.g. TRP-261015-4F2A9C.
func newTripCode(at time.Time) string {
	return fmt.Sprintf("TRP-%s-%s", at.Format("060102"), strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6]))
}

func (s *Service) CreateTrip(ctx context.Context, actor Actor, in model.TripInput) (model.TripDetail, error) {
	if err := actor.requireStaff(); err != nil {
		return model.TripDetail{}, s.reject("create_trip", err)
	}
	in.PickupLocation = strings.TrimSpace(in.PickupLocation)
	in.DeliveryLocation = strings.TrimSpace(in.DeliveryLocation)
	if err := s.check(in); err != nil {
		return model.TripDetail{}, s.reject("create_trip", err)
	}
	var trip model.Trip
	err := s.run(ctx, "create_trip", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		code := strings.TrimSpace(in.Code)
		if code == "" {
			code = newTripCode(box.at)
		}
		taken, err := tx.TripCodeTaken(ctx, actor.TenantID, code, "")
		if err != nil {
			return err
		}
		if taken {
			return conflict("trip code %s already exists", code)
		}
		trip = model.Trip{
			ID:               uuid.NewString(),
			TenantID:         actor.TenantID,
			Code:             code,
			Customer:         in.Customer,
			Shipper:          in.Shipper,
			CustomsBroker:    in.CustomsBroker,
			CompanyAmount:    in.CompanyAmount,
			DriverAmount:     in.DriverAmount,
			PickupDate:       in.PickupDate,
			PickupTime:       in.PickupTime,
			PickupLocation:   in.PickupLocation,
			DeliveryLocation: in.DeliveryLocation,
			Quantity:         in.Quantity,
			QuantityUnit:     in.QuantityUnit,
			Volume:           in.Volume,
			VolumeUnit:       in.VolumeUnit,
			Weight:           in.Weight,
			VehicleType:      in.VehicleType,
			Remarks:          in.Remarks,
			Status:           model.TripPending,
			CreatedBy:        actor.ID,
			CreatedAt:        box.at,
			UpdatedAt:        box.at,
		}
		if err := tx.InsertTrip(ctx, trip); err != nil {
			return err
		}
		box.tenantWide(events.TripCreated, tripRef(trip))
		return nil
	})
	if err != nil {
		return model.TripDetail{}, err
	}
	s.log.Info("trip created", zap.String("tenant", actor.TenantID), zap.String("trip", trip.ID), zap.String("code", trip.Code))
	return model.TripDetail{Trip: trip, Drivers: []model.Assignment{}}, nil
}

// GetTrip returns the trip with its drivers. Drivers only see trips they are assigned to.
func (s *Service) GetTrip(ctx context.Context, actor Actor, tripID string) (model.TripDetail, error) {
	trip, err := s.store.GetTrip(ctx, actor.TenantID, tripID)
	if err != nil {
		return model.TripDetail{}, s.reject("get_trip", err)
	}
	rows, err := s.store.ListAssignments(ctx, actor.TenantID, trip.ID)
	if err != nil {
		return model.TripDetail{}, s.reject("get_trip", err)
	}
	if actor.IsDriver() && !holdsAssignment(rows, actor.ID) {
		return model.TripDetail{}, s.reject("get_trip", forbidden("you are not assigned to this trip"))
	}
	return model.TripDetail{Trip: trip, Drivers: rows}, nil
}

// ListTrips pages through the tenant's trips; drivers only see their own.
func (s *Service) ListTrips(ctx context.Context, actor Actor, status model.TripStatus, cursor string, limit int) ([]model.Trip, string, error) {
	if status != "" && !status.Valid() {
		return nil, "", s.reject("list_trips", invalid("unknown trip status %q", status))
	}
	q := store.TripQuery{TenantID: actor.TenantID, Status: status, Cursor: cursor, Limit: limit}
	if actor.IsDriver() {
		q.DriverID = actor.ID
	}
	items, next, err := s.store.ListTrips(ctx, q)
	if err != nil {
		return nil, "", s.reject("list_trips", err)
	}
	return items, next, nil
}

// UpdateTrip patches descriptive fields. Status only changes through UpdateStatus.
func (s *Service) UpdateTrip(ctx context.Context, actor Actor, tripID string, patch model.TripPatch) (model.TripDetail, error) {
	if err := actor.requireStaff(); err != nil {
		return model.TripDetail{}, s.reject("update_trip", err)
	}
	if err := s.check(patch); err != nil {
		return model.TripDetail{}, s.reject("update_trip", err)
	}
	var out model.TripDetail
	err := s.run(ctx, "update_trip", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		trip, err := tx.LockTrip(ctx, actor.TenantID, tripID)
		if err != nil {
			return err
		}
		if patch.Code != nil {
			code := strings.TrimSpace(*patch.Code)
			if code == "" {
				return invalid("code must not be empty")
			}
			patch.Code = &code
			if code != trip.Code {
				taken, err := tx.TripCodeTaken(ctx, actor.TenantID, code, trip.ID)
				if err != nil {
					return err
				}
				if taken {
					return conflict("trip code %s already exists", code)
				}
			}
		}
		patch.Apply(&trip)
		if strings.TrimSpace(trip.PickupLocation) == "" || strings.TrimSpace(trip.DeliveryLocation) == "" {
			return invalid("pickup and delivery locations are required")
		}
		trip.UpdatedAt = box.at
		if err := tx.UpdateTrip(ctx, trip); err != nil {
			return err
		}
		rows, err := tx.TripAssignments(ctx, actor.TenantID, trip.ID)
		if err != nil {
			return err
		}
		out = model.TripDetail{Trip: trip, Drivers: rows}
		box.tenantWide(events.TripUpdated, tripRef(trip))
		return nil
	})
	if err != nil {
		return model.TripDetail{}, err
	}
	return out, nil
}

// DeleteTrip soft-deletes a pending trip that holds no assignments.
func (s *Service) DeleteTrip(ctx context.Context, actor Actor, tripID string) error {
	if err := actor.requireAdmin(); err != nil {
		return s.reject("delete_trip", err)
	}
	return s.run(ctx, "delete_trip", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		trip, err := tx.LockTrip(ctx, actor.TenantID, tripID)
		if err != nil {
			return err
		}
		if trip.Status != model.TripPending {
			return conflict("only pending trips can be deleted, trip is %s", trip.Status)
		}
		rows, err := tx.TripAssignments(ctx, actor.TenantID, trip.ID)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			return conflict("trip still has assigned drivers")
		}
		if err := tx.SoftDeleteTrip(ctx, actor.TenantID, trip.ID, box.at); err != nil {
			return err
		}
		box.tenantWide(events.TripDeleted, tripRef(trip))
		return nil
	})
}
