package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"tripdispatch/internal/events"
	"tripdispatch/internal/metrics"
	"tripdispatch/internal/model"
	"tripdispatch/internal/store"
)

const defaultPhotoType = "image/jpeg"

// recordPhotos stores one row per descriptor, skipping local identifiers the
// trip already has, and adds the inserted count to the trip's counters.
// It returns the inserted rows and the new photo count.
func recordPhotos(ctx context.Context, tx store.Tx, actor Actor, trip model.Trip, descs []model.PhotoDescriptor, at time.Time) ([]model.Photo, int, error) {
	rows := make([]model.Photo, 0, len(descs))
	seen := map[string]bool{}
	for _, d := range descs {
		local := strings.TrimSpace(d.LocalIdentifier)
		if local != "" {
			if seen[local] {
				continue
			}
			seen[local] = true
		}
		p := model.Photo{
			ID:              uuid.NewString(),
			TenantID:        trip.TenantID,
			TripID:          trip.ID,
			FileName:        d.FileName,
			FileSize:        d.FileSize,
			FileType:        d.FileType,
			LocalIdentifier: local,
			CreatedAt:       at,
		}
		if p.FileType == "" {
			p.FileType = defaultPhotoType
		}
		if actor.IsDriver() {
			p.UploadedByDriver = actor.ID
		} else {
			p.UploadedByUser = actor.ID
		}
		rows = append(rows, p)
	}
	inserted, err := tx.InsertPhotos(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	count, err := tx.AddPhotoCount(ctx, trip.TenantID, trip.ID, len(inserted))
	if err != nil {
		return nil, 0, err
	}
	metrics.PhotosRecorded.Add(float64(len(inserted)))
	return inserted, count, nil
}

// RecordPhotos attaches proof-of-delivery photo metadata to a trip.
func (s *Service) RecordPhotos(ctx context.Context, actor Actor, tripID string, descs []model.PhotoDescriptor) ([]model.Photo, error) {
	if len(descs) == 0 {
		return nil, s.reject("record_photos", invalid("at least one photo is required"))
	}
	for i := range descs {
		if err := s.check(descs[i]); err != nil {
			return nil, s.reject("record_photos", err)
		}
	}
	var out []model.Photo
	err := s.run(ctx, "record_photos", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		trip, err := tx.LockTrip(ctx, actor.TenantID, tripID)
		if err != nil {
			return err
		}
		if actor.IsDriver() {
			ok, err := tx.IsDriverAssigned(ctx, actor.TenantID, trip.ID, actor.ID)
			if err != nil {
				return err
			}
			if !ok {
				return forbidden("you are not assigned to this trip")
			}
		}
		inserted, count, err := recordPhotos(ctx, tx, actor, trip, descs, box.at)
		if err != nil {
			return err
		}
		out = inserted
		data := tripRef(trip)
		data["added"] = len(inserted)
		data["photoCount"] = count
		box.tenantWide(events.TripPhotosRecorded, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPhotos returns a trip's photos, newest first.
func (s *Service) ListPhotos(ctx context.Context, actor Actor, tripID string) ([]model.Photo, error) {
	if _, err := s.GetTrip(ctx, actor, tripID); err != nil {
		return nil, err
	}
	photos, err := s.store.ListPhotos(ctx, actor.TenantID, tripID)
	if err != nil {
		return nil, s.reject("list_photos", err)
	}
	return photos, nil
}

// DeletePhoto removes one photo and recounts the trip's photos from the remaining rows.
// Drivers may only remove their own uploads.
func (s *Service) DeletePhoto(ctx context.Context, actor Actor, tripID, photoID string) error {
	return s.run(ctx, "delete_photo", actor, func(ctx context.Context, tx store.Tx, box *outbox) error {
		trip, err := tx.LockTrip(ctx, actor.TenantID, tripID)
		if err != nil {
			return err
		}
		photo, err := tx.GetPhoto(ctx, actor.TenantID, trip.ID, photoID)
		if err != nil {
			return err
		}
		if actor.IsDriver() && photo.UploadedByDriver != actor.ID {
			return forbidden("drivers may only delete their own photos")
		}
		if err := tx.DeletePhoto(ctx, actor.TenantID, photo.ID); err != nil {
			return err
		}
		n, err := tx.CountPhotos(ctx, actor.TenantID, trip.ID)
		if err != nil {
			return err
		}
		if err := tx.SetPhotoCount(ctx, actor.TenantID, trip.ID, n); err != nil {
			return err
		}
		data := tripRef(trip)
		data["photoId"] = photo.ID
		data["photoCount"] = n
		box.tenantWide(events.TripPhotoDeleted, data)
		return nil
	})
}
