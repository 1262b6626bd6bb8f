package dispatch

import "tripdispatch/internal/model"

// Decision is the outcome of evaluating a requested trip status change.
type Decision struct {
	Allowed bool
	Kind    Kind
	Reason  string

	// ReleaseDrivers frees the trip's drivers that hold no other open assignment.
	ReleaseDrivers bool
	// OccupyDrivers marks the trip's drivers busy.
	OccupyDrivers bool
	// ClearAssignments drops the trip's assignment set.
	ClearAssignments bool
	// RecordPhotos stores submitted photo descriptors.
	RecordPhotos bool
}

func deny(k Kind, reason string) Decision { return Decision{Kind: k, Reason: reason} }

// Decide evaluates a status change. photos is the number of submitted photo
// descriptors. Driver membership on the trip is checked by the caller.
func Decide(actor ActorKind, current, requested model.TripStatus, photos int) Decision {
	if !requested.Valid() {
		return deny(ValidationError, "unknown trip status "+string(requested))
	}
	switch actor {
	case ActorDriver:
		switch requested {
		case model.TripInProgress:
			if current != model.TripAssigned {
				return deny(ConflictError, "trip can only be started from assigned")
			}
			return Decision{Allowed: true}
		case model.TripCompleted:
			if current != model.TripInProgress {
				return deny(ConflictError, "trip can only be completed from in_progress")
			}
			if photos == 0 {
				return deny(ValidationError, "completing a trip requires at least one photo")
			}
			return Decision{Allowed: true, ReleaseDrivers: true, RecordPhotos: true}
		default:
			return deny(ForbiddenError, "drivers may only set in_progress or completed")
		}
	case ActorStaff:
		d := Decision{Allowed: true}
		switch requested {
		case model.TripPending:
			d.ClearAssignments = true
			d.ReleaseDrivers = true
		case model.TripAssigned, model.TripInProgress:
			d.OccupyDrivers = true
		case model.TripCompleted:
			d.ReleaseDrivers = true
			d.RecordPhotos = photos > 0
		case model.TripCancelled:
			d.ReleaseDrivers = true
		}
		return d
	}
	return deny(ForbiddenError, "unknown actor")
}
