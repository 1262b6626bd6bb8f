package dispatch

import "tripdispatch/internal/auth"

// ActorKind distinguishes office users from drivers.
type ActorKind string

const (
	ActorStaff  ActorKind = "staff"
	ActorDriver ActorKind = "driver"
)

// Actor is the authenticated caller of a service operation. For drivers ID is
// the driver id; for staff it is the user id. TenantID scopes every access.
type Actor struct {
	Kind     ActorKind
	ID       string
	Name     string
	Role     string
	TenantID string
}

func (a Actor) IsDriver() bool { return a.Kind == ActorDriver }

func (a Actor) requireStaff() error {
	if a.Kind != ActorStaff {
		return forbidden("only staff may perform this operation")
	}
	return nil
}

// requireAdmin narrows requireStaff to the admin role: deleting trips and
// managing the driver roster.
func (a Actor) requireAdmin() error {
	if err := a.requireStaff(); err != nil {
		return err
	}
	if a.Role != auth.RoleAdmin {
		return forbidden("only admins may perform this operation")
	}
	return nil
}

// identified reports an actor that cannot be recorded as the author of a write.
func (a Actor) identified() error {
	if a.ID == "" || a.TenantID == "" {
		return forbidden("caller identity is incomplete")
	}
	return nil
}
