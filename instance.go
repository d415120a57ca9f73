package hat

import "github.com/google/uuid"

// InstanceID is a per-process identity tag for one Index, used only to
// correlate log lines when an application runs several indices at once.
// It has no effect on tree semantics and is never persisted.
type InstanceID uuid.UUID

// NewInstanceID returns a new randomly generated InstanceID.
func NewInstanceID() InstanceID {
	return InstanceID(uuid.New())
}

// String returns the canonical string representation of the id.
func (id InstanceID) String() string {
	return uuid.UUID(id).String()
}
