package catalog

// EntityStatus represents the lifecycle status of a synced catalog entity.
// Entities absent from the latest full supplier fetch are soft-deleted
// (marked removed) rather than physically erased, so historical price and
// order references stay intact.
type EntityStatus string

const (
	EntityStatusActive  EntityStatus = "active"
	EntityStatusRemoved EntityStatus = "removed"
)

// IsValid returns true if the status is valid
func (s EntityStatus) IsValid() bool {
	switch s {
	case EntityStatusActive, EntityStatusRemoved:
		return true
	default:
		return false
	}
}

// String returns the string representation of EntityStatus
func (s EntityStatus) String() string {
	return string(s)
}
