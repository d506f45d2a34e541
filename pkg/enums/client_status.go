package enums

import "fmt"

// ClientStatus captures the client lifecycle. Clients are never hard-deleted;
// they only transition between these states.
type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "active"
	ClientStatusPaused   ClientStatus = "paused"
	ClientStatusArchived ClientStatus = "archived"
)

var validClientStatuses = []ClientStatus{
	ClientStatusActive,
	ClientStatusPaused,
	ClientStatusArchived,
}

// String implements fmt.Stringer.
func (s ClientStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ClientStatus.
func (s ClientStatus) IsValid() bool {
	for _, candidate := range validClientStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseClientStatus converts raw input into a ClientStatus.
func ParseClientStatus(value string) (ClientStatus, error) {
	for _, candidate := range validClientStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid client status %q", value)
}
