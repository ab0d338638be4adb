package domain

import "fmt"

// shortHexLen is the digest prefix length shown to end users.
const shortHexLen = 12

// LogIdentifier is the handle returned for a successfully written exception.
type LogIdentifier struct {
	Species    Digest
	InstanceID int64
}

// ShortForm renders a support reference safe to show to end users.
func (id LogIdentifier) ShortForm() string {
	return fmt.Sprintf("E:n%d:x%s", id.InstanceID, id.Species.Hex(shortHexLen))
}

func (id LogIdentifier) String() string {
	return id.ShortForm()
}
