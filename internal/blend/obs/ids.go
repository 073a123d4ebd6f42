package obs

import "fmt"

// ObjectID identifies one physical sky object within a catalog.
type ObjectID int64

// ExposureID identifies one exposure or coadd frame.
type ExposureID int64

// Key indexes the flat (object, exposure) mapping of a blend stack.
type Key struct {
	Object   ObjectID
	Exposure ExposureID
}

// String renders the key for log lines and error messages.
func (k Key) String() string {
	return fmt.Sprintf("obj=%d/exp=%d", k.Object, k.Exposure)
}

// Presence is the per-(object, exposure, neighbour) state. A neighbour
// starts Present and may transition to Subtracted exactly once per
// deblend pass; the transition is never reversed.
type Presence int

const (
	// Present means the neighbour's flux is still in the pixels.
	Present Presence = iota
	// Subtracted means a deblender has removed the neighbour's flux.
	Subtracted
)

// String returns the state name.
func (p Presence) String() string {
	switch p {
	case Present:
		return "present"
	case Subtracted:
		return "subtracted"
	default:
		return fmt.Sprintf("presence(%d)", int(p))
	}
}
