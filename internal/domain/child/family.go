package child

import (
	"errors"
	"time"
)

// Family owns one or more child profiles. Parent-only operations (goal
// overrides, reward decisions) are authorized against the family's parent PIN.
type Family struct {
	// ID is the internal unique identifier.
	ID string

	// Name is the family display name.
	Name string

	// ParentPINHash is the bcrypt hash of the parent PIN.
	ParentPINHash string

	// CreatedAt is when the family was created.
	CreatedAt time.Time
}

var (
	ErrInvalidFamily = errors.New("child: invalid family")
	ErrMissingPIN    = errors.New("child: parent PIN hash is required")
)

// NewFamily creates a new family.
func NewFamily(id, name, parentPINHash string, now time.Time) (*Family, error) {
	if id == "" || name == "" {
		return nil, ErrInvalidFamily
	}
	if parentPINHash == "" {
		return nil, ErrMissingPIN
	}
	return &Family{
		ID:            id,
		Name:          name,
		ParentPINHash: parentPINHash,
		CreatedAt:     now,
	}, nil
}
