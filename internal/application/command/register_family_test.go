package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterFamily_HashesPIN(t *testing.T) {
	repo := newMemFamilyRepo()
	h := NewRegisterFamilyHandler(repo)

	f, err := h.Handle(context.Background(), RegisterFamilyCommand{
		Name:      "The Rahmans",
		ParentPIN: "4821",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "The Rahmans", f.Name)
	// The clear PIN must never be stored.
	assert.NotEqual(t, "4821", f.ParentPINHash)
	assert.NotContains(t, f.ParentPINHash, "4821")

	stored, err := repo.GetByID(context.Background(), f.ID)
	require.NoError(t, err)
	assert.True(t, VerifyParentPIN(stored, "4821"))
	assert.False(t, VerifyParentPIN(stored, "4822"))
	assert.False(t, VerifyParentPIN(stored, ""))
}

func TestRegisterFamily_PINLengthBounds(t *testing.T) {
	h := NewRegisterFamilyHandler(newMemFamilyRepo())

	_, err := h.Handle(context.Background(), RegisterFamilyCommand{Name: "F", ParentPIN: "123"})
	assert.Error(t, err)

	_, err = h.Handle(context.Background(), RegisterFamilyCommand{Name: "F", ParentPIN: "1234567890123"})
	assert.Error(t, err)

	_, err = h.Handle(context.Background(), RegisterFamilyCommand{ParentPIN: "4821"})
	assert.Error(t, err)
}

func TestRegisterChild_ValidatesTimezone(t *testing.T) {
	familyRepo := newMemFamilyRepo()
	childRepo := newMemChildRepo()
	families := NewRegisterFamilyHandler(familyRepo)
	h := NewRegisterChildHandler(familyRepo, childRepo)

	f, err := families.Handle(context.Background(), RegisterFamilyCommand{Name: "F", ParentPIN: "4821"})
	require.NoError(t, err)

	c, err := h.Handle(context.Background(), RegisterChildCommand{
		FamilyID:    f.ID,
		DisplayName: "Yusuf",
		Timezone:    "Europe/London",
	})
	require.NoError(t, err)
	assert.Equal(t, "Europe/London", c.Timezone)
	assert.Equal(t, 0, int(c.TotalPoints))
	assert.Equal(t, 1, int(c.IslamicLevel))

	_, err = h.Handle(context.Background(), RegisterChildCommand{
		FamilyID:    f.ID,
		DisplayName: "Yusuf",
		Timezone:    "Atlantis/Sunken_City",
	})
	assert.Error(t, err)

	_, err = h.Handle(context.Background(), RegisterChildCommand{
		FamilyID:    "no-such-family",
		DisplayName: "Yusuf",
		Timezone:    "Europe/London",
	})
	assert.Error(t, err)
}
