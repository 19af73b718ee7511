package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

func testFamily(t *testing.T, id string) *child.Family {
	t.Helper()
	f, err := child.NewFamily(id, "Rahimov family", "$2a$10$examplehash", time.Now().UTC())
	require.NoError(t, err)
	return f
}

func TestRegisterChild_CreatesZeroedProfile(t *testing.T) {
	familyRepo := newMemFamilyRepo(testFamily(t, "fam-1"))
	childRepo := newMemChildRepo()
	h := NewRegisterChildHandler(familyRepo, childRepo)

	ch, err := h.Handle(context.Background(), RegisterChildCommand{
		FamilyID:    "fam-1",
		DisplayName: "Amina",
		Timezone:    "Asia/Almaty",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, ch.ID)
	assert.Equal(t, child.FamilyID("fam-1"), ch.FamilyID)
	assert.Equal(t, "Amina", ch.DisplayName)
	assert.Equal(t, "Asia/Almaty", ch.Timezone)
	assert.Zero(t, ch.TotalPoints)
	assert.Zero(t, ch.CurrentStreak)

	stored, err := childRepo.GetByID(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.Equal(t, ch.ID, stored.ID)
}

func TestRegisterChild_RejectsUnresolvableTimezone(t *testing.T) {
	familyRepo := newMemFamilyRepo(testFamily(t, "fam-1"))
	h := NewRegisterChildHandler(familyRepo, newMemChildRepo())

	// A bad timezone at registration would make every streak computation
	// fail closed, so it is rejected up front.
	_, err := h.Handle(context.Background(), RegisterChildCommand{
		FamilyID:    "fam-1",
		DisplayName: "Amina",
		Timezone:    "Mars/Olympus",
	})
	assert.ErrorIs(t, err, shared.ErrTimezoneUnresolved)
}

func TestRegisterChild_UnknownFamily(t *testing.T) {
	h := NewRegisterChildHandler(newMemFamilyRepo(), newMemChildRepo())

	_, err := h.Handle(context.Background(), RegisterChildCommand{
		FamilyID:    "fam-ghost",
		DisplayName: "Amina",
		Timezone:    "Asia/Almaty",
	})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRegisterChild_Validation(t *testing.T) {
	h := NewRegisterChildHandler(newMemFamilyRepo(), newMemChildRepo())

	cases := []struct {
		name string
		cmd  RegisterChildCommand
	}{
		{"missing family", RegisterChildCommand{DisplayName: "Amina", Timezone: "Asia/Almaty"}},
		{"missing name", RegisterChildCommand{FamilyID: "fam-1", Timezone: "Asia/Almaty"}},
		{"missing timezone", RegisterChildCommand{FamilyID: "fam-1", DisplayName: "Amina"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Handle(context.Background(), tc.cmd)
			assert.Error(t, err)
		})
	}
}
