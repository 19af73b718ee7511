package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER CHILD COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// RegisterChildCommand contains the data to register a child profile.
type RegisterChildCommand struct {
	// FamilyID is the owning family.
	FamilyID string

	// DisplayName is the child's display name.
	DisplayName string

	// Timezone is the IANA timezone name used to bucket the child's days.
	// It must resolve; streak computation fails closed without it.
	Timezone string
}

// Validate validates the command.
func (c RegisterChildCommand) Validate() error {
	if c.FamilyID == "" {
		return errors.New("register_child: family_id is required")
	}
	if c.DisplayName == "" {
		return errors.New("register_child: display_name is required")
	}
	if c.Timezone == "" {
		return errors.New("register_child: timezone is required")
	}
	return nil
}

// RegisterChildHandler handles the RegisterChildCommand.
type RegisterChildHandler struct {
	familyRepo child.FamilyRepository
	childRepo  child.Repository
}

// NewRegisterChildHandler creates a new RegisterChildHandler.
func NewRegisterChildHandler(familyRepo child.FamilyRepository, childRepo child.Repository) *RegisterChildHandler {
	return &RegisterChildHandler{familyRepo: familyRepo, childRepo: childRepo}
}

// Handle executes the register child command.
func (h *RegisterChildHandler) Handle(ctx context.Context, cmd RegisterChildCommand) (*child.Child, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	if _, err := timeutil.ResolveLocation(cmd.Timezone); err != nil {
		return nil, fmt.Errorf("register_child: %w: %q", shared.ErrTimezoneUnresolved, cmd.Timezone)
	}

	if _, err := h.familyRepo.GetByID(ctx, cmd.FamilyID); err != nil {
		return nil, fmt.Errorf("register_child: load family: %w", err)
	}

	ch, err := child.NewChild(uuid.NewString(), child.FamilyID(cmd.FamilyID), cmd.DisplayName, cmd.Timezone, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("register_child: %w", err)
	}

	if err := h.childRepo.Create(ctx, ch); err != nil {
		return nil, fmt.Errorf("register_child: store: %w", err)
	}

	return ch, nil
}
