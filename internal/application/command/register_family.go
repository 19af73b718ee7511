package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER FAMILY COMMAND
// Onboarding entry point. The parent PIN is bcrypt-hashed here and never
// stored or logged in clear form.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterFamilyCommand contains the data to register a family.
type RegisterFamilyCommand struct {
	// Name is the family display name.
	Name string

	// ParentPIN is the clear-form PIN chosen by the parent. 4-12 digits.
	ParentPIN string
}

// Validate validates the command.
func (c RegisterFamilyCommand) Validate() error {
	if c.Name == "" {
		return errors.New("register_family: name is required")
	}
	if len(c.ParentPIN) < 4 || len(c.ParentPIN) > 12 {
		return errors.New("register_family: parent PIN must be 4-12 characters")
	}
	return nil
}

// RegisterFamilyHandler handles the RegisterFamilyCommand.
type RegisterFamilyHandler struct {
	familyRepo child.FamilyRepository
}

// NewRegisterFamilyHandler creates a new RegisterFamilyHandler.
func NewRegisterFamilyHandler(familyRepo child.FamilyRepository) *RegisterFamilyHandler {
	return &RegisterFamilyHandler{familyRepo: familyRepo}
}

// Handle executes the register family command.
func (h *RegisterFamilyHandler) Handle(ctx context.Context, cmd RegisterFamilyCommand) (*child.Family, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.ParentPIN), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("register_family: hash PIN: %w", err)
	}

	f, err := child.NewFamily(uuid.NewString(), cmd.Name, string(hash), time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("register_family: %w", err)
	}

	if err := h.familyRepo.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("register_family: store: %w", err)
	}

	return f, nil
}

// VerifyParentPIN checks a clear-form PIN against the family's stored hash.
func VerifyParentPIN(f *child.Family, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(f.ParentPINHash), []byte(pin)) == nil
}
