package command

import (
	"sync"

	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/reward"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
	"github.com/deen-kids/deen-progress-engine/internal/infrastructure/persistence/memory"
)

// The memory repositories carry the same compare-and-set semantics as the
// postgres layer, so handler tests exercise the real race outcomes.

type (
	memChildRepo  = memory.ChildRepository
	memFamilyRepo = memory.FamilyRepository
	memLedgerRepo = memory.LedgerRepository
	memGoalRepo   = memory.GoalRepository
	memRewardRepo = memory.RewardRepository
)

func newMemChildRepo(children ...*child.Child) *memory.ChildRepository {
	return memory.NewChildRepository(children...)
}

func newMemFamilyRepo(families ...*child.Family) *memory.FamilyRepository {
	return memory.NewFamilyRepository(families...)
}

func newMemLedgerRepo(childRepo *memory.ChildRepository) *memory.LedgerRepository {
	return memory.NewLedgerRepository(childRepo)
}

func newMemGoalRepo(childRepo *memory.ChildRepository, goals ...*goal.Goal) *memory.GoalRepository {
	return memory.NewGoalRepository(childRepo, goals...)
}

func newMemRewardRepo(childRepo *memory.ChildRepository, rewards ...*reward.Reward) *memory.RewardRepository {
	return memory.NewRewardRepository(childRepo, rewards...)
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}
