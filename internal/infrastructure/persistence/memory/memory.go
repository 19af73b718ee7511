// Package memory provides in-memory implementations of the domain
// repositories. They mirror the compare-and-set semantics of the postgres
// layer (one winner per goal completion, claim decision, achievement earn)
// so application code behaves the same against either backend. Used by
// tests and local development; nothing here survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/deen-kids/deen-progress-engine/internal/domain/achievement"
	"github.com/deen-kids/deen-progress-engine/internal/domain/child"
	"github.com/deen-kids/deen-progress-engine/internal/domain/goal"
	"github.com/deen-kids/deen-progress-engine/internal/domain/ledger"
	"github.com/deen-kids/deen-progress-engine/internal/domain/reward"
	"github.com/deen-kids/deen-progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHILD & FAMILY REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// ChildRepository implements child.Repository in memory.
type ChildRepository struct {
	mu       sync.Mutex
	children map[string]*child.Child
}

// NewChildRepository creates a ChildRepository seeded with the given children.
func NewChildRepository(children ...*child.Child) *ChildRepository {
	r := &ChildRepository{children: make(map[string]*child.Child)}
	for _, c := range children {
		cc := *c
		r.children[c.ID] = &cc
	}
	return r
}

// Create creates a new child profile.
func (r *ChildRepository) Create(_ context.Context, c *child.Child) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.children[c.ID]; ok {
		return shared.ErrChildAlreadyExists
	}
	cc := *c
	r.children[c.ID] = &cc
	return nil
}

// GetByID returns a child by internal ID.
func (r *ChildRepository) GetByID(_ context.Context, id string) (*child.Child, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.children[id]
	if !ok {
		return nil, shared.ErrChildNotFound
	}
	cc := *c
	return &cc, nil
}

// GetByFamily returns a family's children ordered by total points descending.
func (r *ChildRepository) GetByFamily(_ context.Context, familyID child.FamilyID) ([]*child.Child, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*child.Child
	for _, c := range r.children {
		if c.FamilyID == familyID {
			cc := *c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out, nil
}

// ListAll returns every child profile.
func (r *ChildRepository) ListAll(_ context.Context) ([]*child.Child, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*child.Child
	for _, c := range r.children {
		cc := *c
		out = append(out, &cc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateStreaks overwrites the current streak and raises the longest.
func (r *ChildRepository) UpdateStreaks(_ context.Context, id string, current int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.children[id]
	if !ok {
		return shared.ErrChildNotFound
	}
	c.CurrentStreak = current
	if current > c.LongestStreak {
		c.LongestStreak = current
	}
	return nil
}

// SetBalance overwrites the stored balance and derived level.
func (r *ChildRepository) SetBalance(_ context.Context, id string, balance child.Points) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.children[id]
	if !ok {
		return shared.ErrChildNotFound
	}
	c.TotalPoints = balance
	c.IslamicLevel = child.CalculateLevel(balance)
	return nil
}

// Credit adds delta to the balance, refreshing the derived level. It stands
// in for the balance update the postgres layer does inside the appending
// transaction.
func (r *ChildRepository) Credit(id string, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.children[id]
	if !ok {
		return 0, shared.ErrChildNotFound
	}
	c.TotalPoints += child.Points(delta)
	c.IslamicLevel = child.CalculateLevel(c.TotalPoints)
	return int(c.TotalPoints), nil
}

// Debit subtracts cost with the same balance guard the approval transaction
// enforces.
func (r *ChildRepository) Debit(id string, cost int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.children[id]
	if !ok {
		return 0, shared.ErrChildNotFound
	}
	if int(c.TotalPoints) < cost {
		return 0, shared.ErrBalanceTooLow
	}
	c.TotalPoints -= child.Points(cost)
	c.IslamicLevel = child.CalculateLevel(c.TotalPoints)
	return int(c.TotalPoints), nil
}

// FamilyRepository implements child.FamilyRepository in memory.
type FamilyRepository struct {
	mu       sync.Mutex
	families map[string]*child.Family
}

// NewFamilyRepository creates a FamilyRepository seeded with the given families.
func NewFamilyRepository(families ...*child.Family) *FamilyRepository {
	r := &FamilyRepository{families: make(map[string]*child.Family)}
	for _, f := range families {
		ff := *f
		r.families[f.ID] = &ff
	}
	return r
}

// Create creates a new family.
func (r *FamilyRepository) Create(_ context.Context, f *child.Family) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.families[f.ID]; ok {
		return shared.ErrAlreadyExists
	}
	ff := *f
	r.families[f.ID] = &ff
	return nil
}

// GetByID returns a family by ID.
func (r *FamilyRepository) GetByID(_ context.Context, id string) (*child.Family, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.families[id]
	if !ok {
		return nil, shared.ErrFamilyNotFound
	}
	ff := *f
	return &ff, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LedgerRepository implements ledger.Repository in memory. Appends credit
// the linked ChildRepository the way the postgres transaction does.
type LedgerRepository struct {
	mu         sync.Mutex
	childRepo  *ChildRepository
	activities []*ledger.Activity
	seen       map[string]bool // childID + "/" + dedupKey
}

// NewLedgerRepository creates a LedgerRepository crediting into childRepo.
func NewLedgerRepository(childRepo *ChildRepository) *LedgerRepository {
	return &LedgerRepository{childRepo: childRepo, seen: make(map[string]bool)}
}

// Append inserts the fact and credits the balance; a dedup collision comes
// back with Accepted=false and the unchanged balance.
func (r *LedgerRepository) Append(_ context.Context, a *ledger.Activity) (ledger.AppendResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := a.ChildID + "/" + a.DedupKey.String()
	if r.seen[key] {
		c, err := r.childRepo.GetByID(context.Background(), a.ChildID)
		if err != nil {
			return ledger.AppendResult{}, err
		}
		return ledger.AppendResult{Accepted: false, NewBalance: int(c.TotalPoints)}, nil
	}

	balance, err := r.childRepo.Credit(a.ChildID, a.PointsValue)
	if err != nil {
		return ledger.AppendResult{}, err
	}
	r.seen[key] = true
	aa := *a
	r.activities = append(r.activities, &aa)
	return ledger.AppendResult{Accepted: true, Activity: &aa, NewBalance: balance}, nil
}

// ListByChild returns a child's facts, newest first.
func (r *LedgerRepository) ListByChild(_ context.Context, childID string, limit int) ([]*ledger.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ledger.Activity
	for i := len(r.activities) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.activities[i].ChildID == childID {
			aa := *r.activities[i]
			out = append(out, &aa)
		}
	}
	return out, nil
}

// ListSince returns a child's facts occurring at or after since, oldest
// first.
func (r *LedgerRepository) ListSince(_ context.Context, childID string, since time.Time) ([]*ledger.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ledger.Activity
	for _, a := range r.activities {
		if a.ChildID == childID && !a.OccurredAt.Before(since) {
			aa := *a
			out = append(out, &aa)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// CompleteDays returns the child-local days holding a streak-qualifying fact.
func (r *LedgerRepository) CompleteDays(_ context.Context, childID string, loc *time.Location) (map[ledger.DayKey]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	days := make(map[ledger.DayKey]bool)
	for _, a := range r.activities {
		if a.ChildID == childID && a.Type.IsStreakQualifying() {
			days[ledger.DayKeyOf(a.OccurredAt, loc)] = true
		}
	}
	return days, nil
}

// SumPoints returns the full-ledger sum for a child.
func (r *LedgerRepository) SumPoints(_ context.Context, childID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := 0
	for _, a := range r.activities {
		if a.ChildID == childID {
			sum += a.PointsValue
		}
	}
	return sum, nil
}

// CountByType returns per-type activity counts for a child.
func (r *LedgerRepository) CountByType(_ context.Context, childID string) (map[ledger.ActivityType]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[ledger.ActivityType]int)
	for _, a := range r.activities {
		if a.ChildID == childID {
			counts[a.Type]++
		}
	}
	return counts, nil
}

// DailySummaries returns per-day aggregates, oldest first.
func (r *LedgerRepository) DailySummaries(_ context.Context, childID string, loc *time.Location, n int) ([]ledger.DailySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byDay := make(map[ledger.DayKey]*ledger.DailySummary)
	for _, a := range r.activities {
		if a.ChildID != childID {
			continue
		}
		day := ledger.DayKeyOf(a.OccurredAt, loc)
		s, ok := byDay[day]
		if !ok {
			s = &ledger.DailySummary{Day: day}
			byDay[day] = s
		}
		s.Activities++
		s.PointsEarned += a.PointsValue
		if a.Type == ledger.ActivityPrayerCompleted {
			s.Prayers++
		}
		if a.Type.IsStreakQualifying() {
			s.StreakQualifying = true
		}
	}
	var out []ledger.DailySummary
	for _, s := range byDay {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GOAL REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// GoalRepository implements goal.Repository in memory.
type GoalRepository struct {
	mu        sync.Mutex
	childRepo *ChildRepository
	goals     map[string]*goal.Goal
}

// NewGoalRepository creates a GoalRepository crediting rewards into childRepo.
func NewGoalRepository(childRepo *ChildRepository, goals ...*goal.Goal) *GoalRepository {
	r := &GoalRepository{childRepo: childRepo, goals: make(map[string]*goal.Goal)}
	for _, g := range goals {
		gg := *g
		r.goals[g.ID] = &gg
	}
	return r
}

// Create creates a new goal.
func (r *GoalRepository) Create(_ context.Context, g *goal.Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	gg := *g
	r.goals[g.ID] = &gg
	return nil
}

// GetByID returns a goal by ID.
func (r *GoalRepository) GetByID(_ context.Context, id string) (*goal.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.goals[id]
	if !ok {
		return nil, shared.ErrGoalNotFound
	}
	gg := *g
	return &gg, nil
}

// ListActive returns a child's non-completed goals.
func (r *GoalRepository) ListActive(_ context.Context, childID string) ([]*goal.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*goal.Goal
	for _, g := range r.goals {
		if g.ChildID == childID && g.CompletedAt == nil {
			gg := *g
			out = append(out, &gg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListByChild returns all of a child's goals, active first.
func (r *GoalRepository) ListByChild(_ context.Context, childID string) ([]*goal.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*goal.Goal
	for _, g := range r.goals {
		if g.ChildID == childID {
			gg := *g
			out = append(out, &gg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].CompletedAt == nil) != (out[j].CompletedAt == nil) {
			return out[i].CompletedAt == nil
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AdvanceProgress adds delta, clamped to the target, guarded on the goal
// still being active.
func (r *GoalRepository) AdvanceProgress(_ context.Context, goalID string, delta int) (*goal.Goal, bool, error) {
	if delta < 0 {
		return nil, false, goal.ErrNegativeDelta
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.goals[goalID]
	if !ok {
		return nil, false, shared.ErrGoalNotFound
	}
	if g.CompletedAt != nil {
		gg := *g
		return &gg, false, nil
	}
	g.CurrentValue += delta
	if g.CurrentValue > g.TargetValue {
		g.CurrentValue = g.TargetValue
	}
	gg := *g
	return &gg, true, nil
}

// SetProgress raises current_value to the given value, clamped to the
// target, guarded on active. Progress never decreases while the goal is open.
func (r *GoalRepository) SetProgress(_ context.Context, goalID string, value int) (*goal.Goal, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.goals[goalID]
	if !ok {
		return nil, false, shared.ErrGoalNotFound
	}
	if g.CompletedAt != nil {
		gg := *g
		return &gg, false, nil
	}
	if value > g.TargetValue {
		value = g.TargetValue
	}
	if value > g.CurrentValue {
		g.CurrentValue = value
	}
	gg := *g
	return &gg, true, nil
}

// CompleteAndCredit completes the goal and credits the reward exactly once.
func (r *GoalRepository) CompleteAndCredit(_ context.Context, goalID string, completedAt time.Time) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.goals[goalID]
	if !ok {
		return false, 0, shared.ErrGoalNotFound
	}
	if g.CompletedAt != nil {
		return false, 0, nil
	}
	t := completedAt
	g.CompletedAt = &t
	balance, err := r.childRepo.Credit(g.ChildID, g.RewardPoints)
	if err != nil {
		return false, 0, err
	}
	return true, balance, nil
}

// CountCompleted returns how many goals the child has completed.
func (r *GoalRepository) CountCompleted(_ context.Context, childID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, g := range r.goals {
		if g.ChildID == childID && g.CompletedAt != nil {
			count++
		}
	}
	return count, nil
}

// SumCompletedRewards returns the total reward points credited by completed
// goals.
func (r *GoalRepository) SumCompletedRewards(_ context.Context, childID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := 0
	for _, g := range r.goals {
		if g.ChildID == childID && g.CompletedAt != nil {
			sum += g.RewardPoints
		}
	}
	return sum, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REWARD REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// RewardRepository implements reward.Repository in memory.
type RewardRepository struct {
	mu        sync.Mutex
	childRepo *ChildRepository
	rewards   map[string]*reward.Reward
	claims    map[string]*reward.Claim
}

// NewRewardRepository creates a RewardRepository debiting approvals from
// childRepo.
func NewRewardRepository(childRepo *ChildRepository, rewards ...*reward.Reward) *RewardRepository {
	r := &RewardRepository{
		childRepo: childRepo,
		rewards:   make(map[string]*reward.Reward),
		claims:    make(map[string]*reward.Claim),
	}
	for _, rw := range rewards {
		rr := *rw
		r.rewards[rw.ID] = &rr
	}
	return r
}

// CreateReward adds a catalog entry.
func (r *RewardRepository) CreateReward(_ context.Context, rw *reward.Reward) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rr := *rw
	r.rewards[rw.ID] = &rr
	return nil
}

// GetReward returns a catalog entry.
func (r *RewardRepository) GetReward(_ context.Context, id string) (*reward.Reward, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rw, ok := r.rewards[id]
	if !ok {
		return nil, shared.ErrRewardNotFound
	}
	rr := *rw
	return &rr, nil
}

// ListRewards returns a family's active catalog.
func (r *RewardRepository) ListRewards(_ context.Context, familyID string) ([]*reward.Reward, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reward.Reward
	for _, rw := range r.rewards {
		if rw.FamilyID == familyID && rw.Active {
			rr := *rw
			out = append(out, &rr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateClaim stores a pending claim.
func (r *RewardRepository) CreateClaim(_ context.Context, c *reward.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cc := *c
	r.claims[c.ID] = &cc
	return nil
}

// GetClaim returns a claim.
func (r *RewardRepository) GetClaim(_ context.Context, id string) (*reward.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[id]
	if !ok {
		return nil, shared.ErrClaimNotFound
	}
	cc := *c
	return &cc, nil
}

// ListClaims returns a child's claims, newest first.
func (r *RewardRepository) ListClaims(_ context.Context, childID string) ([]*reward.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reward.Claim
	for _, c := range r.claims {
		if c.ChildID == childID {
			cc := *c
			out = append(out, &cc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedAt.After(out[j].ClaimedAt) })
	return out, nil
}

// Deny moves pending to denied; the loser of a decision race sees false.
func (r *RewardRepository) Deny(_ context.Context, claimID, deciderID string, decidedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[claimID]
	if !ok {
		return false, shared.ErrClaimNotFound
	}
	if c.Status != reward.StatusPending {
		return false, nil
	}
	c.Status = reward.StatusDenied
	t := decidedAt
	c.DecidedAt = &t
	c.DeciderID = deciderID
	return true, nil
}

// ApproveAndDebit moves pending to approved and debits the balance. An
// under-funded approval fails with the claim left pending, like the
// rolled-back transaction.
func (r *RewardRepository) ApproveAndDebit(_ context.Context, claimID, deciderID string, decidedAt time.Time) (bool, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[claimID]
	if !ok {
		return false, 0, shared.ErrClaimNotFound
	}
	if c.Status != reward.StatusPending {
		return false, 0, nil
	}
	balance, err := r.childRepo.Debit(c.ChildID, c.PointsRequired)
	if err != nil {
		return false, 0, err
	}
	c.Status = reward.StatusApproved
	t := decidedAt
	c.DecidedAt = &t
	c.DeciderID = deciderID
	return true, balance, nil
}

// SumApprovedCosts returns the total points debited by approved claims.
func (r *RewardRepository) SumApprovedCosts(_ context.Context, childID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := 0
	for _, c := range r.claims {
		if c.ChildID == childID && c.Status == reward.StatusApproved {
			sum += c.PointsRequired
		}
	}
	return sum, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements achievement.Repository in memory.
type AchievementRepository struct {
	mu        sync.Mutex
	instances map[string]*achievement.Achievement // childID + "/" + definitionID
}

// NewAchievementRepository creates an empty AchievementRepository.
func NewAchievementRepository() *AchievementRepository {
	return &AchievementRepository{instances: make(map[string]*achievement.Achievement)}
}

func instanceKey(childID, definitionID string) string {
	return childID + "/" + definitionID
}

// ListByChild returns all of a child's achievement instances.
func (r *AchievementRepository) ListByChild(_ context.Context, childID string) ([]*achievement.Achievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*achievement.Achievement
	for _, a := range r.instances {
		if a.ChildID == childID {
			aa := *a
			out = append(out, &aa)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DefinitionID < out[j].DefinitionID })
	return out, nil
}

// EarnedIDs returns the set of definition IDs the child already earned.
func (r *AchievementRepository) EarnedIDs(_ context.Context, childID string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	earned := make(map[string]bool)
	for _, a := range r.instances {
		if a.ChildID == childID && a.EarnedAt != nil {
			earned[a.DefinitionID] = true
		}
	}
	return earned, nil
}

// UpsertProgress stores progress for a not-yet-earned instance.
func (r *AchievementRepository) UpsertProgress(_ context.Context, childID, definitionID string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := instanceKey(childID, definitionID)
	a, ok := r.instances[key]
	if !ok {
		r.instances[key] = &achievement.Achievement{
			ChildID:            childID,
			DefinitionID:       definitionID,
			ProgressPercentage: progress,
		}
		return nil
	}
	if a.EarnedAt != nil {
		return nil
	}
	a.ProgressPercentage = progress
	return nil
}

// MarkEarned sets earned_at once; the loser of an evaluation race sees false.
func (r *AchievementRepository) MarkEarned(_ context.Context, childID, definitionID string, earnedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := instanceKey(childID, definitionID)
	a, ok := r.instances[key]
	if !ok {
		t := earnedAt
		r.instances[key] = &achievement.Achievement{
			ChildID:            childID,
			DefinitionID:       definitionID,
			ProgressPercentage: 100,
			EarnedAt:           &t,
		}
		return true, nil
	}
	if a.EarnedAt != nil {
		return false, nil
	}
	t := earnedAt
	a.EarnedAt = &t
	a.ProgressPercentage = 100
	return true, nil
}

// Acknowledge flips the celebration flag once per earned achievement.
func (r *AchievementRepository) Acknowledge(_ context.Context, childID, definitionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.instances[instanceKey(childID, definitionID)]
	if !ok || a.EarnedAt == nil {
		return false, shared.ErrAchievementNotEarned
	}
	if a.CelebrationViewed {
		return false, nil
	}
	a.CelebrationViewed = true
	return true, nil
}

// GetByID returns one instance.
func (r *AchievementRepository) GetByID(_ context.Context, childID, definitionID string) (*achievement.Achievement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.instances[instanceKey(childID, definitionID)]
	if !ok {
		return nil, shared.ErrAchievementNotFound
	}
	aa := *a
	return &aa, nil
}
