package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven flow of the engine.
// Each event represents something significant that happened in the domain.
const (
	// Ledger events
	EventActivityRecorded  EventType = "ledger.activity_recorded"
	EventActivityDuplicate EventType = "ledger.activity_duplicate"
	EventPointsCredited    EventType = "ledger.points_credited"

	// Progress events
	EventStreakUpdated EventType = "progress.streak_updated"
	EventStreakBroken  EventType = "progress.streak_broken"
	EventLevelUp       EventType = "progress.level_up"

	// Goal events
	EventGoalProgressed EventType = "goal.progressed"
	EventGoalCompleted  EventType = "goal.completed"

	// Achievement events
	EventAchievementEarned       EventType = "achievement.earned"
	EventAchievementAcknowledged EventType = "achievement.acknowledged"

	// Reward claim events
	EventClaimCreated EventType = "claim.created"
	EventClaimDecided EventType = "claim.decided"

	// System events
	EventBalanceDriftDetected EventType = "system.balance_drift_detected"
	EventBalanceRepaired      EventType = "system.balance_repaired"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// ActivityRecordedEvent is emitted when the ledger accepts a new activity fact.
type ActivityRecordedEvent struct {
	BaseEvent
	ChildID      string    `json:"child_id"`
	ActivityID   string    `json:"activity_id"`
	ActivityType string    `json:"activity_type"`
	PointsValue  int       `json:"points_value"`
	NewBalance   int       `json:"new_balance"`
	DedupKey     string    `json:"dedup_key"`
	ActivityAt   time.Time `json:"activity_at"`
}

// Payload implements Event interface.
func (e ActivityRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_id":      e.ChildID,
		"activity_id":   e.ActivityID,
		"activity_type": e.ActivityType,
		"points_value":  e.PointsValue,
		"new_balance":   e.NewBalance,
		"dedup_key":     e.DedupKey,
		"activity_at":   e.ActivityAt,
	}
}

// NewActivityRecordedEvent creates a new ActivityRecordedEvent.
func NewActivityRecordedEvent(childID, activityID, activityType string, pointsValue, newBalance int, dedupKey string, activityAt time.Time) ActivityRecordedEvent {
	return ActivityRecordedEvent{
		BaseEvent:    NewBaseEvent(EventActivityRecorded, childID),
		ChildID:      childID,
		ActivityID:   activityID,
		ActivityType: activityType,
		PointsValue:  pointsValue,
		NewBalance:   newBalance,
		DedupKey:     dedupKey,
		ActivityAt:   activityAt,
	}
}

// PointsCreditedEvent is emitted whenever the child balance is credited,
// either by a ledger append or a goal completion reward.
type PointsCreditedEvent struct {
	BaseEvent
	ChildID    string `json:"child_id"`
	Amount     int    `json:"amount"`
	NewBalance int    `json:"new_balance"`
	Source     string `json:"source"` // e.g., "activity", "goal_reward"
	SourceID   string `json:"source_id,omitempty"`
}

// Payload implements Event interface.
func (e PointsCreditedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_id":    e.ChildID,
		"amount":      e.Amount,
		"new_balance": e.NewBalance,
		"source":      e.Source,
		"source_id":   e.SourceID,
	}
}

// NewPointsCreditedEvent creates a new PointsCreditedEvent.
func NewPointsCreditedEvent(childID string, amount, newBalance int, source, sourceID string) PointsCreditedEvent {
	return PointsCreditedEvent{
		BaseEvent:  NewBaseEvent(EventPointsCredited, childID),
		ChildID:    childID,
		Amount:     amount,
		NewBalance: newBalance,
		Source:     source,
		SourceID:   sourceID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakUpdatedEvent is emitted after a streak recomputation changes state.
type StreakUpdatedEvent struct {
	BaseEvent
	ChildID        string `json:"child_id"`
	CurrentStreak  int    `json:"current_streak"`
	LongestStreak  int    `json:"longest_streak"`
	PreviousStreak int    `json:"previous_streak"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_id":        e.ChildID,
		"current_streak":  e.CurrentStreak,
		"longest_streak":  e.LongestStreak,
		"previous_streak": e.PreviousStreak,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(childID string, current, longest, previous int) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:      NewBaseEvent(EventStreakUpdated, childID),
		ChildID:        childID,
		CurrentStreak:  current,
		LongestStreak:  longest,
		PreviousStreak: previous,
	}
}

// LevelUpEvent is emitted when a child's level rises after a points credit.
type LevelUpEvent struct {
	BaseEvent
	ChildID  string `json:"child_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_id":  e.ChildID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(childID string, oldLevel, newLevel int) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, childID),
		ChildID:   childID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Goal Events
// ═══════════════════════════════════════════════════════════════════════════

// GoalCompletedEvent is emitted exactly once when a goal reaches its target.
type GoalCompletedEvent struct {
	BaseEvent
	ChildID      string    `json:"child_id"`
	GoalID       string    `json:"goal_id"`
	GoalType     string    `json:"goal_type"`
	RewardPoints int       `json:"reward_points"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Payload implements Event interface.
func (e GoalCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_id":      e.ChildID,
		"goal_id":       e.GoalID,
		"goal_type":     e.GoalType,
		"reward_points": e.RewardPoints,
		"completed_at":  e.CompletedAt,
	}
}

// NewGoalCompletedEvent creates a new GoalCompletedEvent.
func NewGoalCompletedEvent(childID, goalID, goalType string, rewardPoints int, completedAt time.Time) GoalCompletedEvent {
	return GoalCompletedEvent{
		BaseEvent:    NewBaseEvent(EventGoalCompleted, goalID),
		ChildID:      childID,
		GoalID:       goalID,
		GoalType:     goalType,
		RewardPoints: rewardPoints,
		CompletedAt:  completedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementEarnedEvent is emitted exactly once per (child, definition).
type AchievementEarnedEvent struct {
	BaseEvent
	ChildID      string    `json:"child_id"`
	DefinitionID string    `json:"definition_id"`
	Name         string    `json:"name"`
	EarnedAt     time.Time `json:"earned_at"`
}

// Payload implements Event interface.
func (e AchievementEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_id":      e.ChildID,
		"definition_id": e.DefinitionID,
		"name":          e.Name,
		"earned_at":     e.EarnedAt,
	}
}

// NewAchievementEarnedEvent creates a new AchievementEarnedEvent.
func NewAchievementEarnedEvent(childID, definitionID, name string, earnedAt time.Time) AchievementEarnedEvent {
	return AchievementEarnedEvent{
		BaseEvent:    NewBaseEvent(EventAchievementEarned, childID),
		ChildID:      childID,
		DefinitionID: definitionID,
		Name:         name,
		EarnedAt:     earnedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reward Claim Events
// ═══════════════════════════════════════════════════════════════════════════

// ClaimDecidedEvent is emitted when a pending claim reaches a terminal state.
type ClaimDecidedEvent struct {
	BaseEvent
	ChildID    string `json:"child_id"`
	ClaimID    string `json:"claim_id"`
	RewardID   string `json:"reward_id"`
	Decision   string `json:"decision"` // approved | denied
	DeciderID  string `json:"decider_id"`
	PointsSpent int   `json:"points_spent"` // 0 when denied
}

// Payload implements Event interface.
func (e ClaimDecidedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_id":     e.ChildID,
		"claim_id":     e.ClaimID,
		"reward_id":    e.RewardID,
		"decision":     e.Decision,
		"decider_id":   e.DeciderID,
		"points_spent": e.PointsSpent,
	}
}

// NewClaimDecidedEvent creates a new ClaimDecidedEvent.
func NewClaimDecidedEvent(childID, claimID, rewardID, decision, deciderID string, pointsSpent int) ClaimDecidedEvent {
	return ClaimDecidedEvent{
		BaseEvent:   NewBaseEvent(EventClaimDecided, claimID),
		ChildID:     childID,
		ClaimID:     claimID,
		RewardID:    rewardID,
		Decision:    decision,
		DeciderID:   deciderID,
		PointsSpent: pointsSpent,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// BalanceDriftEvent reports a reconciliation mismatch. It is surfaced, never
// silently repaired.
type BalanceDriftEvent struct {
	BaseEvent
	ChildID        string `json:"child_id"`
	StoredBalance  int    `json:"stored_balance"`
	DerivedBalance int    `json:"derived_balance"`
	Repaired       bool   `json:"repaired"`
}

// Payload implements Event interface.
func (e BalanceDriftEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"child_id":        e.ChildID,
		"stored_balance":  e.StoredBalance,
		"derived_balance": e.DerivedBalance,
		"repaired":        e.Repaired,
	}
}

// NewBalanceDriftEvent creates a new BalanceDriftEvent.
func NewBalanceDriftEvent(childID string, stored, derived int, repaired bool) BalanceDriftEvent {
	t := EventBalanceDriftDetected
	if repaired {
		t = EventBalanceRepaired
	}
	return BalanceDriftEvent{
		BaseEvent:      NewBaseEvent(t, childID),
		ChildID:        childID,
		StoredBalance:  stored,
		DerivedBalance: derived,
		Repaired:       repaired,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher publishes events to subscribers.
type EventPublisher interface {
	// Publish sends an event to all subscribed handlers.
	Publish(event Event) error
}

// EventSubscriber allows subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber

	// Close shuts down the event bus.
	Close() error
}
