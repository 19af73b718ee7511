// Package postgres implements the PostgreSQL persistence layer for the
// progress engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE FAMILIES AND CHILDREN
// ══════════════════════════════════════════════════════════════════════════════

const migration001 = `
-- Migration: Create families and children tables
-- Version: 001

-- Families group children under a shared parent account
CREATE TABLE IF NOT EXISTS families (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name VARCHAR(100) NOT NULL,
    parent_pin_hash TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Children carry the denormalized progress state (points, streaks, level).
-- total_points is always derivable from the ledger; the column exists so
-- reads are cheap, and reconciliation audits the two against each other.
CREATE TABLE IF NOT EXISTS children (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    family_id UUID NOT NULL REFERENCES families(id) ON DELETE CASCADE,
    display_name VARCHAR(100) NOT NULL,
    timezone VARCHAR(64) NOT NULL,
    total_points INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    islamic_level INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- Constraints for data integrity
    CONSTRAINT valid_points CHECK (total_points >= 0),
    CONSTRAINT valid_streaks CHECK (current_streak >= 0 AND current_streak <= longest_streak),
    CONSTRAINT valid_level CHECK (islamic_level >= 1)
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_children_family_id ON children(family_id);
CREATE INDEX IF NOT EXISTS idx_children_family_points ON children(family_id, total_points DESC);

-- Updated_at trigger function for automatic timestamp updates
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_children_updated_at ON children;
CREATE TRIGGER update_children_updated_at
    BEFORE UPDATE ON children
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ACTIVITIES
// ══════════════════════════════════════════════════════════════════════════════

const migration002 = `
-- Migration: Create the activity ledger
-- Version: 002

-- Append-only ledger of completed activities. Rows are never updated or
-- deleted; the unique (child_id, dedup_key) pair makes replays harmless.
CREATE TABLE IF NOT EXISTS activities (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    child_id UUID NOT NULL REFERENCES children(id) ON DELETE CASCADE,
    activity_type VARCHAR(30) NOT NULL,
    points_value INTEGER NOT NULL,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    dedup_key VARCHAR(120) NOT NULL,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(child_id, dedup_key),
    CONSTRAINT valid_activity_type CHECK (activity_type IN (
        'prayer_completed', 'story_finished', 'quiz_completed',
        'dhikr_completed', 'quran_recited', 'good_deed', 'game_played'
    )),
    CONSTRAINT valid_points_value CHECK (points_value >= 0)
);

CREATE INDEX IF NOT EXISTS idx_activities_child_occurred ON activities(child_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_activities_child_type ON activities(child_id, activity_type);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE GOALS
// ══════════════════════════════════════════════════════════════════════════════

const migration003 = `
-- Migration: Create goals table
-- Version: 003

-- Parent-defined goals. completed_at doubles as the terminal-state guard:
-- completion updates use WHERE completed_at IS NULL so the reward credits
-- exactly once.
CREATE TABLE IF NOT EXISTS goals (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    child_id UUID NOT NULL REFERENCES children(id) ON DELETE CASCADE,
    goal_type VARCHAR(30) NOT NULL,
    title VARCHAR(150) NOT NULL,
    target_value INTEGER NOT NULL,
    current_value INTEGER NOT NULL DEFAULT 0,
    deadline TIMESTAMP WITH TIME ZONE,
    reward_points INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_goal_type CHECK (goal_type IN (
        'daily_prayers', 'story_reading', 'quran_journey',
        'dhikr_practice', 'points_target'
    )),
    CONSTRAINT valid_target CHECK (target_value > 0),
    CONSTRAINT valid_progress CHECK (current_value >= 0 AND current_value <= target_value),
    CONSTRAINT valid_reward CHECK (reward_points >= 0)
);

CREATE INDEX IF NOT EXISTS idx_goals_child_id ON goals(child_id);
CREATE INDEX IF NOT EXISTS idx_goals_active ON goals(child_id) WHERE completed_at IS NULL;

DROP TRIGGER IF EXISTS update_goals_updated_at ON goals;
CREATE TRIGGER update_goals_updated_at
    BEFORE UPDATE ON goals
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: CREATE ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration004 = `
-- Migration: Create achievements table
-- Version: 004

-- Per-child achievement state. Definitions live in code; a row exists once
-- the child has any progress toward the badge. earned_at IS NULL guards the
-- one-time award, UNIQUE(child_id, achievement_id) guards concurrent upserts.
CREATE TABLE IF NOT EXISTS child_achievements (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    child_id UUID NOT NULL REFERENCES children(id) ON DELETE CASCADE,
    achievement_id VARCHAR(50) NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    earned_at TIMESTAMP WITH TIME ZONE,
    celebration_viewed BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(child_id, achievement_id),
    CONSTRAINT valid_achievement_progress CHECK (progress >= 0 AND progress <= 100)
);

CREATE INDEX IF NOT EXISTS idx_child_achievements_child ON child_achievements(child_id);
CREATE INDEX IF NOT EXISTS idx_child_achievements_earned ON child_achievements(child_id, earned_at DESC)
    WHERE earned_at IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_child_achievements_unviewed ON child_achievements(child_id)
    WHERE earned_at IS NOT NULL AND celebration_viewed = FALSE;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 005: CREATE REWARDS
// ══════════════════════════════════════════════════════════════════════════════

const migration005 = `
-- Migration: Create rewards and reward claims
-- Version: 005

-- Family reward catalog (screen time, outings, treats)
CREATE TABLE IF NOT EXISTS rewards (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    family_id UUID NOT NULL REFERENCES families(id) ON DELETE CASCADE,
    title VARCHAR(150) NOT NULL,
    points_required INTEGER NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_points_required CHECK (points_required > 0)
);

CREATE INDEX IF NOT EXISTS idx_rewards_family ON rewards(family_id) WHERE active = TRUE;

-- Claims carry a snapshot of points_required so later catalog edits do not
-- change the cost of an in-flight claim. status = 'pending' is the CAS guard
-- for the approve/deny transition.
CREATE TABLE IF NOT EXISTS reward_claims (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    reward_id UUID NOT NULL REFERENCES rewards(id) ON DELETE CASCADE,
    child_id UUID NOT NULL REFERENCES children(id) ON DELETE CASCADE,
    points_required INTEGER NOT NULL,
    status VARCHAR(10) NOT NULL DEFAULT 'pending',
    claimed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    decided_at TIMESTAMP WITH TIME ZONE,
    decided_by VARCHAR(64) NOT NULL DEFAULT '',

    CONSTRAINT valid_claim_status CHECK (status IN ('pending', 'approved', 'denied')),
    CONSTRAINT valid_claim_cost CHECK (points_required > 0)
);

CREATE INDEX IF NOT EXISTS idx_reward_claims_child ON reward_claims(child_id, claimed_at DESC);
CREATE INDEX IF NOT EXISTS idx_reward_claims_pending ON reward_claims(child_id) WHERE status = 'pending';
`

// GetMigrations returns the engine schema in version order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_families_children", SQL: migration001},
		{Version: 2, Name: "create_activities", SQL: migration002},
		{Version: 3, Name: "create_goals", SQL: migration003},
		{Version: 4, Name: "create_achievements", SQL: migration004},
		{Version: 5, Name: "create_rewards", SQL: migration005},
	}
}
