package repository

import (
	"context"
	"errors"
	"time"

	"landmark-quest/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// NodeStore is the shared node catalog.
type NodeStore interface {
	ListNodes(ctx context.Context) ([]models.Node, error)
	GetNode(ctx context.Context, id string) (*models.Node, error)
	UpsertNode(ctx context.Context, node *models.Node) error
	DeleteNode(ctx context.Context, id string) error
}

// ClaimStore holds per (player, node) claim state.
type ClaimStore interface {
	// GetClaimRecord returns nil, nil when the player never claimed the node.
	GetClaimRecord(ctx context.Context, playerID, nodeID string) (*models.ClaimRecord, error)
	ListClaimRecords(ctx context.Context, playerID string) ([]models.ClaimRecord, error)
	UpsertClaimRecords(ctx context.Context, playerID string, records []models.ClaimRecord) error
	DeleteClaimRecord(ctx context.Context, playerID, nodeID string) (bool, error)
	CountClaimsByPlayer(ctx context.Context) (map[string]int, error)
}

// ProgressStore holds the per-player aggregate.
type ProgressStore interface {
	EnsureProgress(ctx context.Context, playerID string) (*models.PlayerProgress, error)
	ListProgress(ctx context.Context) ([]models.PlayerProgress, error)
	AddPoints(ctx context.Context, playerID string, delta int64) error
	SaveActivityStreak(ctx context.Context, playerID string, streak int, lastVisit time.Time) error
	FindByUsernameKey(ctx context.Context, key string) (*models.PlayerProgress, error)
	SetUsername(ctx context.Context, playerID, username, key string, changedAt *time.Time) error
	ClearUsernameChange(ctx context.Context, playerID string) error
	SetPlayerRadii(ctx context.Context, playerID string, detection, claim *float64) error
}

// NodeLedger is one node's ledger total for one day.
type NodeLedger struct {
	Points  int64
	Claimed bool // a regular claim row exists
}

// LedgerStore is the append-only award history.
type LedgerStore interface {
	AppendClaimEvents(ctx context.Context, events []models.ClaimEvent) error
	ListClaimEvents(ctx context.Context, playerID string) ([]models.ClaimEvent, error)
	// ClaimedNodesOn lists nodes already paid for on day (YYYY-MM-DD): a regular
	// claim, or an admin streak award with points.
	ClaimedNodesOn(ctx context.Context, playerID, day string) ([]string, error)
	// NodeLedgerOn sums what one node paid the player on day.
	NodeLedgerOn(ctx context.Context, playerID, nodeID, day string) (NodeLedger, error)
	// PageClaimEvents returns newest first, with the player's total event count.
	PageClaimEvents(ctx context.Context, playerID string, offset, limit int) ([]models.ClaimEvent, int64, error)
}

// SettingsStore holds the global radii row.
type SettingsStore interface {
	GetGlobalSettings(ctx context.Context, defaults models.GlobalSettings) (*models.GlobalSettings, error)
	SaveGlobalSettings(ctx context.Context, settings *models.GlobalSettings) error
}

// Store is everything the engine persists. Transaction runs fn against a
// Store bound to a single database transaction; fn's error rolls it back.
type Store interface {
	NodeStore
	ClaimStore
	ProgressStore
	LedgerStore
	SettingsStore

	Transaction(ctx context.Context, fn func(tx Store) error) error
}
