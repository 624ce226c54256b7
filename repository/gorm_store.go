package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"landmark-quest/models"
)

// OpenPostgres connects with error translation enabled so unique violations
// surface as gorm.ErrDuplicatedKey.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Node{},
		&models.ClaimRecord{},
		&models.ClaimEvent{},
		&models.PlayerProgress{},
		&models.GlobalSettings{},
	)
}

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{DB: tx})
	})
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

// --- Nodes ---

func (s *GormStore) ListNodes(ctx context.Context) ([]models.Node, error) {
	var nodes []models.Node
	err := s.DB.WithContext(ctx).Order("id ASC").Find(&nodes).Error
	return nodes, translate(err)
}

func (s *GormStore) GetNode(ctx context.Context, id string) (*models.Node, error) {
	var node models.Node
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&node).Error; err != nil {
		return nil, translate(err)
	}
	return &node, nil
}

// UpsertNode creates the node or overwrites it, restoring a purged node with the same id.
func (s *GormStore) UpsertNode(ctx context.Context, node *models.Node) error {
	node.DeletedAt = gorm.DeletedAt{}
	err := s.DB.WithContext(ctx).Unscoped().Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "latitude", "longitude", "points", "updated_at", "deleted_at"}),
	}).Create(node).Error
	return translate(err)
}

// DeleteNode soft-deletes; claim records keep pointing at the retained row.
func (s *GormStore) DeleteNode(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Node{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Claim records ---

func (s *GormStore) GetClaimRecord(ctx context.Context, playerID, nodeID string) (*models.ClaimRecord, error) {
	var rec models.ClaimRecord
	err := s.DB.WithContext(ctx).
		Where("player_id = ? AND node_id = ?", playerID, nodeID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *GormStore) ListClaimRecords(ctx context.Context, playerID string) ([]models.ClaimRecord, error) {
	var recs []models.ClaimRecord
	err := s.DB.WithContext(ctx).Where("player_id = ?", playerID).Order("node_id ASC").Find(&recs).Error
	return recs, translate(err)
}

// UpsertClaimRecords writes every record in one statement.
func (s *GormStore) UpsertClaimRecords(ctx context.Context, playerID string, records []models.ClaimRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		records[i].PlayerID = playerID
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "node_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_claim_at", "streak", "updated_at"}),
	}).Create(&records).Error
	return translate(err)
}

func (s *GormStore) DeleteClaimRecord(ctx context.Context, playerID, nodeID string) (bool, error) {
	res := s.DB.WithContext(ctx).
		Where("player_id = ? AND node_id = ?", playerID, nodeID).
		Delete(&models.ClaimRecord{})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) CountClaimsByPlayer(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		PlayerID string
		Count    int
	}
	err := s.DB.WithContext(ctx).
		Model(&models.ClaimRecord{}).
		Select("player_id, COUNT(*) AS count").
		Group("player_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.PlayerID] = r.Count
	}
	return counts, nil
}

// --- Progress ---

// EnsureProgress returns the player's progress row, creating it on first use (idempotent).
func (s *GormStore) EnsureProgress(ctx context.Context, playerID string) (*models.PlayerProgress, error) {
	db := s.DB.WithContext(ctx)

	prog := models.PlayerProgress{ExternalUserID: playerID}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(&prog).Error; err != nil {
		return nil, translate(err)
	}

	var out models.PlayerProgress
	if err := db.Where("external_user_id = ?", playerID).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

func (s *GormStore) ListProgress(ctx context.Context) ([]models.PlayerProgress, error) {
	var all []models.PlayerProgress
	err := s.DB.WithContext(ctx).Find(&all).Error
	return all, translate(err)
}

// AddPoints applies delta atomically; the total never drops below zero.
func (s *GormStore) AddPoints(ctx context.Context, playerID string, delta int64) error {
	res := s.DB.WithContext(ctx).
		Model(&models.PlayerProgress{}).
		Where("external_user_id = ? AND total_points + ? >= 0", playerID, delta).
		Update("total_points", gorm.Expr("total_points + ?", delta))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("add %d points for %s: %w", delta, playerID, ErrNotFound)
	}
	return nil
}

func (s *GormStore) SaveActivityStreak(ctx context.Context, playerID string, streak int, lastVisit time.Time) error {
	return s.updateProgress(ctx, playerID, map[string]interface{}{
		"activity_streak": streak,
		"last_visit_at":   lastVisit,
	})
}

func (s *GormStore) FindByUsernameKey(ctx context.Context, key string) (*models.PlayerProgress, error) {
	var prog models.PlayerProgress
	if err := s.DB.WithContext(ctx).Where("username_key = ?", key).First(&prog).Error; err != nil {
		return nil, translate(err)
	}
	return &prog, nil
}

func (s *GormStore) SetUsername(ctx context.Context, playerID, username, key string, changedAt *time.Time) error {
	return s.updateProgress(ctx, playerID, map[string]interface{}{
		"username":             username,
		"username_key":         key,
		"last_username_change": changedAt,
	})
}

func (s *GormStore) ClearUsernameChange(ctx context.Context, playerID string) error {
	return s.updateProgress(ctx, playerID, map[string]interface{}{
		"last_username_change": nil,
	})
}

func (s *GormStore) SetPlayerRadii(ctx context.Context, playerID string, detection, claim *float64) error {
	return s.updateProgress(ctx, playerID, map[string]interface{}{
		"detection_radius": detection,
		"claim_radius":     claim,
	})
}

func (s *GormStore) updateProgress(ctx context.Context, playerID string, fields map[string]interface{}) error {
	res := s.DB.WithContext(ctx).
		Model(&models.PlayerProgress{}).
		Where("external_user_id = ?", playerID).
		Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Ledger ---

func (s *GormStore) AppendClaimEvents(ctx context.Context, events []models.ClaimEvent) error {
	if len(events) == 0 {
		return nil
	}
	return translate(s.DB.WithContext(ctx).Create(&events).Error)
}

func (s *GormStore) ListClaimEvents(ctx context.Context, playerID string) ([]models.ClaimEvent, error) {
	var events []models.ClaimEvent
	err := s.DB.WithContext(ctx).
		Where("player_id = ?", playerID).
		Order("created_at ASC").
		Find(&events).Error
	return events, translate(err)
}

func (s *GormStore) ClaimedNodesOn(ctx context.Context, playerID, day string) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).
		Model(&models.ClaimEvent{}).
		Where("player_id = ? AND claim_day = ?", playerID, day).
		Where("kind = ? OR points > 0", models.ClaimEventClaim).
		Distinct().
		Pluck("node_id", &ids).Error
	return ids, translate(err)
}

func (s *GormStore) NodeLedgerOn(ctx context.Context, playerID, nodeID, day string) (NodeLedger, error) {
	var row struct {
		Points int64
		Claims int64
	}
	err := s.DB.WithContext(ctx).
		Model(&models.ClaimEvent{}).
		Select("COALESCE(SUM(points), 0) AS points, COUNT(CASE WHEN kind = ? THEN 1 END) AS claims", models.ClaimEventClaim).
		Where("player_id = ? AND node_id = ? AND claim_day = ?", playerID, nodeID, day).
		Scan(&row).Error
	if err != nil {
		return NodeLedger{}, translate(err)
	}
	return NodeLedger{Points: row.Points, Claimed: row.Claims > 0}, nil
}

func (s *GormStore) PageClaimEvents(ctx context.Context, playerID string, offset, limit int) ([]models.ClaimEvent, int64, error) {
	// Session makes the scoped query safe to reuse for both statements
	db := s.DB.WithContext(ctx).Model(&models.ClaimEvent{}).Where("player_id = ?", playerID).Session(&gorm.Session{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	var events []models.ClaimEvent
	err := db.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, translate(err)
}

// --- Settings ---

// GetGlobalSettings returns the settings row, seeding it from defaults on first use.
// Concurrent first reads are safe: the seed insert ignores conflicts.
func (s *GormStore) GetGlobalSettings(ctx context.Context, defaults models.GlobalSettings) (*models.GlobalSettings, error) {
	db := s.DB.WithContext(ctx)

	seed := models.GlobalSettings{
		ID:              models.GlobalSettingsID,
		DetectionRadius: defaults.DetectionRadius,
		ClaimRadius:     defaults.ClaimRadius,
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, translate(err)
	}

	var settings models.GlobalSettings
	if err := db.First(&settings, models.GlobalSettingsID).Error; err != nil {
		return nil, translate(err)
	}
	return &settings, nil
}

func (s *GormStore) SaveGlobalSettings(ctx context.Context, settings *models.GlobalSettings) error {
	settings.ID = models.GlobalSettingsID
	return translate(s.DB.WithContext(ctx).Save(settings).Error)
}
