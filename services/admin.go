package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"landmark-quest/logger"
	"landmark-quest/models"
)

type NodeResult struct {
	Outcome
	Node *models.Node `json:"node,omitempty"`
}

// AdminService is the privileged mutation surface. Point-affecting changes go
// through the claim engine so they share its locking and transaction.
type AdminService struct {
	engine   *ClaimEngine
	catalog  *CatalogService
	settings *SettingsService
	profiles *ProfileService
	nudgers  []Nudger
}

func NewAdminService(engine *ClaimEngine, catalog *CatalogService, settings *SettingsService, profiles *ProfileService) *AdminService {
	return &AdminService{engine: engine, catalog: catalog, settings: settings, profiles: profiles}
}

// Subscribe registers n to be nudged after catalog changes.
func (s *AdminService) Subscribe(n Nudger) {
	s.nudgers = append(s.nudgers, n)
}

func audit(action string, fields logrus.Fields) *logrus.Entry {
	fields["action"] = action
	return logger.WithFields(fields)
}

func (s *AdminService) ForceSetNodeStreak(ctx context.Context, playerID, nodeID string, value int) (StreakOverride, error) {
	res, err := s.engine.ForceStreak(ctx, playerID, nodeID, value)
	if err != nil {
		return StreakOverride{}, err
	}
	audit("force_streak", logrus.Fields{
		"player_id": playerID,
		"node_id":   nodeID,
		"from":      res.PreviousStreak,
		"to":        value,
		"awarded":   res.Awarded,
	}).Infof("[ADMIN] %s", res.Message)
	return res, nil
}

// CreateNode deploys a node, or restores a purged one with the same name.
func (s *AdminService) CreateNode(ctx context.Context, in NodeInput) (NodeResult, error) {
	node, err := s.catalog.CreateNode(ctx, in)
	if errors.Is(err, ErrInvalidNode) {
		return NodeResult{Outcome: rejected("Deployment Failed: %v", err)}, nil
	}
	if err != nil {
		return NodeResult{}, err
	}
	audit("create_node", logrus.Fields{"node_id": node.ID}).Info("[ADMIN] node deployed")
	s.nudgeAll()
	return NodeResult{Outcome: applied("Deployed!"), Node: node}, nil
}

// PurgeNode removes a node for everyone. Existing claim records and the
// points they earned are kept; the node simply stops being evaluated.
func (s *AdminService) PurgeNode(ctx context.Context, nodeID string) (Outcome, error) {
	err := s.catalog.PurgeNode(ctx, nodeID)
	if errors.Is(err, ErrUnknownNode) {
		return rejected("Purge Failed: node %s not found", nodeID), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	audit("purge_node", logrus.Fields{"node_id": nodeID}).Info("[ADMIN] node purged")
	s.nudgeAll()
	return applied("Global Purge Success"), nil
}

func (s *AdminService) AdjustGlobalRadii(ctx context.Context, r Radii) (RadiiResult, error) {
	res, err := s.settings.SetGlobal(ctx, r)
	if err != nil {
		return RadiiResult{}, err
	}
	audit("global_radii", logrus.Fields{"detection": r.Detection, "claim": r.Claim, "applied": res.Applied}).
		Infof("[ADMIN] %s", res.Message)
	return res, nil
}

// AdjustPlayerRadii overrides one player's radii; nil clears an override.
func (s *AdminService) AdjustPlayerRadii(ctx context.Context, playerID string, detection, claim *float64) (RadiiResult, error) {
	if playerID == "" {
		return RadiiResult{}, ErrMissingPlayer
	}
	res, err := s.settings.SetPlayer(ctx, playerID, detection, claim)
	if err != nil {
		return RadiiResult{}, err
	}
	audit("player_radii", logrus.Fields{"player_id": playerID, "applied": res.Applied}).
		Infof("[ADMIN] %s", res.Message)
	return res, nil
}

func (s *AdminService) ResetUsernameCooldown(ctx context.Context, playerID string) (Outcome, error) {
	if playerID == "" {
		return Outcome{}, ErrMissingPlayer
	}
	res, err := s.profiles.ResetCooldown(ctx, playerID)
	if err != nil {
		return Outcome{}, fmt.Errorf("reset username cooldown: %w", err)
	}
	audit("reset_username_cooldown", logrus.Fields{"player_id": playerID}).Infof("[ADMIN] %s", res.Message)
	return res, nil
}

func (s *AdminService) nudgeAll() {
	for _, n := range s.nudgers {
		n.Nudge("")
	}
}
