package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"landmark-quest/logger"
	"landmark-quest/metrics"
	"landmark-quest/models"
	"landmark-quest/repository"
	"landmark-quest/utils"
)

// ─── Selector ───────────────────────────────────────────────────────────────

type SelectorKind int

const (
	SelectByNode SelectorKind = iota + 1
	SelectByPosition
)

// Selector names what a claim targets: one node by id, or every node within
// the detection radius of a position.
type Selector struct {
	kind     SelectorKind
	nodeID   string
	position utils.Position
}

func ByNode(nodeID string) Selector {
	return Selector{kind: SelectByNode, nodeID: nodeID}
}

func ByPosition(pos utils.Position) Selector {
	return Selector{kind: SelectByPosition, position: pos}
}

func (s Selector) key() string {
	if s.kind == SelectByNode {
		return "node:" + s.nodeID
	}
	return "pos:" + strconv.FormatFloat(s.position.Latitude, 'f', 7, 64) +
		"," + strconv.FormatFloat(s.position.Longitude, 'f', 7, 64)
}

// ─── Result ─────────────────────────────────────────────────────────────────

type ClaimStatus string

const (
	ClaimSecured        ClaimStatus = "secured"
	ClaimAlreadySecured ClaimStatus = "already_secured"
	ClaimNothingInRange ClaimStatus = "nothing_in_range"
)

// NodeAward is one node's contribution to a claim.
type NodeAward struct {
	NodeID     string  `json:"node_id"`
	Name       string  `json:"name"`
	BasePoints int64   `json:"base_points"`
	Streak     int     `json:"streak"`
	Multiplier float64 `json:"multiplier"`
	Earned     int64   `json:"earned"`
}

// ClaimResult is the outcome of one claim call. Only ClaimSecured changes
// state; the other statuses are soft outcomes with a message for the player.
type ClaimResult struct {
	Status      ClaimStatus `json:"status"`
	Message     string      `json:"message"`
	Claimed     []NodeAward `json:"claimed"`
	Skipped     []string    `json:"skipped"`
	TotalEarned int64       `json:"total_earned"`
	TotalPoints int64       `json:"total_points"`

	ActivityStreak int  `json:"activity_streak"`
	StreakAdvanced bool `json:"streak_advanced"`
}

func (r ClaimResult) SkippedCount() int { return len(r.Skipped) }

// ─── Engine ─────────────────────────────────────────────────────────────────

type ClaimEngineConfig struct {
	Location     *time.Location
	WriteTimeout time.Duration
	Policy       MultiplierPolicy
	Clock        clockwork.Clock
}

// ClaimEngine decides claim eligibility and applies awards. Claims for one
// player run one at a time; identical in-flight requests share one result.
// Claim records, the point total, the activity streak and the ledger are
// written in a single transaction.
type ClaimEngine struct {
	store    repository.Store
	catalog  *CatalogService
	settings *SettingsService
	notifier Notifier

	policy       MultiplierPolicy
	clock        clockwork.Clock
	loc          *time.Location
	writeTimeout time.Duration

	inflight singleflight.Group
	players  *keyedMutex
	nudgers  []Nudger
}

func NewClaimEngine(store repository.Store, catalog *CatalogService, settings *SettingsService, notifier Notifier, cfg ClaimEngineConfig) *ClaimEngine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Policy.tiers == nil {
		cfg.Policy = DefaultMultiplierPolicy
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &ClaimEngine{
		store:        store,
		catalog:      catalog,
		settings:     settings,
		notifier:     notifier,
		policy:       cfg.Policy,
		clock:        cfg.Clock,
		loc:          cfg.Location,
		writeTimeout: cfg.WriteTimeout,
		players:      newKeyedMutex(),
	}
}

// Policy is the multiplier table claims are paid with.
func (e *ClaimEngine) Policy() MultiplierPolicy {
	return e.policy
}

// Subscribe registers n to be nudged after the player's claim state changes.
func (e *ClaimEngine) Subscribe(n Nudger) {
	e.nudgers = append(e.nudgers, n)
}

func (e *ClaimEngine) changed(playerID string) {
	for _, n := range e.nudgers {
		n.Nudge(playerID)
	}
}

func (e *ClaimEngine) notify(ctx context.Context, playerID string, sev Severity, msg string) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, playerID, sev, msg)
	}
}

// Claim secures every eligible node the selector resolves to.
// A non-nil error means nothing was committed; it wraps
// ErrStorageUnavailable when the write failed and is safe to retry.
func (e *ClaimEngine) Claim(ctx context.Context, playerID string, sel Selector) (ClaimResult, error) {
	if playerID == "" {
		return ClaimResult{}, ErrMissingPlayer
	}
	switch sel.kind {
	case SelectByPosition:
		if !sel.position.Valid() {
			return ClaimResult{}, fmt.Errorf("%w: (%v, %v)", ErrInvalidPosition, sel.position.Latitude, sel.position.Longitude)
		}
	case SelectByNode:
	default:
		return ClaimResult{}, errors.New("claim selector not set")
	}

	v, err, shared := e.inflight.Do(playerID+"|"+sel.key(), func() (interface{}, error) {
		// coalesced callers wait on this run, so it must outlive the first caller
		return e.claim(context.WithoutCancel(ctx), playerID, sel)
	})
	if shared {
		metrics.ClaimsCoalesced.Inc()
	}
	if err != nil {
		return ClaimResult{}, err
	}
	return v.(ClaimResult), nil
}

func (e *ClaimEngine) claim(ctx context.Context, playerID string, sel Selector) (ClaimResult, error) {
	unlock := e.players.Lock(playerID)
	defer unlock()

	start := e.clock.Now()
	defer func() { metrics.ClaimDuration.Observe(e.clock.Since(start).Seconds()) }()

	log := logger.WithFields(logrus.Fields{"player_id": playerID, "selector": sel.key()})

	readCtx, cancel := context.WithTimeout(ctx, e.writeTimeout)
	candidates, err := e.resolve(readCtx, playerID, sel)
	cancel()
	if err != nil {
		metrics.ClaimOutcomes.WithLabelValues("failed").Inc()
		return ClaimResult{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if len(candidates) == 0 {
		res := ClaimResult{Status: ClaimNothingInRange, Message: "No nodes in range", Claimed: []NodeAward{}, Skipped: []string{}}
		metrics.ClaimOutcomes.WithLabelValues(string(res.Status)).Inc()
		e.notify(ctx, playerID, SeverityInfo, res.Message)
		return res, nil
	}

	res, err := e.commit(ctx, playerID, sel, candidates)
	if errors.Is(err, repository.ErrDuplicate) {
		// another writer secured a node first; re-reading turns it into a skip
		log.Warnf("[CLAIM] duplicate claim detected, re-evaluating: %v", err)
		res, err = e.commit(ctx, playerID, sel, candidates)
	}
	if err != nil {
		metrics.ClaimOutcomes.WithLabelValues("failed").Inc()
		log.Errorf("[CLAIM] ❌ claim write failed: %v", err)
		e.notify(ctx, playerID, SeverityError, "Sync Error")
		return ClaimResult{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	metrics.ClaimOutcomes.WithLabelValues(string(res.Status)).Inc()
	if res.Status != ClaimSecured {
		e.notify(ctx, playerID, SeverityInfo, res.Message)
		return res, nil
	}

	metrics.NodesClaimed.Add(float64(len(res.Claimed)))
	metrics.PointsAwarded.WithLabelValues("claim").Add(float64(res.TotalEarned))
	log.Infof("[CLAIM] ✅ secured %d node(s) for +%d (total %d)", len(res.Claimed), res.TotalEarned, res.TotalPoints)

	e.notify(ctx, playerID, SeveritySuccess, res.Message)
	e.changed(playerID)
	return res, nil
}

// resolve turns the selector into catalog nodes. It runs before the write
// transaction opens.
func (e *ClaimEngine) resolve(ctx context.Context, playerID string, sel Selector) ([]models.Node, error) {
	if sel.kind == SelectByNode {
		node, ok, err := e.catalog.Node(ctx, sel.nodeID)
		if err != nil || !ok {
			return nil, err
		}
		return []models.Node{node}, nil
	}

	nodes, err := e.catalog.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	radii, err := e.settings.Radii(ctx, playerID)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		node models.Node
		dist float64
	}
	var inRange []candidate
	for _, n := range nodes {
		d := utils.Distance(sel.position, utils.Position{Latitude: n.Latitude, Longitude: n.Longitude})
		if d <= radii.Detection {
			inRange = append(inRange, candidate{node: n, dist: d})
		}
	}
	sort.SliceStable(inRange, func(i, j int) bool { return inRange[i].dist < inRange[j].dist })

	out := make([]models.Node, len(inRange))
	for i, c := range inRange {
		out[i] = c.node
	}
	return out, nil
}

// nodeStreak is the per-node counter after a claim. Unlike the activity
// streak it counts claims, so days without a visit do not reset it.
func nodeStreak(rec *models.ClaimRecord) int {
	if rec == nil {
		return 1
	}
	return rec.Streak + 1
}

func (e *ClaimEngine) commit(ctx context.Context, playerID string, sel Selector, candidates []models.Node) (ClaimResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.writeTimeout)
	defer cancel()

	now := e.clock.Now()
	day := DayKey(now, e.loc)

	var res ClaimResult
	err := e.store.Transaction(ctx, func(tx repository.Store) error {
		res = ClaimResult{Claimed: []NodeAward{}, Skipped: []string{}}

		prog, err := tx.EnsureProgress(ctx, playerID)
		if err != nil {
			return fmt.Errorf("load progress: %w", err)
		}

		// the ledger also covers nodes forgotten earlier today
		ledgered, err := tx.ClaimedNodesOn(ctx, playerID, day)
		if err != nil {
			return fmt.Errorf("read ledger: %w", err)
		}
		claimedToday := make(map[string]bool, len(ledgered))
		for _, id := range ledgered {
			claimedToday[id] = true
		}

		var (
			staged []models.ClaimRecord
			events []models.ClaimEvent
		)
		for _, node := range candidates {
			rec, err := tx.GetClaimRecord(ctx, playerID, node.ID)
			if err != nil {
				return fmt.Errorf("read claim %s: %w", node.ID, err)
			}
			if claimedToday[node.ID] || (rec != nil && rec.LastClaimAt != nil && SameDay(*rec.LastClaimAt, now, e.loc)) {
				res.Skipped = append(res.Skipped, node.ID)
				continue
			}

			streak := nodeStreak(rec)
			mult := e.policy.For(streak)
			earned := EarnedPoints(node.Points, mult)

			res.Claimed = append(res.Claimed, NodeAward{
				NodeID:     node.ID,
				Name:       node.Name,
				BasePoints: node.Points,
				Streak:     streak,
				Multiplier: mult,
				Earned:     earned,
			})
			res.TotalEarned += earned

			claimedAt := now
			staged = append(staged, models.ClaimRecord{NodeID: node.ID, LastClaimAt: &claimedAt, Streak: streak})
			events = append(events, models.ClaimEvent{
				PlayerID:   playerID,
				NodeID:     node.ID,
				ClaimDay:   day,
				Kind:       models.ClaimEventClaim,
				Streak:     streak,
				Multiplier: mult,
				Points:     earned,
			})
		}

		res.TotalPoints = prog.TotalPoints
		res.ActivityStreak = prog.ActivityStreak
		if len(staged) == 0 {
			return nil
		}

		if err := tx.UpsertClaimRecords(ctx, playerID, staged); err != nil {
			return fmt.Errorf("upsert claims: %w", err)
		}
		if err := tx.AppendClaimEvents(ctx, events); err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
		if res.TotalEarned > 0 {
			if err := tx.AddPoints(ctx, playerID, res.TotalEarned); err != nil {
				return fmt.Errorf("add points: %w", err)
			}
		}

		prev := ActivityStreak{LastVisit: prog.LastVisitAt, Streak: prog.ActivityStreak}
		next := UpdateStreak(prev, now, e.loc)
		if prev.LastVisit == nil || !SameDay(*prev.LastVisit, now, e.loc) {
			if err := tx.SaveActivityStreak(ctx, playerID, next.Streak, *next.LastVisit); err != nil {
				return fmt.Errorf("save activity streak: %w", err)
			}
			res.StreakAdvanced = true
		}
		res.ActivityStreak = next.Streak
		res.TotalPoints = prog.TotalPoints + res.TotalEarned
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}

	switch {
	case len(res.Claimed) > 0:
		res.Status = ClaimSecured
		res.Message = securedMessage(res)
	case sel.kind == SelectByNode:
		res.Status = ClaimAlreadySecured
		res.Message = "Already logged this spot today"
	default:
		res.Status = ClaimAlreadySecured
		res.Message = "Nodes already secured today"
	}
	return res, nil
}

// securedMessage is the single player-facing line for a successful claim.
func securedMessage(res ClaimResult) string {
	noun := "nodes"
	if len(res.Claimed) == 1 {
		noun = "node"
	}
	msg := fmt.Sprintf("Secured %d %s: +%d XP!", len(res.Claimed), noun, res.TotalEarned)
	if n := len(res.Skipped); n > 0 {
		msg += fmt.Sprintf(" (%d already secured today)", n)
	}
	if res.StreakAdvanced {
		msg += fmt.Sprintf(" %d Day Streak Active!", res.ActivityStreak)
	}
	return msg
}

// Forget deletes the player's record for nodeID. Points already earned stay.
func (e *ClaimEngine) Forget(ctx context.Context, playerID, nodeID string) (Outcome, error) {
	if playerID == "" {
		return Outcome{}, ErrMissingPlayer
	}
	unlock := e.players.Lock(playerID)
	defer unlock()

	removed, err := e.store.DeleteClaimRecord(ctx, playerID, nodeID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if !removed {
		return rejected("Node %s is not in your collection", nodeID), nil
	}

	logger.WithFields(logrus.Fields{"player_id": playerID, "node_id": nodeID}).Info("[CLAIM] node forgotten")
	e.notify(ctx, playerID, SeveritySuccess, "Node Cleared")
	e.changed(playerID)
	return applied("Node Cleared"), nil
}

// StreakOverride is the result of an administrative streak change.
type StreakOverride struct {
	Outcome
	PreviousStreak int     `json:"previous_streak"`
	Streak         int     `json:"streak"`
	Multiplier     float64 `json:"multiplier"`
	Awarded        int64   `json:"awarded"`
	TotalPoints    int64   `json:"total_points"`
}

// ForceStreak sets a player's node streak. Raising it awards what a claim at
// the new streak would pay today, less whatever the ledger shows was already
// paid for this node today. If nothing touched the node today, today then
// counts as claimed. Lowering never takes points away.
func (e *ClaimEngine) ForceStreak(ctx context.Context, playerID, nodeID string, value int) (StreakOverride, error) {
	if playerID == "" {
		return StreakOverride{}, ErrMissingPlayer
	}
	if value < 0 {
		return StreakOverride{Outcome: rejected("Streak cannot be negative")}, nil
	}

	node, ok, err := e.catalog.Node(ctx, nodeID)
	if err != nil {
		return StreakOverride{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if !ok {
		return StreakOverride{Outcome: rejected("Node %s not found", nodeID)}, nil
	}

	unlock := e.players.Lock(playerID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.writeTimeout)
	defer cancel()
	now := e.clock.Now()
	day := DayKey(now, e.loc)

	var out StreakOverride
	err = e.store.Transaction(ctx, func(tx repository.Store) error {
		out = StreakOverride{Streak: value, Multiplier: e.policy.For(value)}

		prog, err := tx.EnsureProgress(ctx, playerID)
		if err != nil {
			return fmt.Errorf("load progress: %w", err)
		}
		out.TotalPoints = prog.TotalPoints

		rec, err := tx.GetClaimRecord(ctx, playerID, nodeID)
		if err != nil {
			return fmt.Errorf("read claim: %w", err)
		}
		if rec != nil {
			out.PreviousStreak = rec.Streak
		}
		if (rec == nil && value == 0) || (rec != nil && rec.Streak == value) {
			out.Outcome = rejected("Streak unchanged at %d", value)
			return nil
		}

		paid, err := tx.NodeLedgerOn(ctx, playerID, nodeID, day)
		if err != nil {
			return fmt.Errorf("read ledger: %w", err)
		}

		next := models.ClaimRecord{NodeID: nodeID, Streak: value}
		if rec != nil {
			next.LastClaimAt = rec.LastClaimAt
		}

		if value > out.PreviousStreak {
			touched := paid.Claimed || paid.Points > 0 ||
				(rec != nil && rec.LastClaimAt != nil && SameDay(*rec.LastClaimAt, now, e.loc))
			out.Awarded = EarnedPoints(node.Points, out.Multiplier) - paid.Points
			if out.Awarded < 0 {
				out.Awarded = 0
			}
			if !touched || next.LastClaimAt == nil {
				stamped := now
				next.LastClaimAt = &stamped
			}
		}

		if err := tx.UpsertClaimRecords(ctx, playerID, []models.ClaimRecord{next}); err != nil {
			return fmt.Errorf("upsert claim: %w", err)
		}
		if err := tx.AppendClaimEvents(ctx, []models.ClaimEvent{{
			PlayerID:   playerID,
			NodeID:     nodeID,
			ClaimDay:   day,
			Kind:       models.ClaimEventAdminStreak,
			Streak:     value,
			Multiplier: out.Multiplier,
			Points:     out.Awarded,
		}}); err != nil {
			return fmt.Errorf("append ledger: %w", err)
		}
		if out.Awarded > 0 {
			if err := tx.AddPoints(ctx, playerID, out.Awarded); err != nil {
				return fmt.Errorf("add points: %w", err)
			}
		}
		out.TotalPoints += out.Awarded
		out.Outcome = applied("Streak Set: %gx applied (+%d XP)", out.Multiplier, out.Awarded)
		return nil
	})
	if err != nil {
		return StreakOverride{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	if out.Applied {
		metrics.PointsAwarded.WithLabelValues("admin").Add(float64(out.Awarded))
		e.changed(playerID)
	}
	return out, nil
}
