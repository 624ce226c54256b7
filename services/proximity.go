package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"landmark-quest/logger"
	"landmark-quest/metrics"
	"landmark-quest/models"
	"landmark-quest/repository"
	"landmark-quest/utils"
)

// Radii are the two proximity thresholds, in meters. Detection surfaces a
// nearby node; Claim gates the claim action. Claim <= Detection.
type Radii struct {
	Detection float64 `json:"detection_radius"`
	Claim     float64 `json:"claim_radius"`
}

// NodeView is a node as seen from one position.
type NodeView struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lng"`
	Points       int64   `json:"points"`
	DistanceM    float64 `json:"distance_m"`
	ClaimedToday bool    `json:"claimed_today"`
}

// Evaluation is the outcome of one proximity pass.
type Evaluation struct {
	Position utils.Position `json:"position"`
	Radii    Radii          `json:"radii"`
	Active   *NodeView      `json:"active"`
	CanClaim bool           `json:"can_claim"`
	// Nearby lists every node inside the detection radius, nearest first.
	Nearby []NodeView `json:"nearby"`
}

// Detect picks the active node for pos: the nearest node in detection range
// not yet claimed today, else the nearest one already claimed today.
// CanClaim is set only for an unclaimed active node inside the claim radius.
func Detect(pos utils.Position, nodes []models.Node, claimedToday map[string]bool, radii Radii) Evaluation {
	eval := Evaluation{Position: pos, Radii: radii, Nearby: []NodeView{}}

	for _, n := range nodes {
		d := utils.Distance(pos, utils.Position{Latitude: n.Latitude, Longitude: n.Longitude})
		if d > radii.Detection {
			continue
		}
		eval.Nearby = append(eval.Nearby, NodeView{
			ID:           n.ID,
			Name:         n.Name,
			Latitude:     n.Latitude,
			Longitude:    n.Longitude,
			Points:       n.Points,
			DistanceM:    d,
			ClaimedToday: claimedToday[n.ID],
		})
	}

	sort.SliceStable(eval.Nearby, func(i, j int) bool {
		if eval.Nearby[i].DistanceM != eval.Nearby[j].DistanceM {
			return eval.Nearby[i].DistanceM < eval.Nearby[j].DistanceM
		}
		return eval.Nearby[i].ID < eval.Nearby[j].ID
	})

	var secured *NodeView
	for i := range eval.Nearby {
		v := &eval.Nearby[i]
		if !v.ClaimedToday {
			eval.Active = v
			break
		}
		if secured == nil {
			secured = v
		}
	}
	if eval.Active == nil {
		eval.Active = secured
	}

	if eval.Active != nil {
		active := *eval.Active
		eval.Active = &active
		eval.CanClaim = !active.ClaimedToday && active.DistanceM <= radii.Claim
	}
	return eval
}

// ProximityService keeps each player's last reported position and evaluates
// it against the cached catalog and the player's radii.
type ProximityService struct {
	catalog  *CatalogService
	settings *SettingsService
	claims   repository.ClaimStore
	ledger   repository.LedgerStore
	clock    clockwork.Clock
	loc      *time.Location

	mu       sync.Mutex
	last     map[string]utils.Position
	watchers map[string]map[chan struct{}]struct{}
	feeds    map[string]map[chan utils.Position]struct{}
}

func NewProximityService(catalog *CatalogService, settings *SettingsService, store repository.Store, clock clockwork.Clock, loc *time.Location) *ProximityService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.UTC
	}
	p := &ProximityService{
		catalog:  catalog,
		settings: settings,
		claims:   store,
		ledger:   store,
		clock:    clock,
		loc:      loc,
		last:     make(map[string]utils.Position),
		watchers: make(map[string]map[chan struct{}]struct{}),
		feeds:    make(map[string]map[chan utils.Position]struct{}),
	}
	settings.Subscribe(p)
	return p
}

// Evaluate runs one proximity pass for playerID at pos.
func (p *ProximityService) Evaluate(ctx context.Context, playerID string, pos utils.Position) (Evaluation, error) {
	if playerID == "" {
		return Evaluation{}, ErrMissingPlayer
	}
	if !pos.Valid() {
		return Evaluation{}, fmt.Errorf("%w: (%v, %v)", ErrInvalidPosition, pos.Latitude, pos.Longitude)
	}

	nodes, err := p.catalog.Nodes(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	radii, err := p.settings.Radii(ctx, playerID)
	if err != nil {
		return Evaluation{}, err
	}
	records, err := p.claims.ListClaimRecords(ctx, playerID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("list claim records: %w", err)
	}

	now := p.clock.Now()
	ledgered, err := p.ledger.ClaimedNodesOn(ctx, playerID, DayKey(now, p.loc))
	if err != nil {
		return Evaluation{}, fmt.Errorf("read ledger: %w", err)
	}
	claimedToday := make(map[string]bool, len(records)+len(ledgered))
	for _, id := range ledgered {
		claimedToday[id] = true
	}
	for _, rec := range records {
		if rec.LastClaimAt != nil && SameDay(*rec.LastClaimAt, now, p.loc) {
			claimedToday[rec.NodeID] = true
		}
	}

	eval := Detect(pos, nodes, claimedToday, radii)
	metrics.ProximityEvaluations.WithLabelValues(fmt.Sprint(eval.CanClaim)).Inc()
	return eval, nil
}

// Track stores pos as the player's latest position, hands it to the
// player's open streams and evaluates it.
func (p *ProximityService) Track(ctx context.Context, playerID string, pos utils.Position) (Evaluation, error) {
	if !pos.Valid() {
		return Evaluation{}, fmt.Errorf("%w: (%v, %v)", ErrInvalidPosition, pos.Latitude, pos.Longitude)
	}
	p.remember(playerID, pos)
	p.publish(playerID, pos)
	return p.Evaluate(ctx, playerID, pos)
}

func (p *ProximityService) remember(playerID string, pos utils.Position) {
	p.mu.Lock()
	p.last[playerID] = pos
	p.mu.Unlock()
}

// publish never blocks: a feed holds one sample, and a newer one replaces it.
func (p *ProximityService) publish(playerID string, pos utils.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.feeds[playerID] {
		select {
		case ch <- pos:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- pos:
		default:
		}
	}
}

// LastPosition returns the most recent tracked position.
func (p *ProximityService) LastPosition(playerID string) (utils.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.last[playerID]
	return pos, ok
}

// Current re-evaluates the last tracked position, picking up catalog,
// radius and claim changes without a new sample.
func (p *ProximityService) Current(ctx context.Context, playerID string) (Evaluation, error) {
	pos, ok := p.LastPosition(playerID)
	if !ok {
		return Evaluation{}, ErrNoPosition
	}
	return p.Evaluate(ctx, playerID, pos)
}

// Nudge asks running watchers to re-evaluate. An empty id nudges everyone.
func (p *ProximityService) Nudge(playerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	signal := func(set map[chan struct{}]struct{}) {
		for ch := range set {
			select {
			case ch <- struct{}{}:
			default: // one pending nudge is enough
			}
		}
	}
	if playerID == "" {
		for _, set := range p.watchers {
			signal(set)
		}
		return
	}
	signal(p.watchers[playerID])
}

func (p *ProximityService) subscribe(playerID string) chan struct{} {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	if p.watchers[playerID] == nil {
		p.watchers[playerID] = make(map[chan struct{}]struct{})
	}
	p.watchers[playerID][ch] = struct{}{}
	p.mu.Unlock()
	return ch
}

func (p *ProximityService) unsubscribe(playerID string, ch chan struct{}) {
	p.mu.Lock()
	delete(p.watchers[playerID], ch)
	if len(p.watchers[playerID]) == 0 {
		delete(p.watchers, playerID)
	}
	p.mu.Unlock()
}

// Watch evaluates every sample from samples, and re-evaluates the last one
// whenever the player is nudged. Samples that queue up while an evaluation
// runs are collapsed to the latest. The returned channel closes when ctx is
// done or samples is closed.
func (p *ProximityService) Watch(ctx context.Context, playerID string, samples <-chan utils.Position) <-chan Evaluation {
	out := make(chan Evaluation, 1)
	nudges := p.subscribe(playerID)

	go func() {
		defer close(out)
		defer p.unsubscribe(playerID, nudges)

		for {
			var (
				eval Evaluation
				err  error
			)
			select {
			case <-ctx.Done():
				return
			case pos, ok := <-samples:
				if !ok {
					return
				}
				pos = latest(pos, samples)
				if !pos.Valid() {
					err = fmt.Errorf("%w: (%v, %v)", ErrInvalidPosition, pos.Latitude, pos.Longitude)
					break
				}
				p.remember(playerID, pos)
				eval, err = p.Evaluate(ctx, playerID, pos)
			case <-nudges:
				eval, err = p.Current(ctx, playerID)
			}

			if err != nil {
				if !errors.Is(err, ErrNoPosition) && ctx.Err() == nil {
					logger.WithFields(logrus.Fields{"player_id": playerID}).Warnf("[PROXIMITY] evaluation skipped: %v", err)
				}
				continue
			}

			select {
			case out <- eval:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Stream is Watch fed by the positions the player reports through Track.
// It starts from the last known position, if any, and ends when ctx is done.
func (p *ProximityService) Stream(ctx context.Context, playerID string) <-chan Evaluation {
	feed := make(chan utils.Position, 1)
	if pos, ok := p.LastPosition(playerID); ok {
		feed <- pos
	}

	p.mu.Lock()
	if p.feeds[playerID] == nil {
		p.feeds[playerID] = make(map[chan utils.Position]struct{})
	}
	p.feeds[playerID][feed] = struct{}{}
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.feeds[playerID], feed)
		if len(p.feeds[playerID]) == 0 {
			delete(p.feeds, playerID)
		}
		p.mu.Unlock()
	}()

	return p.Watch(ctx, playerID, feed)
}

// streams counts open streams for playerID.
func (p *ProximityService) streams(playerID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.feeds[playerID])
}

// latest drains whatever is already buffered on samples and returns the newest.
func latest(pos utils.Position, samples <-chan utils.Position) utils.Position {
	for {
		select {
		case next, ok := <-samples:
			if !ok {
				return pos
			}
			pos = next
		default:
			return pos
		}
	}
}
