package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"landmark-quest/logger"
	"landmark-quest/metrics"
	"landmark-quest/models"
	"landmark-quest/repository"
	"landmark-quest/utils"
)

// NodeInput is an admin request to deploy a node.
type NodeInput struct {
	Name      string  `json:"name" toml:"name"`
	Latitude  float64 `json:"lat" toml:"lat"`
	Longitude float64 `json:"lng" toml:"lng"`
	Points    int64   `json:"points" toml:"points"`
}

// CatalogService caches the shared node catalog. Reads are served from memory;
// any admin mutation invalidates the cache.
type CatalogService struct {
	store repository.NodeStore

	mu     sync.RWMutex
	loaded bool
	nodes  []models.Node
	byID   map[string]models.Node
}

func NewCatalogService(store repository.NodeStore) *CatalogService {
	return &CatalogService{store: store}
}

// ValidateNode rejects rows that must not take part in proximity evaluation.
func ValidateNode(n models.Node) error {
	switch {
	case strings.TrimSpace(n.ID) == "":
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	case strings.TrimSpace(n.Name) == "":
		return fmt.Errorf("%w: %s has no name", ErrInvalidNode, n.ID)
	case !utils.ValidCoordinates(n.Latitude, n.Longitude):
		return fmt.Errorf("%w: %s has coordinates (%v, %v)", ErrInvalidNode, n.ID, n.Latitude, n.Longitude)
	case n.Points < 0:
		return fmt.Errorf("%w: %s has negative points", ErrInvalidNode, n.ID)
	}
	return nil
}

// Refresh reloads the catalog from the store. Malformed rows are logged and skipped.
func (c *CatalogService) Refresh(ctx context.Context) error {
	rows, err := c.store.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	valid := make([]models.Node, 0, len(rows))
	byID := make(map[string]models.Node, len(rows))
	rejected := 0
	for _, n := range rows {
		if err := ValidateNode(n); err != nil {
			rejected++
			logger.WithFields(logrus.Fields{"node_id": n.ID}).Warnf("[CATALOG] excluding node: %v", err)
			continue
		}
		valid = append(valid, n)
		byID[n.ID] = n
	}

	c.mu.Lock()
	c.nodes = valid
	c.byID = byID
	c.loaded = true
	c.mu.Unlock()

	metrics.CatalogNodes.Set(float64(len(valid)))
	metrics.CatalogRejected.Set(float64(rejected))
	return nil
}

// Invalidate drops the cache; the next read reloads.
func (c *CatalogService) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}

func (c *CatalogService) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.Refresh(ctx)
}

// Nodes returns a copy of the valid catalog.
func (c *CatalogService) Nodes(ctx context.Context) ([]models.Node, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Node(nil), c.nodes...), nil
}

// Node looks up a single valid node.
func (c *CatalogService) Node(ctx context.Context, id string) (models.Node, bool, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return models.Node{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byID[id]
	return n, ok, nil
}

// CreateNode deploys a node whose id is the slug of its name.
func (c *CatalogService) CreateNode(ctx context.Context, in NodeInput) (*models.Node, error) {
	node := &models.Node{
		ID:        utils.NodeIDFromName(in.Name),
		Name:      strings.TrimSpace(in.Name),
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Points:    in.Points,
	}
	if err := ValidateNode(*node); err != nil {
		return nil, err
	}
	if err := c.store.UpsertNode(ctx, node); err != nil {
		return nil, fmt.Errorf("upsert node %s: %w", node.ID, err)
	}
	c.Invalidate()
	return node, nil
}

// PurgeNode removes a node from the catalog for every player.
func (c *CatalogService) PurgeNode(ctx context.Context, id string) error {
	if err := c.store.DeleteNode(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	c.Invalidate()
	return nil
}

type catalogFile struct {
	Nodes []NodeInput `toml:"node"`
}

// Import reads a TOML catalog ([[node]] tables) and upserts every entry.
// Invalid entries are reported together; valid ones are still imported.
func (c *CatalogService) Import(ctx context.Context, r io.Reader) (int, error) {
	var file catalogFile
	if _, err := toml.NewDecoder(r).Decode(&file); err != nil {
		return 0, fmt.Errorf("decode catalog: %w", err)
	}

	imported := 0
	var errs []error
	for _, in := range file.Nodes {
		if _, err := c.CreateNode(ctx, in); err != nil {
			errs = append(errs, err)
			continue
		}
		imported++
	}
	return imported, errors.Join(errs...)
}
