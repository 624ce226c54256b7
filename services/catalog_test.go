package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"landmark-quest/models"
)

func TestValidateNode(t *testing.T) {
	tests := []struct {
		name string
		node models.Node
		ok   bool
	}{
		{"valid", models.Node{ID: "a", Name: "A", Latitude: 10, Longitude: 10, Points: 5}, true},
		{"zero points", models.Node{ID: "a", Name: "A", Points: 0}, true},
		{"no id", models.Node{Name: "A"}, false},
		{"no name", models.Node{ID: "a"}, false},
		{"latitude out of range", models.Node{ID: "a", Name: "A", Latitude: -91}, false},
		{"longitude out of range", models.Node{ID: "a", Name: "A", Longitude: 181}, false},
		{"negative points", models.Node{ID: "a", Name: "A", Points: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNode(tt.node)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateNode() = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && !errors.Is(err, ErrInvalidNode) {
				t.Errorf("ValidateNode() = %v, want ErrInvalidNode", err)
			}
		})
	}
}

func TestCatalog_CacheAndInvalidate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addNode(t, "First", 5, 10)

	nodes, err := env.catalog.Nodes(ctx)
	if err != nil || len(nodes) != 1 {
		t.Fatalf("Nodes() = %d nodes, %v", len(nodes), err)
	}

	// written behind the cache's back
	env.store.UpsertNode(ctx, &models.Node{ID: "second", Name: "Second", Latitude: 1, Longitude: 1, Points: 1})
	if nodes, _ := env.catalog.Nodes(ctx); len(nodes) != 1 {
		t.Errorf("cached Nodes() = %d, want 1 until refresh", len(nodes))
	}

	if err := env.catalog.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if nodes, _ := env.catalog.Nodes(ctx); len(nodes) != 2 {
		t.Errorf("Nodes() after refresh = %d, want 2", len(nodes))
	}

	nodes, _ = env.catalog.Nodes(ctx)
	nodes[0].Name = "mutated"
	if again, _ := env.catalog.Nodes(ctx); again[0].Name == "mutated" {
		t.Error("Nodes() returned the cache's backing slice")
	}
}

func TestCatalog_Import(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	file := `
[[node]]
name = "Brooklyn Bridge"
lat = 40.7061
lng = -73.9969
points = 100

[[node]]
name = "Bad Coordinates"
lat = 95.0
lng = 0.0
points = 10

[[node]]
name = "Flatiron"
lat = 40.7411
lng = -73.9897
points = 60
`
	n, err := env.catalog.Import(ctx, strings.NewReader(file))
	if n != 2 {
		t.Errorf("imported = %d, want 2", n)
	}
	if !errors.Is(err, ErrInvalidNode) {
		t.Errorf("Import() error = %v, want ErrInvalidNode for the bad entry", err)
	}

	node, ok, _ := env.catalog.Node(ctx, "brooklyn-bridge")
	if !ok || node.Points != 100 {
		t.Errorf("Node(brooklyn-bridge) = %+v, %v", node, ok)
	}

	if _, err := env.catalog.Import(ctx, strings.NewReader("[[node]\nname=")); err == nil {
		t.Error("Import(malformed toml) = nil error")
	}
}
