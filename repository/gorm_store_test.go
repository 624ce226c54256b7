package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"landmark-quest/models"
	"landmark-quest/repository"
	"landmark-quest/repository/repotest"
)

func TestGormStore_UpsertAndListNodes(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()

	if err := store.UpsertNode(ctx, &models.Node{ID: "bridge", Name: "Bridge", Latitude: 40.7, Longitude: -73.99, Points: 100}); err != nil {
		t.Fatalf("UpsertNode() error: %v", err)
	}
	if err := store.UpsertNode(ctx, &models.Node{ID: "bridge", Name: "Old Bridge", Latitude: 40.7, Longitude: -73.99, Points: 150}); err != nil {
		t.Fatalf("UpsertNode() update error: %v", err)
	}

	nodes, err := store.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes() error: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("len(nodes) = %d, want 1", len(nodes))
	}
	if nodes[0].Name != "Old Bridge" || nodes[0].Points != 150 {
		t.Errorf("node = %+v, want updated name and points", nodes[0])
	}
}

func TestGormStore_DeleteNodeKeepsClaims(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()
	now := time.Now()

	store.UpsertNode(ctx, &models.Node{ID: "park", Name: "Park", Points: 50})
	store.EnsureProgress(ctx, "p1")
	if err := store.UpsertClaimRecords(ctx, "p1", []models.ClaimRecord{{NodeID: "park", LastClaimAt: &now, Streak: 1}}); err != nil {
		t.Fatalf("UpsertClaimRecords() error: %v", err)
	}

	if err := store.DeleteNode(ctx, "park"); err != nil {
		t.Fatalf("DeleteNode() error: %v", err)
	}
	if err := store.DeleteNode(ctx, "park"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second DeleteNode() = %v, want ErrNotFound", err)
	}

	if _, err := store.GetNode(ctx, "park"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetNode() after purge = %v, want ErrNotFound", err)
	}

	rec, err := store.GetClaimRecord(ctx, "p1", "park")
	if err != nil || rec == nil {
		t.Fatalf("claim record should survive purge, got %v, %v", rec, err)
	}

	// re-creating the same id restores it
	if err := store.UpsertNode(ctx, &models.Node{ID: "park", Name: "Park", Points: 60}); err != nil {
		t.Fatalf("UpsertNode() restore error: %v", err)
	}
	node, err := store.GetNode(ctx, "park")
	if err != nil {
		t.Fatalf("GetNode() after restore error: %v", err)
	}
	if node.Points != 60 {
		t.Errorf("restored points = %d, want 60", node.Points)
	}
}

func TestGormStore_ClaimRecordUpsert(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()

	rec, err := store.GetClaimRecord(ctx, "p1", "n1")
	if err != nil || rec != nil {
		t.Fatalf("GetClaimRecord() on empty = %v, %v; want nil, nil", rec, err)
	}

	day1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	store.UpsertClaimRecords(ctx, "p1", []models.ClaimRecord{
		{NodeID: "n1", LastClaimAt: &day1, Streak: 1},
		{NodeID: "n2", LastClaimAt: &day1, Streak: 1},
	})
	store.UpsertClaimRecords(ctx, "p1", []models.ClaimRecord{{NodeID: "n1", LastClaimAt: &day2, Streak: 2}})

	rec, err = store.GetClaimRecord(ctx, "p1", "n1")
	if err != nil {
		t.Fatalf("GetClaimRecord() error: %v", err)
	}
	if rec.Streak != 2 {
		t.Errorf("streak = %d, want 2", rec.Streak)
	}
	if rec.LastClaimAt == nil || !rec.LastClaimAt.Equal(day2) {
		t.Errorf("last claim = %v, want %v", rec.LastClaimAt, day2)
	}

	counts, err := store.CountClaimsByPlayer(ctx)
	if err != nil {
		t.Fatalf("CountClaimsByPlayer() error: %v", err)
	}
	if counts["p1"] != 2 {
		t.Errorf("count = %d, want 2", counts["p1"])
	}

	deleted, err := store.DeleteClaimRecord(ctx, "p1", "n2")
	if err != nil || !deleted {
		t.Errorf("DeleteClaimRecord() = %v, %v; want true, nil", deleted, err)
	}
	deleted, _ = store.DeleteClaimRecord(ctx, "p1", "n2")
	if deleted {
		t.Error("second DeleteClaimRecord() should report false")
	}
}

func TestGormStore_EnsureProgressIdempotent(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()

	first, err := store.EnsureProgress(ctx, "p1")
	if err != nil {
		t.Fatalf("EnsureProgress() error: %v", err)
	}
	second, err := store.EnsureProgress(ctx, "p1")
	if err != nil {
		t.Fatalf("EnsureProgress() second error: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %s vs %s", first.ID, second.ID)
	}
	if first.TotalPoints != 0 {
		t.Errorf("TotalPoints = %d, want 0", first.TotalPoints)
	}
}

func TestGormStore_AddPoints(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()
	store.EnsureProgress(ctx, "p1")

	if err := store.AddPoints(ctx, "p1", 110); err != nil {
		t.Fatalf("AddPoints() error: %v", err)
	}
	if err := store.AddPoints(ctx, "p1", -500); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("AddPoints() below zero = %v, want ErrNotFound", err)
	}
	if err := store.AddPoints(ctx, "ghost", 10); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("AddPoints() unknown player = %v, want ErrNotFound", err)
	}

	prog, _ := store.EnsureProgress(ctx, "p1")
	if prog.TotalPoints != 110 {
		t.Errorf("TotalPoints = %d, want 110", prog.TotalPoints)
	}
}

func TestGormStore_TransactionRollsBack(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()
	store.EnsureProgress(ctx, "p1")
	now := time.Now()

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.UpsertClaimRecords(ctx, "p1", []models.ClaimRecord{{NodeID: "n1", LastClaimAt: &now, Streak: 1}}); err != nil {
			return err
		}
		if err := tx.AddPoints(ctx, "p1", 100); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction() = %v, want boom", err)
	}

	rec, _ := store.GetClaimRecord(ctx, "p1", "n1")
	if rec != nil {
		t.Error("claim record committed despite rollback")
	}
	prog, _ := store.EnsureProgress(ctx, "p1")
	if prog.TotalPoints != 0 {
		t.Errorf("TotalPoints = %d after rollback, want 0", prog.TotalPoints)
	}
}

func TestGormStore_LedgerOncePerDay(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()

	ev := models.ClaimEvent{PlayerID: "p1", NodeID: "n1", ClaimDay: "2026-03-01", Kind: models.ClaimEventClaim, Points: 100}
	if err := store.AppendClaimEvents(ctx, []models.ClaimEvent{ev}); err != nil {
		t.Fatalf("AppendClaimEvents() error: %v", err)
	}

	dup := ev
	dup.ID = ""
	if err := store.AppendClaimEvents(ctx, []models.ClaimEvent{dup}); !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("duplicate claim event = %v, want ErrDuplicate", err)
	}

	admin := ev
	admin.ID = ""
	admin.Kind = models.ClaimEventAdminStreak
	if err := store.AppendClaimEvents(ctx, []models.ClaimEvent{admin}); err != nil {
		t.Errorf("admin event on same day should be allowed: %v", err)
	}

	events, _ := store.ListClaimEvents(ctx, "p1")
	if len(events) != 2 {
		t.Errorf("len(events) = %d, want 2", len(events))
	}
}

func TestGormStore_UsernameAndRadii(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()
	store.EnsureProgress(ctx, "p1")
	now := time.Now()

	if err := store.SetUsername(ctx, "p1", "Wanderer", "wanderer", &now); err != nil {
		t.Fatalf("SetUsername() error: %v", err)
	}
	found, err := store.FindByUsernameKey(ctx, "wanderer")
	if err != nil {
		t.Fatalf("FindByUsernameKey() error: %v", err)
	}
	if found.ExternalUserID != "p1" {
		t.Errorf("found = %s, want p1", found.ExternalUserID)
	}

	if err := store.ClearUsernameChange(ctx, "p1"); err != nil {
		t.Fatalf("ClearUsernameChange() error: %v", err)
	}

	detection, claim := 400.0, 50.0
	if err := store.SetPlayerRadii(ctx, "p1", &detection, &claim); err != nil {
		t.Fatalf("SetPlayerRadii() error: %v", err)
	}

	prog, _ := store.EnsureProgress(ctx, "p1")
	if prog.LastUsernameChange != nil {
		t.Error("LastUsernameChange should be cleared")
	}
	if prog.DetectionRadius == nil || *prog.DetectionRadius != 400 {
		t.Errorf("DetectionRadius = %v, want 400", prog.DetectionRadius)
	}
	if prog.ClaimRadius == nil || *prog.ClaimRadius != 50 {
		t.Errorf("ClaimRadius = %v, want 50", prog.ClaimRadius)
	}
}

func TestGormStore_GlobalSettings(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()

	s, err := store.GetGlobalSettings(ctx, models.GlobalSettings{DetectionRadius: 250, ClaimRadius: 20})
	if err != nil {
		t.Fatalf("GetGlobalSettings() error: %v", err)
	}
	if s.DetectionRadius != 250 || s.ClaimRadius != 20 {
		t.Errorf("defaults = %+v", s)
	}

	s.ClaimRadius = 100
	if err := store.SaveGlobalSettings(ctx, s); err != nil {
		t.Fatalf("SaveGlobalSettings() error: %v", err)
	}
	s, _ = store.GetGlobalSettings(ctx, models.GlobalSettings{DetectionRadius: 1, ClaimRadius: 1})
	if s.ClaimRadius != 100 {
		t.Errorf("ClaimRadius = %f, want 100", s.ClaimRadius)
	}
}

func TestGormStore_ClaimedNodesOnAndPaging(t *testing.T) {
	store := repotest.NewStore(t)
	ctx := context.Background()

	events := []models.ClaimEvent{
		{PlayerID: "p1", NodeID: "a", ClaimDay: "2026-03-10", Kind: models.ClaimEventClaim, Points: 10},
		{PlayerID: "p1", NodeID: "b", ClaimDay: "2026-03-10", Kind: models.ClaimEventClaim, Points: 20},
		{PlayerID: "p1", NodeID: "c", ClaimDay: "2026-03-10", Kind: models.ClaimEventAdminStreak, Points: 5},
		{PlayerID: "p1", NodeID: "d", ClaimDay: "2026-03-10", Kind: models.ClaimEventAdminStreak, Points: 0},
		{PlayerID: "p1", NodeID: "a", ClaimDay: "2026-03-10", Kind: models.ClaimEventAdminStreak, Points: 3},
		{PlayerID: "p1", NodeID: "a", ClaimDay: "2026-03-11", Kind: models.ClaimEventClaim, Points: 10},
		{PlayerID: "p2", NodeID: "a", ClaimDay: "2026-03-10", Kind: models.ClaimEventClaim, Points: 10},
	}
	if err := store.AppendClaimEvents(ctx, events); err != nil {
		t.Fatalf("AppendClaimEvents() error: %v", err)
	}

	ids, err := store.ClaimedNodesOn(ctx, "p1", "2026-03-10")
	if err != nil {
		t.Fatalf("ClaimedNodesOn() error: %v", err)
	}
	got := map[string]bool{}
	for _, id := range ids {
		got[id] = true
	}
	if len(ids) != 3 || !got["a"] || !got["b"] || !got["c"] {
		t.Errorf("ClaimedNodesOn() = %v, want [a b c] (zero-point admin rows excluded)", ids)
	}

	ledgerTests := []struct {
		node string
		want repository.NodeLedger
	}{
		{"a", repository.NodeLedger{Points: 13, Claimed: true}},
		{"c", repository.NodeLedger{Points: 5}},
		{"d", repository.NodeLedger{}},
		{"missing", repository.NodeLedger{}},
	}
	for _, tt := range ledgerTests {
		got, err := store.NodeLedgerOn(ctx, "p1", tt.node, "2026-03-10")
		if err != nil {
			t.Fatalf("NodeLedgerOn(%s) error: %v", tt.node, err)
		}
		if got != tt.want {
			t.Errorf("NodeLedgerOn(%s) = %+v, want %+v", tt.node, got, tt.want)
		}
	}

	page, total, err := store.PageClaimEvents(ctx, "p1", 0, 3)
	if err != nil {
		t.Fatalf("PageClaimEvents() error: %v", err)
	}
	if total != 6 {
		t.Errorf("total = %d, want 6", total)
	}
	if len(page) != 3 {
		t.Errorf("len(page) = %d, want 3", len(page))
	}

	rest, _, err := store.PageClaimEvents(ctx, "p1", 3, 3)
	if err != nil {
		t.Fatalf("PageClaimEvents() second page error: %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("len(second page) = %d, want 3", len(rest))
	}
}
