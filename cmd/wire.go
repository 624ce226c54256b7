package cmd

import (
	"github.com/jonboulle/clockwork"

	"landmark-quest/config"
	"landmark-quest/handlers"
	"landmark-quest/repository"
	"landmark-quest/services"
)

// newServices wires the service graph over store.
func newServices(cfg *config.Config, store repository.Store, clock clockwork.Clock) handlers.Services {
	game := cfg.Game

	catalog := services.NewCatalogService(store)
	settings := services.NewSettingsService(store, services.Radii{
		Detection: game.DetectionRadius,
		Claim:     game.ClaimRadius,
	}, game.MaxRadius)
	proximity := services.NewProximityService(catalog, settings, store, clock, game.Location)
	inbox := services.NewInbox(0)

	engine := services.NewClaimEngine(store, catalog, settings, inbox, services.ClaimEngineConfig{
		Location:     game.Location,
		WriteTimeout: game.ClaimWriteTimeout,
		Clock:        clock,
	})
	engine.Subscribe(proximity)

	profiles := services.NewProfileService(store, settings, engine.Policy(), clock, game.Location, game.UsernameCooldown)
	admin := services.NewAdminService(engine, catalog, settings, profiles)
	admin.Subscribe(proximity)

	return handlers.Services{
		Catalog:     catalog,
		Proximity:   proximity,
		Engine:      engine,
		Profiles:    profiles,
		Settings:    settings,
		Leaderboard: services.NewLeaderboardService(store, game.LeaderboardLimit),
		Admin:       admin,
		Inbox:       inbox,
	}
}
