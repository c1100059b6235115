package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"muufin/internal/auth"
	"muufin/internal/config"
	authapi "muufin/internal/handlers/auth"
	health "muufin/internal/handlers/health"
	libraryapi "muufin/internal/handlers/library"
	playbackapi "muufin/internal/handlers/playback"
	settingsapi "muufin/internal/handlers/settings"
	"muufin/internal/httpx"
	"muufin/internal/jellyfin"
	"muufin/internal/library"
	"muufin/internal/logging"
	"muufin/internal/playback"
	"muufin/internal/player"
	"muufin/internal/remote"
	"muufin/internal/settings"
	"muufin/internal/store"
	"muufin/internal/version"
)

func main() {
	_ = godotenv.Load()

	// ---- Config & Logging ----
	cfg := config.Load()
	log := logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stdout,
	})
	logging.SetDefault(log)
	log.Info("Starting muufin", "version", version.Version, "commit", version.Commit)

	// ---- Store & Migrations ----
	if err := store.MigrateUp(cfg.SQLitePath); err != nil {
		log.Error("Migrations failed", "err", err)
		os.Exit(1)
	}
	st, err := store.Open(cfg.SQLitePath)
	if err != nil {
		log.Error("Store open failed", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	// ---- Authority, Transport, Server Client ----
	mgr, err := auth.NewManager(st, cfg.ClientName, cfg.DeviceName, cfg.AppVersion, log)
	if err != nil {
		log.Error("Authority init failed", "err", err)
		os.Exit(1)
	}
	factory := httpx.NewFactory(mgr.Snapshot, log)
	mgr.OnChange(func(auth.State) { factory.Rebuild() })

	client := jellyfin.New(mgr.Snapshot, factory, log)
	mgr.SetAuthenticator(func(ctx context.Context, state auth.State, username, password string) (string, string, error) {
		result, err := client.AuthenticateByName(ctx, state, username, password)
		if err != nil {
			return "", "", err
		}
		return result.User.ID, result.AccessToken, nil
	})

	// ---- Settings ----
	svc, err := settings.NewService(st, log)
	if err != nil {
		log.Error("Settings init failed", "err", err)
		os.Exit(1)
	}

	// ---- Playback ----
	engine := player.NewEngine(factory, log)
	resolver := playback.NewResolver(mgr.Snapshot, &cfg)
	controller := playback.NewController(engine, resolver, nil, log)
	defer controller.Close()

	reporter := playback.NewReporter(engine, controller.Descriptor, client, svc.PlaybackReportingEnabled(), log)
	reporter.SetProgressInterval(time.Duration(cfg.ProgressIntervalSec) * time.Second)
	controller.Observe(reporter.HandleEvent)
	svc.Subscribe(func(snap settings.Snapshot) {
		reporter.SetEnabled(snap.PlaybackReportingEnabled)
	})
	mgr.OnChange(func(s auth.State) {
		if !s.IsSignedIn() {
			controller.Stop()
			reporter.Shutdown()
		}
	})

	// ---- Remote control socket ----
	socket := remote.NewSocket(mgr.Snapshot, controller, log)
	if cfg.RemoteControlEnabled {
		socket.Start(context.Background())
	}
	defer socket.Stop()

	// ---- Library ----
	repo := library.New(client, mgr.Snapshot)
	mgr.OnChange(func(auth.State) { repo.InvalidateCache() })

	// ---- Fiber App ----
	app := fiber.New(fiber.Config{
		AppName: cfg.ClientName,
	})
	app.Use(recover.New())
	app.Use(logging.FiberMiddleware(log))

	app.Get("/health", health.Health(st, client))

	app.Post("/auth/login", authapi.Login(mgr))
	app.Post("/auth/quickconnect/initiate", authapi.QuickConnectInitiate(mgr, client))
	app.Post("/auth/quickconnect/wait", authapi.QuickConnectWait(mgr, client))
	app.Post("/auth/signout", authapi.SignOut(mgr))
	app.Get("/auth/state", authapi.State(mgr))
	app.Post("/auth/tls", authapi.SetTLS(mgr))
	app.Post("/auth/certificate", authapi.ImportCertificate(mgr))
	app.Delete("/auth/certificate", authapi.DeleteCertificate(mgr))

	app.Get("/library/albums", libraryapi.Albums(repo))
	app.Get("/library/albums/:id/tracks", libraryapi.AlbumTracks(repo))
	app.Get("/library/artists", libraryapi.Artists(repo))
	app.Get("/library/artists/:id/albums", libraryapi.ArtistAlbums(repo))
	app.Get("/library/playlists", libraryapi.Playlists(repo))
	app.Get("/library/playlists/:id/tracks", libraryapi.PlaylistTracks(repo))
	app.Get("/library/items/:id", libraryapi.Item(repo))
	app.Get("/library/items/:id/lyrics", libraryapi.Lyrics(repo))
	app.Get("/library/search", libraryapi.Search(repo))

	app.Post("/playback/queue", playbackapi.Queue(controller, repo, svc))
	app.Post("/playback/resume", playbackapi.Resume(controller))
	app.Post("/playback/pause", playbackapi.Pause(controller))
	app.Post("/playback/stop", playbackapi.Stop(controller))
	app.Post("/playback/seek", playbackapi.Seek(controller))
	app.Get("/playback/status", playbackapi.Status(controller))

	app.Get("/settings", settingsapi.GetAll(svc))
	app.Get("/settings/:key", settingsapi.Get(svc))
	app.Put("/settings/:key", settingsapi.Update(svc))

	// ---- Shutdown ----
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("Shutting down")
		socket.Stop()
		reporter.Shutdown()
		controller.Close()
		_ = app.Shutdown()
	}()

	log.Info("Listening", "addr", cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Error("Server stopped", "err", err)
		os.Exit(1)
	}
}
