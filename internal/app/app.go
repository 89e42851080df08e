package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/licenciador/licensing-api/internal/clock"
	"github.com/licenciador/licensing-api/internal/config"
	"github.com/licenciador/licensing-api/internal/db"
	internalhttp "github.com/licenciador/licensing-api/internal/http"
	"github.com/licenciador/licensing-api/internal/http/handlers"
	"github.com/licenciador/licensing-api/internal/instance"
	"github.com/licenciador/licensing-api/internal/license"
	"github.com/licenciador/licensing-api/internal/logging"
	"github.com/licenciador/licensing-api/internal/notify"
	"github.com/licenciador/licensing-api/internal/user"
)

// Migrate opens the database, runs migrations and seeds the super user
// when seed credentials are configured.
func Migrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(config.ResolveConfigPath(configPath))
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log)

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if cfg.Seed.Code != "" && cfg.Seed.Login != "" && cfg.Seed.Password != "" {
		if errSeed := db.SeedSuperUser(conn, cfg.Seed.Code, cfg.Seed.Login, cfg.Seed.Password); errSeed != nil {
			return errSeed
		}
	}
	log.Info("migrations applied")
	return nil
}

// Sweep runs one expiry pass and reports how many licenses flipped.
func Sweep(ctx context.Context, configPath string) error {
	cfg, err := config.Load(config.ResolveConfigPath(configPath))
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log)

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	licenses := license.NewService(conn, clock.System{}, notify.Nop{})
	expired, err := licenses.SweepExpired(ctx)
	if err != nil {
		return err
	}
	log.Infof("sweep finished, %d license(s) expired", expired)
	return nil
}

// RunServer boots the HTTP API with its background expiry sweeper.
func RunServer(ctx context.Context, configPath string) error {
	cfg, err := config.Load(config.ResolveConfigPath(configPath))
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log)

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if cfg.Seed.Code != "" && cfg.Seed.Login != "" && cfg.Seed.Password != "" {
		if errSeed := db.SeedSuperUser(conn, cfg.Seed.Code, cfg.Seed.Login, cfg.Seed.Password); errSeed != nil {
			return errSeed
		}
	}

	publisher, closePublisher := buildPublisher(cfg)
	defer closePublisher()

	licenses := license.NewService(conn, clock.System{}, publisher)
	instances := instance.NewService(conn)
	users := user.NewService(conn, licenses)

	router := internalhttp.NewRouter(internalhttp.RouterDeps{
		JWTSecret: cfg.JWT.Secret,
		Auth:      handlers.NewAuthHandler(conn, cfg.JWT.Secret, cfg.JWTExpiry()),
		Licenses:  handlers.NewLicenseHandler(licenses),
		Instances: handlers.NewInstanceHandler(instances),
		Users:     handlers.NewUserHandler(users),
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	if interval := cfg.SweepInterval(); interval > 0 {
		go runSweeper(sweepCtx, licenses, interval)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// buildPublisher returns the revoke event publisher, falling back to a
// no-op when redis is not configured.
func buildPublisher(cfg config.Config) (notify.Publisher, func()) {
	if cfg.Redis.Addr == "" {
		return notify.Nop{}, func() {}
	}
	redisPub := notify.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	return redisPub, func() {
		if errClose := redisPub.Close(); errClose != nil {
			log.Warnf("closing redis publisher: %v", errClose)
		}
	}
}

// runSweeper flips overdue licenses to expired on a fixed interval.
func runSweeper(ctx context.Context, licenses *license.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, errSweep := licenses.SweepExpired(ctx)
			if errSweep != nil {
				log.Errorf("expiry sweep failed: %v", errSweep)
				continue
			}
			if expired > 0 {
				log.Infof("expiry sweep flipped %d license(s)", expired)
			}
		}
	}
}
