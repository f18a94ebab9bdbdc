package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type App struct {
	config *Config
	bunDB  *bun.DB
	repo   identity.RepositoryManager
	auther *identity.Auther
	guard  *identity.Guard
	srv    router.Server[*fiber.App]
	logger *glog.BaseLogger
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("identity"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg, err := LoadConfig()
	if err != nil {
		panic(err)
	}

	if cfg.Debug {
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(cfg))
		fmt.Println("============")
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	ctx := context.Background()

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithAuth(ctx, app); err != nil {
		panic(err)
	}

	if cfg.SeedAccounts {
		if err := SeedAccounts(ctx, app); err != nil {
			panic(err)
		}
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	app.srv.Serve(cfg.ServerAddress)

	WaitExitSignal()
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := sql.Open(sqliteshim.ShimName, app.config.GetPersistence().GetDSN())
	if err != nil {
		log.Fatal(err)
		return err
	}

	persistence.RegisterModel((*identity.User)(nil))

	client, err := persistence.New(app.config.GetPersistence(), db, sqlitedialect.New())
	if err != nil {
		log.Fatal(err)
		return err
	}

	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(identity.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		return err
	}

	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	app.bunDB = client.DB()
	app.repo = identity.NewRepositoryManager(client.DB())
	app.repo.MustValidate()

	return nil
}

func WithAuth(ctx context.Context, app *App) error {
	activityLogger := app.GetLogger("activity")

	sink := identity.ActivitySinkFunc(func(ctx context.Context, event identity.ActivityEvent) error {
		record := activitymap.Normalize(event)
		activityLogger.Info("auth activity",
			"verb", record.Verb,
			"actor_id", record.ActorID,
			"channel", record.Channel,
			"metadata", print.MaybePrettyJSON(record.Metadata),
		)
		return nil
	})

	app.auther = identity.NewAuthenticator(app.repo.Users(), app.config).
		WithLogger(app.GetLogger("auth")).
		WithActivitySink(sink)

	app.guard = identity.NewGuard(app.auther, app.config).
		WithLogger(app.GetLogger("guard"))

	return nil
}

// SeedAccounts provisions the default admin and user accounts. Hashid
// derives each ID from the email so repeated boots are no-ops once the
// rows exist.
func SeedAccounts(ctx context.Context, app *App) error {
	handler := identity.NewRegisterUserHandler(app.repo)

	seeds := []identity.RegisterUserMessage{
		{
			Name:      "Admin",
			Email:     "admin@admin.com",
			Password:  "admin123",
			Role:      identity.RoleAdmin,
			UseHashid: true,
		},
		{
			Name:      "User",
			Email:     "user@user.com",
			Password:  "user123",
			Role:      identity.RoleUser,
			UseHashid: true,
		},
	}

	lgr := app.GetLogger("seed")

	for _, seed := range seeds {
		if err := handler.Execute(ctx, seed); err != nil {
			if identity.IsConflictError(err) {
				lgr.Debug("seed account exists", "email", seed.Email)
				continue
			}
			return err
		}
		lgr.Info("seeded account", "email", seed.Email, "role", seed.Role)
	}

	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: app.config.Debug,
			StrictRouting:     false,
		}))
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	identity.RegisterAuthRoutes(srv.Router(),
		identity.WithAuther(app.auther),
		identity.WithUsersRepo(app.repo.Users()),
		identity.WithGuard(app.guard),
		identity.WithControllerLogger(app.GetLogger("http")),
		identity.WithControllerDebug(app.config.Debug),
	)

	app.srv = srv

	return nil
}

func WaitExitSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}
