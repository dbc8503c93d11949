package router

import (
	"github.com/reachkit/reach/internal/application"
	"github.com/reachkit/reach/internal/container"
	"github.com/reachkit/reach/internal/domain/repository"
	pginfra "github.com/reachkit/reach/internal/infrastructure/postgres"
	handlers "github.com/reachkit/reach/internal/interface/http"
	"github.com/reachkit/reach/internal/router/modules"
)

type SubscriberModuleDeps struct {
	Repo    repository.SubscriberRepository
	Ledger  *application.Ledger
	Handler *handlers.SubscriberHandler
}

func buildSubscriberDeps() SubscriberModuleDeps {
	cfg := container.GetConfig()

	repo := pginfra.NewSubscriberRepository(container.GetPGPool())

	ledger := application.NewLedger(
		repo,
		container.GetLogger(),
		container.GetES(),
		cfg.ESSubscribersIndex,
	)

	var pub handlers.JobPublisher
	if p := container.GetRabbitPub(); p != nil {
		pub = p
	}

	handler := handlers.NewSubscriberHandler(
		ledger,
		container.GetAuthority(),
		pub,
		container.GetLogger(),
		cfg,
	)

	return SubscriberModuleDeps{
		Repo:    repo,
		Ledger:  ledger,
		Handler: handler,
	}
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) {
	deps := buildSubscriberDeps()
	templates := handlers.NewTemplateHandler(container.GetConfig())

	r.Add(modules.NewSubscriberModule(deps.Handler, templates, container.GetAuthority()))
	if container.GetConfig().DebugMetricsEnabled {
		r.Add(modules.NewDebugModule())
	}
}
