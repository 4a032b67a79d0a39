package cmd

import (
	"fmt"
	"time"

	"maquette/internal/capability"
	"maquette/internal/classify"
	"maquette/internal/config"
	"maquette/internal/driver"
	"maquette/internal/engine"
	"maquette/internal/event"
	"maquette/internal/imagegen"
	"maquette/internal/logging"
	"maquette/internal/pipeline"
	"maquette/internal/session"
)

// remoteCapabilities are the specialist capabilities served by the remote
// backend. The modeling capability is local: it wraps the engine socket.
var remoteCapabilities = []string{
	"producer",
	"director",
	"creative_spec",
	"code_synthesis",
	"texturing",
	"rigging",
	"scene_assembly",
	"lighting",
	"camera",
	"animation",
	"qa",
	"rendering",
	"technical_director",
}

// app bundles the wired collaborators behind the CLI commands.
type app struct {
	cfg    *config.Config
	store  *session.Store
	driver *driver.Driver
	bus    *event.Bus
	log    *logging.Logger
}

// buildApp loads the configuration and wires the store, registry, engine,
// pipeline, and driver together.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := session.NewStore(cfg.Storage.BaseDir)
	if err != nil {
		return nil, err
	}

	log, err := logging.NewLogger("", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	eng := engine.NewClient(cfg.Engine.Addr)

	registry := capability.NewRegistry()
	if err := registry.Register(engine.NewExecCapability(eng, store)); err != nil {
		return nil, err
	}
	if cfg.Tools.CapabilityEndpoint != "" {
		for _, name := range remoteCapabilities {
			if err := registry.Register(capability.NewRemote(name, cfg.Tools.CapabilityEndpoint, nil)); err != nil {
				return nil, err
			}
		}
	}

	var images imagegen.Generator
	if cfg.Tools.ImageEndpoint != "" {
		images = imagegen.NewHTTPGenerator(cfg.Tools.ImageEndpoint, nil)
	}

	bus := event.NewBus()

	classifier := classify.New(classify.Config{
		Budget:     cfg.Pipeline.RetryBudget,
		RetryDelay: cfg.Pipeline.RetryDelay(),
	})

	machine, err := pipeline.New(pipeline.Config{
		Store:              store,
		Registry:           registry,
		Classifier:         classifier,
		Bus:                bus,
		Logger:             log,
		Images:             images,
		InvokeTimeout:      cfg.Pipeline.InvokeTimeout(),
		ProgressionWorkers: cfg.Pipeline.ProgressionWorkers,
	})
	if err != nil {
		return nil, err
	}

	drv, err := driver.New(driver.Config{
		Store:   store,
		Machine: machine,
		Bus:     bus,
		Logger:  log,
		Engine:  eng,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		store:  store,
		driver: drv,
		bus:    bus,
		log:    log,
	}, nil
}

// formatAge renders a timestamp as a compact relative age.
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
