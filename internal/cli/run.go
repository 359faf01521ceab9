package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jcallahan/pipedeck/internal/bridge"
	"github.com/jcallahan/pipedeck/internal/config"
	"github.com/jcallahan/pipedeck/internal/logbook"
	"github.com/jcallahan/pipedeck/internal/pipeline"
	"github.com/jcallahan/pipedeck/internal/scheduler"
	"github.com/jcallahan/pipedeck/internal/tui"
)

// runtime bundles the wired engine for one session.
type runtime struct {
	config     *config.Config
	logbook    *logbook.Logbook
	controller *pipeline.Controller
	scheduler  *scheduler.Scheduler
}

func runApp(app *AppContext) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cli: working directory: %w", err)
	}
	if err := config.InitPipedeckDir(cwd); err != nil {
		return fmt.Errorf("cli: initialize %s directory: %w", config.PipedeckDir, err)
	}
	var cfg *config.Config
	if app.Opts.ConfigPath != "" {
		cfg, err = config.NewConfigFromFile(cwd, app.Opts.ConfigPath)
	} else {
		cfg, err = config.NewConfig(cwd)
	}
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg, app.Opts.LogPath)
	if err != nil {
		return err
	}
	rt.logbook.Info("session %s opened, %d stages, tick %v",
		rt.controller.RunID(), len(cfg.Project.Pipeline.Stages), cfg.TickInterval())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var srv *bridge.Server
	if cfg.BridgeEnabled() {
		settings := bridge.SettingsFromConfig(cfg)
		srv, err = bridge.NewServer(settings, rt.scheduler, rt.controller, rt.controller,
			bridge.WithLogger(rt.logbook))
		if err != nil {
			return err
		}
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if app.Opts.Headless {
		return runHeadless(rt)
	}
	return runDashboard(app, rt)
}

// buildRuntime turns validated configuration into a wired controller and
// scheduler. Every problem here is a construction-time failure; nothing is
// retried at runtime.
func buildRuntime(cfg *config.Config, logPath string) (*runtime, error) {
	if logPath == "" {
		logPath = cfg.LogPath()
	}
	lb, err := logbook.New(logPath)
	if err != nil {
		return nil, fmt.Errorf("cli: open logbook: %w", err)
	}

	defs := make([]pipeline.StageDefinition, len(cfg.Project.Pipeline.Stages))
	for i, ref := range cfg.Project.Pipeline.Stages {
		defs[i] = pipeline.StageDefinition{ID: ref.ID, Name: ref.Name, ActorBearing: ref.Actor}
	}
	registry, err := pipeline.NewRegistry(defs)
	if err != nil {
		return nil, err
	}

	seed := time.Now().UnixNano()
	inc := cfg.Project.Pipeline.Increment
	increments, err := pipeline.NewRandomIncrementPolicy(inc.Min, inc.Max, inc.InitialMax, seed)
	if err != nil {
		return nil, err
	}
	queue, err := pipeline.NewRandomQueuePolicy(cfg.Project.Pipeline.Queue.MaxDrain, cfg.Project.Pipeline.Queue.MaxArrivals, seed+1)
	if err != nil {
		return nil, err
	}

	controller, err := pipeline.New(registry,
		pipeline.WithIncrementPolicy(increments),
		pipeline.WithQueuePolicy(queue),
		pipeline.WithActorRotation(pipeline.NewRoundRobinRotation(cfg.Actors())),
		pipeline.WithInitialQueueLength(cfg.Project.Pipeline.InitialQueue),
	)
	if err != nil {
		return nil, err
	}

	// Every active-stage transition lands in the logbook; an activation of
	// stage 0 past turn 1 is the rollover marker.
	controller.SubscribeActiveStageChange(func(change pipeline.ActiveStageChange) {
		if change.StageIndex == 0 && change.Turn > 1 {
			lb.TurnCompleted(change.Turn-1, controller.Snapshot().QueueLength)
		}
		lb.StageActivated(change.Turn, change.StageID, change.StageName)
	})

	sched, err := scheduler.New(controller, cfg.TickInterval(), scheduler.WithLogger(lb))
	if err != nil {
		return nil, err
	}
	return &runtime{config: cfg, logbook: lb, controller: controller, scheduler: sched}, nil
}

func runHeadless(rt *runtime) error {
	if err := rt.scheduler.Start(); err != nil {
		return err
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	rt.logbook.Info("session %s closing on signal", rt.controller.RunID())
	return rt.scheduler.Stop()
}

func runDashboard(app *AppContext, rt *runtime) error {
	program := tea.NewProgram(
		tui.NewApp(rt.config, rt.controller, rt.scheduler, rt.logbook),
		tea.WithAltScreen(),
		tea.WithInput(app.IO.In),
		tea.WithOutput(app.IO.Out),
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("cli: dashboard: %w", err)
	}
	if err := rt.scheduler.Stop(); err != nil {
		return err
	}
	rt.logbook.Info("session %s closed", rt.controller.RunID())
	return nil
}
