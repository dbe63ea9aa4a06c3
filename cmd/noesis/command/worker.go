package command

import (
	"context"
	"fmt"
	"time"

	"github.com/pixil98/go-service"

	"github.com/noesisproject/noesis/internal/bridge"
	"github.com/noesisproject/noesis/internal/dispatch"
	"github.com/noesisproject/noesis/internal/driver"
	"github.com/noesisproject/noesis/internal/engine"
	"github.com/noesisproject/noesis/internal/event"
	"github.com/noesisproject/noesis/internal/listener"
	"github.com/noesisproject/noesis/internal/world"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	// Load the seed catalog
	specs, err := cfg.Storage.BuildSpecStore()
	if err != nil {
		return nil, fmt.Errorf("creating spec store: %w", err)
	}

	// Open the journal and read everything committed so far
	journal, journaled, err := cfg.Journal.BuildJournal()
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// Create the messaging server
	nats, err := cfg.Nats.buildNatsServer()
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}

	// Create the dispatcher
	var dispatchOpts []dispatch.DispatcherOpt
	if cfg.Dispatch.QueueDepth > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithQueueDepth(cfg.Dispatch.QueueDepth))
	}
	dispatcher := dispatch.NewDispatcher(nats, dispatchOpts...)

	// Create the engine and recover the world: replay the journal, void
	// attempts interrupted by the last shutdown, seed whatever the
	// catalog names that the journal has not created yet.
	eng := engine.New(event.NewLog(journal), world.NewStore(), dispatcher)
	if err := eng.Bootstrap(context.Background(), journaled, specs.GetAll()); err != nil {
		return nil, fmt.Errorf("bootstrapping world: %w", err)
	}

	// Create the bridge manager
	bridgeManager, err := bridge.NewManager(eng, nats, specs)
	if err != nil {
		return nil, fmt.Errorf("creating bridge manager: %w", err)
	}
	cm := listener.NewConnectionManager(bridgeManager)

	// Create Listeners
	listeners := make(service.WorkerList, len(cfg.Listeners))
	for i, l := range cfg.Listeners {
		lst, err := l.BuildListener(cm)
		if err != nil {
			return nil, fmt.Errorf("creating listener %d: %w", i, err)
		}
		listeners[fmt.Sprintf("listener-%d", i)] = lst
	}

	// Setup the driver: sweeps expired bonuses and redelivers unacked
	// packets on every tick.
	var driverOpts []driver.DriverOpt
	if cfg.TickInterval != "" {
		d, err := time.ParseDuration(cfg.TickInterval)
		if err != nil {
			return nil, fmt.Errorf("parsing tick_interval: %w", err)
		}
		driverOpts = append(driverOpts, driver.WithTickLength(d))
	}
	drv := driver.NewDriver([]driver.Manager{
		eng,
		dispatcher,
	}, driverOpts...)

	// Create a worker list
	return service.WorkerList{
		"nats":      nats,
		"dispatch":  dispatcher,
		"engine":    eng,
		"driver":    drv,
		"bridge":    bridgeManager,
		"listeners": &listeners,
	}, nil
}
