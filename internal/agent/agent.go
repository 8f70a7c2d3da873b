package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"playbulb-controller/internal/ble"
	"playbulb-controller/internal/config"
	"playbulb-controller/internal/core"
	"playbulb-controller/internal/lua"
	"playbulb-controller/internal/mqtt"
	"playbulb-controller/internal/scheduler"
	"playbulb-controller/internal/server"

	"golang.org/x/time/rate"
)

// healthInterval is how often the orchestrator checks that the bulb is
// still connected.
const healthInterval = 10 * time.Second

// Agent owns the bulb session. The orchestrator goroutine in Run is the only
// code that touches the session; everything else sends commands.
type Agent struct {
	ctx     context.Context
	cancel  context.CancelFunc
	config  *config.Config
	wg      sync.WaitGroup
	started atomic.Bool
	stopped chan struct{}

	status         *core.Status
	eventBus       *core.EventBus
	commandChannel core.CommandChannel

	transport  ble.Transport
	limiter    *rate.Limiter
	retryDelay time.Duration

	sess     *session
	sessions chan *session
	lost     chan struct{}

	luaEngine  *lua.Engine
	scheduler  *scheduler.Scheduler
	server     *server.Server
	mqttClient *mqtt.Client
}

// NewAgent opens the configured transport and wires every front end.
func NewAgent(cfg *config.Config) (*Agent, error) {
	transport, err := OpenTransport(cfg)
	if err != nil {
		return nil, err
	}
	return newAgent(cfg, transport), nil
}

// OpenTransport returns the transport selected by ble.transport.
func OpenTransport(cfg *config.Config) (ble.Transport, error) {
	switch cfg.BLE.Transport {
	case "tinygo":
		return ble.NewTinyGoTransport(config.Duration(cfg.BLE.ScanTimeout), config.Duration(cfg.BLE.ConnectTimeout))
	case "bluez", "":
		return ble.NewBlueZTransport(cfg.BLE.Adapter)
	}
	return nil, fmt.Errorf("unknown transport '%s'", cfg.BLE.Transport)
}

func newAgent(cfg *config.Config, transport ble.Transport) *Agent {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		ctx:            ctx,
		cancel:         cancel,
		config:         cfg,
		stopped:        make(chan struct{}),
		status:         core.NewStatus(cfg.BLE.Address),
		eventBus:       core.NewEventBus(),
		commandChannel: make(core.CommandChannel, 20),
		transport:      transport,
		limiter:        rate.NewLimiter(rate.Limit(cfg.BLE.RateLimit), cfg.BLE.RateBurst),
		retryDelay:     config.Duration(cfg.BLE.RetryDelay),
		sessions:       make(chan *session),
		lost:           make(chan struct{}, 1),
	}

	a.luaEngine = lua.NewEngine(cfg.ScriptsDir, a.commandChannel, a.eventBus, a.status)
	a.scheduler = scheduler.NewScheduler(a.commandChannel, cfg.SchedulesFile)
	if cfg.Server.Enabled {
		a.server = server.NewServer(cfg.Server, a.commandChannel, a.eventBus, a.status, a.luaEngine, a.scheduler)
	}
	a.mqttClient = mqtt.NewClient(cfg, a.commandChannel, a.eventBus, a.status)

	return a
}

// Run starts the front ends and the connection loop, then runs the
// orchestrator until Shutdown.
func (a *Agent) Run() {
	a.started.Store(true)
	defer close(a.stopped)

	if a.mqttClient != nil {
		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				log.Printf("[Agent] MQTT setup error: %v", err)
			}
		}()
	}

	a.wg.Add(1)
	go a.connectLoop()

	a.scheduler.Start()

	if a.server != nil {
		go func() {
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[Agent] Server error: %v", err)
			}
		}()
	}

	health := time.NewTicker(healthInterval)
	defer health.Stop()

	log.Println("[Agent] Orchestrator ready.")
	for {
		select {
		case <-a.ctx.Done():
			log.Println("[Agent] Orchestrator shutting down...")
			a.detach()
			return
		case sess := <-a.sessions:
			a.attach(sess)
		case <-health.C:
			a.checkLink()
		case cmd := <-a.commandChannel:
			if err := a.handleCommand(cmd); err != nil {
				log.Printf("[Agent] %s failed: %v", cmd.Type, err)
				a.checkLink()
			}
		}
	}
}

// Shutdown stops the front ends, disconnects the bulb and waits for the
// background goroutines.
func (a *Agent) Shutdown() {
	a.scheduler.Stop()
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.server.Shutdown(ctx)
		cancel()
	}
	a.mqttClient.Disconnect()

	a.cancel()
	if a.started.Load() {
		<-a.stopped
	}
	a.wg.Wait()
	a.luaEngine.Close()
	if err := a.transport.Close(); err != nil {
		log.Printf("[Agent] Closing transport: %v", err)
	}
}
