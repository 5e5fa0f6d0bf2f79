// Command ledpanel scans pushbuttons on I/O expanders, toggles the matching
// LEDs and keeps a state server in step.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/ledpanel/internal/config"
	"github.com/sweeney/ledpanel/internal/controller"
	"github.com/sweeney/ledpanel/internal/expander"
	"github.com/sweeney/ledpanel/internal/logic"
	"github.com/sweeney/ledpanel/internal/mqtt"
	"github.com/sweeney/ledpanel/internal/statesync"
	"github.com/sweeney/ledpanel/internal/status"
	"github.com/sweeney/ledpanel/internal/web"
)

func main() {
	flags := config.RegisterFlags(flag.CommandLine)
	printState := flag.Bool("print-state", false, "Print current button levels and exit")
	flag.Parse()

	cfg, err := loadConfig(flags)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	setupLogging(cfg.LogLevel)

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func loadConfig(flags *config.Flags) (config.Config, error) {
	cfg, err := config.Load(flags.Path)
	if err != nil {
		return config.Config{}, err
	}
	if err := flags.Apply(&cfg); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func setupLogging(level string) {
	log.SetFlags(log.LstdFlags)
	if level == "debug" {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
}

func run(cfg config.Config, printState bool) error {
	// Hardware first: a missing expander is fatal.
	port, err := openPort(cfg)
	if err != nil {
		return err
	}
	defer port.Close()

	if printState {
		return printLevels(os.Stdout, port, cfg.NumChips(), cfg.PinsPerChip)
	}

	client, err := newSyncClient(cfg)
	if err != nil {
		return err
	}

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTTBroker != "" {
		p := mqtt.NewRealPublisher(cfg.MQTTBroker, mqtt.DefaultQueueSize)
		defer p.Close()
		publisher, mqttStatus = p, p
	}

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	grid := logic.NewGrid(cfg.NumChips(), cfg.PinsPerChip, cfg.DebounceWindow())
	ctrl := controller.New(grid, port, client, controller.Options{
		PushMode:     pushMode(cfg.PushMode),
		OutboxSize:   cfg.OutboxSize,
		PollInterval: cfg.PollInterval(),
		Mirror:       publisher,
		MirrorStatus: mqttStatus,
		Tracker:      tracker,
	})

	log.Printf("started: backend=%s chips=%d pins=%d debounce=%v poll=%v sync=%q push=%s broker=%q",
		cfg.Backend, cfg.NumChips(), cfg.PinsPerChip, cfg.DebounceWindow(), cfg.PollInterval(),
		cfg.SyncEndpoint, cfg.PushMode, cfg.MQTTBroker)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctrl, publisher, mqttStatus, tracker, time.Now, sigCh)
}

// runner is the part of the controller runLoop drives.
type runner interface {
	Run(ctx context.Context) error
}

// runLoop publishes STARTUP, runs the controller until a signal arrives, then
// publishes SHUTDOWN once the controller has stopped.
func runLoop(ctrl runner, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, sig <-chan os.Signal) error {
	publishLifecycle(publisher, mqttStatus, tracker, now, "STARTUP", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	select {
	case s := <-sig:
		log.Printf("received %v, shutting down", s)
		cancel()
		if err := <-done; err != nil {
			log.Printf("controller: %v", err)
		}
		publishLifecycle(publisher, mqttStatus, tracker, now, "SHUTDOWN", signalName(s))
		return nil
	case err := <-done:
		return err
	}
}

func publishLifecycle(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, event, reason string) {
	if publisher == nil {
		return
	}
	ev := mqtt.SystemEvent{
		Timestamp: now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if tracker != nil {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		ev.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), event, reason)
	}
	if err := publisher.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
		return
	}
	log.Printf("published %s event", event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func openPort(cfg config.Config) (expander.Port, error) {
	switch cfg.Backend {
	case config.BackendGPIOCdev:
		g, err := expander.OpenGPIOCdev(cfg.GPIOChips, cfg.PinsPerChip)
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		return g, nil
	case config.BackendFake:
		log.Printf("expander: using fake backend, no hardware will be touched")
		return expander.NewFakePort(), nil
	default:
		m, err := expander.OpenMCP23017(cfg.I2CBus, cfg.BusAddresses)
		if err != nil {
			return nil, fmt.Errorf("init expanders: %w", err)
		}
		if err := m.Init(cfg.PinsPerChip); err != nil {
			m.Close()
			return nil, fmt.Errorf("init expanders: %w", err)
		}
		return m, nil
	}
}

func newSyncClient(cfg config.Config) (statesync.Client, error) {
	if cfg.SyncEndpoint == "" {
		log.Printf("sync: no endpoint configured, running standalone")
		return statesync.Disabled{}, nil
	}
	c, err := statesync.NewHTTPClient(cfg.SyncEndpoint, cfg.SyncTimeout(), statesync.InterfaceCheck{})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func pushMode(s string) controller.PushMode {
	if s == config.PushAsync {
		return controller.PushAsync
	}
	return controller.PushBlocking
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Backend:      cfg.Backend,
		BusAddresses: cfg.BusAddresses,
		PinsPerChip:  cfg.PinsPerChip,
		DebounceMs:   int64(cfg.DebounceWindowMs),
		PollMs:       int64(cfg.PollIntervalMs),
		SyncEndpoint: cfg.SyncEndpoint,
		PushMode:     cfg.PushMode,
		Broker:       cfg.MQTTBroker,
		HTTPAddr:     cfg.HTTPAddr,
	}
}

// printLevels writes one line per chip with the raw button levels.
func printLevels(w io.Writer, port logic.Port, numChips, pinsPerChip int) error {
	for chip := 0; chip < numChips; chip++ {
		fmt.Fprintf(w, "chip %d:", chip)
		for pin := 0; pin < pinsPerChip; pin++ {
			level, err := port.ReadPin(chip, pin+logic.ButtonOffset)
			if err != nil {
				return fmt.Errorf("read chip %d pin %d: %w", chip, pin, err)
			}
			state := "released"
			if !level {
				state = "pressed"
			}
			fmt.Fprintf(w, " %d=%s", pin, state)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
