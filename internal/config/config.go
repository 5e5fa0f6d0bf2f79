// Package config loads daemon settings from a YAML file and command-line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/ledpanel/internal/expander"
	"github.com/sweeney/ledpanel/internal/logic"
)

// Backends.
const (
	BackendMCP23017 = "mcp23017"
	BackendGPIOCdev = "gpiocdev"
	BackendFake     = "fake"
)

// Push modes.
const (
	PushBlocking = "blocking"
	PushAsync    = "async"
)

// Config holds every daemon setting. Durations are whole milliseconds so the
// file stays readable.
type Config struct {
	Backend      string   `yaml:"backend"`
	BusAddresses []uint16 `yaml:"bus_addresses"`
	I2CBus       string   `yaml:"i2c_bus"`
	GPIOChips    []string `yaml:"gpio_chips"`
	PinsPerChip  int      `yaml:"pins_per_chip"`

	DebounceWindowMs int `yaml:"debounce_window_ms"`
	PollIntervalMs   int `yaml:"poll_interval_ms"`

	SyncEndpoint  string `yaml:"sync_endpoint"`
	SyncTimeoutMs int    `yaml:"sync_timeout_ms"`
	PushMode      string `yaml:"push_mode"`
	OutboxSize    int    `yaml:"outbox_size"`

	MQTTBroker string `yaml:"mqtt_broker"`
	HTTPAddr   string `yaml:"http_addr"`
	LogLevel   string `yaml:"log_level"`
}

// Default returns the settings used when neither file nor flag says otherwise.
func Default() Config {
	return Config{
		Backend:          BackendMCP23017,
		BusAddresses:     append([]uint16(nil), expander.DefaultAddresses...),
		PinsPerChip:      6,
		DebounceWindowMs: int(logic.DefaultDebounce / time.Millisecond),
		PollIntervalMs:   1,
		SyncTimeoutMs:    3000,
		PushMode:         PushBlocking,
		OutboxSize:       32,
		HTTPAddr:         ":80",
		LogLevel:         "info",
	}
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load reads the file at path. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// NumChips returns how many expanders the configured backend drives.
func (c Config) NumChips() int {
	if c.Backend == BackendGPIOCdev {
		return len(c.GPIOChips)
	}
	return len(c.BusAddresses)
}

// DebounceWindow returns the debounce window.
func (c Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceWindowMs) * time.Millisecond
}

// PollInterval returns the pause between scan passes. Zero means none.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// SyncTimeout returns the per-request timeout for the state server.
func (c Config) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutMs) * time.Millisecond
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendMCP23017, BackendFake:
		if len(c.BusAddresses) == 0 {
			errs = append(errs, errors.New("bus_addresses: at least one address required"))
		}
		seen := make(map[uint16]bool)
		for _, a := range c.BusAddresses {
			if a < 0x08 || a > 0x77 {
				errs = append(errs, fmt.Errorf("bus_addresses: %#02x is not a 7-bit device address", a))
			}
			if seen[a] {
				errs = append(errs, fmt.Errorf("bus_addresses: %#02x listed twice", a))
			}
			seen[a] = true
		}
	case BackendGPIOCdev:
		if len(c.GPIOChips) == 0 {
			errs = append(errs, errors.New("gpio_chips: at least one chip required"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend: unknown %q", c.Backend))
	}

	if c.PinsPerChip < 1 || c.PinsPerChip > logic.MaxPinsPerChip {
		errs = append(errs, fmt.Errorf("pins_per_chip: %d out of range 1..%d", c.PinsPerChip, logic.MaxPinsPerChip))
	}
	if c.DebounceWindowMs < 0 {
		errs = append(errs, errors.New("debounce_window_ms: must not be negative"))
	}
	if c.PollIntervalMs < 0 {
		errs = append(errs, errors.New("poll_interval_ms: must not be negative"))
	}
	if c.SyncTimeoutMs < 0 {
		errs = append(errs, errors.New("sync_timeout_ms: must not be negative"))
	}
	if c.SyncEndpoint != "" {
		u, err := url.Parse(c.SyncEndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("sync_endpoint: %q is not an http(s) URL", c.SyncEndpoint))
		}
	}
	switch c.PushMode {
	case PushBlocking:
	case PushAsync:
		if c.OutboxSize < 1 {
			errs = append(errs, errors.New("outbox_size: must be at least 1 in async mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("push_mode: unknown %q", c.PushMode))
	}
	switch c.LogLevel {
	case "", "info", "debug":
	default:
		errs = append(errs, fmt.Errorf("log_level: unknown %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

// Flags binds command-line flags that override file settings. Only flags
// actually given on the command line take effect.
type Flags struct {
	fs *flag.FlagSet

	Path string

	backend     string
	addresses   string
	i2cBus      string
	gpioChips   string
	pins        int
	debounce    time.Duration
	poll        time.Duration
	endpoint    string
	syncTimeout time.Duration
	pushMode    string
	outboxSize  int
	broker      string
	httpAddr    string
	logLevel    string
}

// RegisterFlags defines the config flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	d := Default()
	f := &Flags{fs: fs}
	fs.StringVar(&f.Path, "config", "", "YAML config file")
	fs.StringVar(&f.backend, "backend", d.Backend, "Expander backend: mcp23017, gpiocdev or fake")
	fs.StringVar(&f.addresses, "addresses", "0x20,0x21,0x22", "Comma-separated I2C expander addresses")
	fs.StringVar(&f.i2cBus, "i2c-bus", d.I2CBus, "I2C bus name (empty for the first available)")
	fs.StringVar(&f.gpioChips, "gpio-chips", "", "Comma-separated gpiochip names, one per expander (gpiocdev backend)")
	fs.IntVar(&f.pins, "pins", d.PinsPerChip, "Button/LED pairs per expander")
	fs.DurationVar(&f.debounce, "debounce", d.DebounceWindow(), "Debounce window")
	fs.DurationVar(&f.poll, "poll", d.PollInterval(), "Pause between scan passes (0 for none)")
	fs.StringVar(&f.endpoint, "sync", d.SyncEndpoint, "State server base URL (empty to disable)")
	fs.DurationVar(&f.syncTimeout, "sync-timeout", d.SyncTimeout(), "State server request timeout")
	fs.StringVar(&f.pushMode, "push-mode", d.PushMode, "Push dispatch: blocking or async")
	fs.IntVar(&f.outboxSize, "outbox", d.OutboxSize, "Async push queue size")
	fs.StringVar(&f.broker, "broker", d.MQTTBroker, "MQTT broker address (empty to disable)")
	fs.StringVar(&f.httpAddr, "http", d.HTTPAddr, "HTTP status address (empty to disable)")
	fs.StringVar(&f.logLevel, "log-level", d.LogLevel, "Log level: info or debug")
	return f
}

// Apply copies explicitly set flags onto cfg.
func (f *Flags) Apply(cfg *Config) error {
	var err error
	f.fs.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "backend":
			cfg.Backend = f.backend
		case "addresses":
			cfg.BusAddresses, err = ParseAddresses(f.addresses)
		case "i2c-bus":
			cfg.I2CBus = f.i2cBus
		case "gpio-chips":
			cfg.GPIOChips = splitList(f.gpioChips)
		case "pins":
			cfg.PinsPerChip = f.pins
		case "debounce":
			cfg.DebounceWindowMs = int(f.debounce.Milliseconds())
		case "poll":
			cfg.PollIntervalMs = int(f.poll.Milliseconds())
		case "sync":
			cfg.SyncEndpoint = f.endpoint
		case "sync-timeout":
			cfg.SyncTimeoutMs = int(f.syncTimeout.Milliseconds())
		case "push-mode":
			cfg.PushMode = f.pushMode
		case "outbox":
			cfg.OutboxSize = f.outboxSize
		case "broker":
			cfg.MQTTBroker = f.broker
		case "http":
			cfg.HTTPAddr = f.httpAddr
		case "log-level":
			cfg.LogLevel = f.logLevel
		}
	})
	return err
}

// ParseAddresses parses "0x20,0x21" style lists. Decimal and octal forms are
// accepted as well.
func ParseAddresses(s string) ([]uint16, error) {
	parts := splitList(s)
	addrs := make([]uint16, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("address %q: %w", p, err)
		}
		addrs = append(addrs, uint16(v))
	}
	return addrs, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
