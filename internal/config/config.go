// Package config handles the parsing and validation of application configuration
// from command-line arguments, environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/woozymasta/launcherd/internal/logger"
	"github.com/woozymasta/launcherd/internal/vars"
)

// appDir is the directory name under the per-user config directory.
const appDir = "launcherd"

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Server    Server        `group:"Server Options" env-namespace:"LAUNCHERD"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"LAUNCHERD_DB"`
	Settings  Settings      `group:"Settings Options" namespace:"settings" env-namespace:"LAUNCHERD_SETTINGS"`
	Status    Status        `group:"Status Options" namespace:"status" env-namespace:"LAUNCHERD_STATUS"`
	A2S       A2S           `group:"A2S Options" namespace:"a2s" env-namespace:"LAUNCHERD_A2S"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"LAUNCHERD_GEOIP"`
	Install   Install       `group:"Install Options" namespace:"install" env-namespace:"LAUNCHERD_INSTALL"`
	Runtime   Runtime       `group:"Runtime Options" namespace:"runtime" env-namespace:"LAUNCHERD_RUNTIME"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"LAUNCHERD_RATE_LIMIT"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"LAUNCHERD_LOG"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Server holds command endpoint configuration.
type Server struct {
	// betteralign:ignore

	Address      string        `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Command endpoint listen address" default:"127.0.0.1:17420"`
	AuthToken    string        `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Bearer token required from the UI (empty disables auth)"`
	MaxBodySize  int64         `long:"max-body-size" env:"MAX_BODY_SIZE" description:"Max body size for command payloads" default:"65536"`
	WriteTimeout time.Duration `long:"write-timeout" env:"WRITE_TIMEOUT" description:"Response write timeout, must cover a full download" default:"30m"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path             string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite database (default: user config dir)"`
	HistoryRetention time.Duration `long:"history-retention" env:"HISTORY_RETENTION" description:"How long status history is kept" default:"168h"`
	PruneHistory     bool          `long:"prune-history" description:"Delete status history older than the retention and exit"`
	GenerateCount    int           `long:"gen-fake-data" hidden:"true"`
}

// Settings holds game settings persistence configuration.
type Settings struct {
	// betteralign:ignore

	Path  string `long:"path" env:"PATH" description:"Path to settings file (default: user config dir)"`
	Watch bool   `long:"watch" env:"WATCH" description:"Reload settings when the file is edited externally"`
}

// Status holds server status probing configuration.
type Status struct {
	// betteralign:ignore

	RefreshInterval time.Duration `long:"refresh-interval" env:"REFRESH_INTERVAL" description:"Background status refresh interval (0 disables)" default:"0s"`
	DegradedLatency time.Duration `long:"degraded-latency" env:"DEGRADED_LATENCY" description:"Query latency above which the server is reported degraded" default:"500ms"`
}

// A2S holds Source Query protocol configuration.
// An empty host keeps the built-in simulated status source.
type A2S struct {
	// betteralign:ignore

	Host       string        `long:"host" env:"HOST" description:"Game server host for A2S status queries"`
	Port       int           `long:"port" env:"PORT" description:"Game server query port" default:"27016"`
	Timeout    time.Duration `long:"timeout" env:"TIMEOUT" description:"Query timeout" default:"3s"`
	BufferSize uint16        `long:"buffer-size" env:"BUFFER_SIZE" description:"Response body buffer size" default:"1400"`
}

// GeoIP holds MaxMind GeoIP configuration. An empty path disables lookups.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file (empty disables country lookup)"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"168h"`
}

// Install holds client download and install configuration.
type Install struct {
	// betteralign:ignore

	Dir            string        `long:"dir" env:"DIR" description:"Directory for staged and installed client files (default: user config dir)"`
	SourceURL      string        `long:"source" env:"SOURCE" description:"Client artifact location: http(s) URL or local path (empty simulates the transfer)"`
	Checksum       string        `long:"checksum" env:"CHECKSUM" description:"Expected xxhash64 of the artifact in hex (empty skips verification)"`
	Version        string        `long:"client-version" env:"CLIENT_VERSION" description:"Version label recorded for the installed client" default:"latest"`
	StepDelay      time.Duration `long:"step-delay" env:"STEP_DELAY" description:"Delay between progress steps of the simulated transfer" default:"50ms"`
	InstallDelay   time.Duration `long:"install-delay" env:"INSTALL_DELAY" description:"Unpack delay" default:"1s"`
	UninstallDelay time.Duration `long:"uninstall-delay" env:"UNINSTALL_DELAY" description:"Uninstall delay" default:"500ms"`
}

// Runtime holds the external game runtime configuration.
type Runtime struct {
	// betteralign:ignore

	Executable   string        `long:"executable" env:"EXECUTABLE" description:"Runtime executable used for detection and as launch fallback" default:"java"`
	VersionFlag  string        `long:"version-flag" env:"VERSION_FLAG" description:"Argument that makes the runtime print its version" default:"-version"`
	CheckTimeout time.Duration `long:"check-timeout" env:"CHECK_TIMEOUT" description:"Runtime detection timeout" default:"10s"`
}

// RateLimit holds command rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	Count  int           `long:"count" env:"COUNT" description:"Requests allowed per client within the window (0 disables)" default:"120"`
	Window time.Duration `long:"window" env:"WINDOW" description:"Rate limit window duration" default:"1m"`
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	// .env is optional, already exported variables win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Failed to load .env file:", err)
	}

	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return cfg
}

// ParseArgs parses args into a Config and resolves default paths.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// resolvePaths fills empty path options with locations under the user config directory.
func (c *Config) resolvePaths() error {
	if c.Storage.Path != "" && c.Settings.Path != "" && c.Install.Dir != "" {
		return nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("resolve user config dir: %w", err)
	}
	base = filepath.Join(base, appDir)

	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(base, "launcherd.db")
	}
	if c.Settings.Path == "" {
		c.Settings.Path = filepath.Join(base, "settings.yaml")
	}
	if c.Install.Dir == "" {
		c.Install.Dir = filepath.Join(base, "client")
	}

	return nil
}

func (c *Config) validate() error {
	if c.A2S.Host != "" && (c.A2S.Port <= 0 || c.A2S.Port > 65535) {
		return fmt.Errorf("invalid a2s port %d", c.A2S.Port)
	}
	if c.RateLimit.Count > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if c.Install.StepDelay < 0 || c.Install.InstallDelay < 0 || c.Install.UninstallDelay < 0 {
		return fmt.Errorf("install delays must not be negative")
	}

	return nil
}
