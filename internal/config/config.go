package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultTorPort is the SOCKS port the supervised Tor process listens on.
	// 9050 is the port a system Tor daemon uses, so an already running daemon
	// is detected and adopted instead of started twice.
	DefaultTorPort = 9050

	// DefaultTorBackend spawns the tor binary directly.
	DefaultTorBackend = BackendSpawn

	// DefaultReadinessTimeout bounds how long StartAndWait waits for the
	// SOCKS port to accept connections.
	DefaultReadinessTimeout = 45 * time.Second

	// DefaultPollInterval is the delay between two readiness connect attempts.
	DefaultPollInterval = 250 * time.Millisecond

	// DefaultTorStartupTimeout is used by the embedded backend, which blocks
	// until the daemon reports full bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultStartRetryBurst is the number of back-to-back Tor start attempts
	// allowed before attempts are throttled.
	DefaultStartRetryBurst = 3

	// DefaultStartRetryInterval is the refill period of the start throttle.
	DefaultStartRetryInterval = 10 * time.Second

	// DefaultProbeIPURL echoes the caller's address as {"ip": "..."}.
	DefaultProbeIPURL = "https://api.ipify.org?format=json"

	// DefaultProbeTorURL is the Tor Project's check page.
	DefaultProbeTorURL = "https://check.torproject.org/"

	// DefaultProbeTimeout bounds one probe (both requests).
	DefaultProbeTimeout = 30 * time.Second

	// DefaultProbeConcurrency limits concurrent probes in ProbeAll.
	DefaultProbeConcurrency = 4

	// DefaultTimeout is the request timeout for page loads. Requests routed
	// through Tor are slow, so this is generous.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxBodySize limits how much of an HTML document is read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultUserAgent is sent by every session. It is deliberately a common
	// desktop value so that sessions look alike.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:115.0) Gecko/20100101 Firefox/115.0"

	// DefaultStartURL is opened in new pages without an explicit URL.
	DefaultStartURL = "https://start.duckduckgo.com/"

	// DefaultSearchURL receives the escaped query for non-URL input.
	DefaultSearchURL = "https://duckduckgo.com/?q="

	// DefaultListenAddress is where the control API listens. Loopback only.
	DefaultListenAddress = "127.0.0.1:7878"

	// DefaultEphemeralContainer is the container whose storage is never kept.
	DefaultEphemeralContainer = "Private"

	// AppName is the application name used for XDG directory paths.
	AppName = "unseen"
)

// Tor backends.
const (
	// BackendSpawn starts the tor binary and parses its stdout.
	BackendSpawn = "spawn"
	// BackendEmbedded starts Tor through tornago.
	BackendEmbedded = "embedded"
)

// ContainerConfig declares a container that exists from startup.
type ContainerConfig struct {
	Name       string `yaml:"name"`
	Persistent bool   `yaml:"persistent"`
}

// Config holds all configuration options for unseen.
// It is populated from defaults, the YAML file and CLI flags, in that order,
// and passed to components explicitly.
type Config struct {
	// DataDir holds permissions.json, session.json, tor-data and partitions.
	DataDir string

	// DownloadsDir receives downloaded files.
	DownloadsDir string

	// TorPort is the SOCKS port of the anonymity process.
	TorPort int

	// TorBackend is BackendSpawn or BackendEmbedded.
	TorBackend string

	// TorBinary, when set, is tried before the bundled and vendor locations.
	TorBinary string

	// TorResourcesDir is the bundled resources directory. The tor binary is
	// looked up at <TorResourcesDir>/tor/<platform>/tor.
	TorResourcesDir string

	// TorVendorDir is the development-tree vendor directory, looked up at
	// <TorVendorDir>/tor/<platform>/tor.
	TorVendorDir string

	// TorReadinessTimeout bounds StartAndWait.
	TorReadinessTimeout time.Duration

	// TorPollInterval is the readiness poll period.
	TorPollInterval time.Duration

	// TorStartupTimeout is used by the embedded backend only.
	TorStartupTimeout time.Duration

	// StartRetryBurst and StartRetryInterval throttle repeated start attempts.
	StartRetryBurst    int
	StartRetryInterval time.Duration

	// ProbeIPURL and ProbeTorURL are the two probe endpoints.
	ProbeIPURL  string
	ProbeTorURL string

	// ProbeTimeout bounds one probe.
	ProbeTimeout time.Duration

	// ProbeConcurrency limits ProbeAll.
	ProbeConcurrency int

	// Timeout is the request timeout of page loads.
	Timeout time.Duration

	// MaxBodySize limits how many bytes of a document are read.
	MaxBodySize int64

	// UserAgent is the fixed User-Agent shared by all sessions.
	UserAgent string

	// StartURL is opened when no URL is given.
	StartURL string

	// SearchURL is the prefix for search queries.
	SearchURL string

	// BlocklistPath points to a pre-built domain block list. Empty disables
	// the block-list filter.
	BlocklistPath string

	// ListenAddress is the control API address.
	ListenAddress string

	// EphemeralContainer is created non-persistent when referenced implicitly.
	EphemeralContainer string

	// Containers are created at startup.
	Containers []ContainerConfig

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the explicit config file path, if any.
	ConfigFilePath string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		DataDir:             XDGDataDir(),
		DownloadsDir:        defaultDownloadsDir(),
		TorPort:             DefaultTorPort,
		TorBackend:          DefaultTorBackend,
		TorResourcesDir:     defaultResourcesDir(),
		TorVendorDir:        defaultVendorDir(),
		TorReadinessTimeout: DefaultReadinessTimeout,
		TorPollInterval:     DefaultPollInterval,
		TorStartupTimeout:   DefaultTorStartupTimeout,
		StartRetryBurst:     DefaultStartRetryBurst,
		StartRetryInterval:  DefaultStartRetryInterval,
		ProbeIPURL:          DefaultProbeIPURL,
		ProbeTorURL:         DefaultProbeTorURL,
		ProbeTimeout:        DefaultProbeTimeout,
		ProbeConcurrency:    DefaultProbeConcurrency,
		Timeout:             DefaultTimeout,
		MaxBodySize:         DefaultMaxBodySize,
		UserAgent:           DefaultUserAgent,
		StartURL:            DefaultStartURL,
		SearchURL:           DefaultSearchURL,
		ListenAddress:       DefaultListenAddress,
		EphemeralContainer:  DefaultEphemeralContainer,
		Containers: []ContainerConfig{
			{Name: DefaultEphemeralContainer, Persistent: false},
			{Name: "Work", Persistent: true},
			{Name: "Social", Persistent: true},
		},
	}
}

// PermissionsFile is the permission decision store.
func (c *Config) PermissionsFile() string {
	return filepath.Join(c.DataDir, "permissions.json")
}

// SessionFile is the container/page snapshot.
func (c *Config) SessionFile() string {
	return filepath.Join(c.DataDir, "session.json")
}

// TokenFile holds the bearer token of the running control API.
func (c *Config) TokenFile() string {
	return filepath.Join(c.DataDir, "api-token.json")
}

// TorDataDir is handed to tor as --DataDirectory.
func (c *Config) TorDataDir() string {
	return filepath.Join(c.DataDir, "tor-data")
}

// PartitionsDir holds one storage directory per partition.
func (c *Config) PartitionsDir() string {
	return filepath.Join(c.DataDir, "partitions")
}

// XDGDataDir returns the XDG data directory for unseen.
// On Linux: ~/.local/share/unseen
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for unseen.
// On Linux: ~/.config/unseen
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for unseen.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

func defaultDownloadsDir() string {
	if xdg.UserDirs.Download != "" {
		return xdg.UserDirs.Download
	}
	return filepath.Join(xdg.Home, "Downloads")
}

// defaultResourcesDir is the resources directory next to the executable,
// which is where packaged builds ship the tor binary.
func defaultResourcesDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "resources")
}

func defaultVendorDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return filepath.Join(cwd, "vendor")
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.TorPort < 1 || c.TorPort > 65535 {
		return ErrInvalidTorPort
	}

	if c.TorBackend != BackendSpawn && c.TorBackend != BackendEmbedded {
		return ErrInvalidTorBackend
	}

	if c.TorReadinessTimeout <= 0 {
		return ErrInvalidReadinessTimeout
	}

	if c.TorPollInterval <= 0 || c.TorPollInterval > c.TorReadinessTimeout {
		return ErrInvalidPollInterval
	}

	if c.StartRetryBurst <= 0 || c.StartRetryInterval <= 0 {
		return ErrInvalidRetryPolicy
	}

	if c.ProbeTimeout <= 0 {
		return ErrInvalidProbeTimeout
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.UserAgent == "" {
		return ErrEmptyUserAgent
	}

	if c.DataDir == "" {
		return ErrEmptyDataDir
	}

	seen := make(map[string]bool, len(c.Containers))
	for _, cc := range c.Containers {
		if cc.Name == "" {
			return ErrInvalidContainer
		}
		if seen[cc.Name] {
			return ErrDuplicateContainer
		}
		seen[cc.Name] = true
	}

	return nil
}
