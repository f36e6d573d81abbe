package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".unseen"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the on-disk YAML configuration. Every field is optional; zero
// values leave the corresponding default untouched.
type File struct {
	DataDir      string            `yaml:"dataDir,omitempty"`
	DownloadsDir string            `yaml:"downloadsDir,omitempty"`
	Tor          TorSection        `yaml:"tor,omitempty"`
	Probe        ProbeSection      `yaml:"probe,omitempty"`
	Browser      BrowserSection    `yaml:"browser,omitempty"`
	API          APISection        `yaml:"api,omitempty"`
	Containers   []ContainerConfig `yaml:"containers,omitempty"`
}

// TorSection configures the anonymity process.
type TorSection struct {
	Port             int           `yaml:"port,omitempty"`
	Backend          string        `yaml:"backend,omitempty"`
	Binary           string        `yaml:"binary,omitempty"`
	ResourcesDir     string        `yaml:"resourcesDir,omitempty"`
	VendorDir        string        `yaml:"vendorDir,omitempty"`
	ReadinessTimeout time.Duration `yaml:"readinessTimeout,omitempty"`
	PollInterval     time.Duration `yaml:"pollInterval,omitempty"`
	StartupTimeout   time.Duration `yaml:"startupTimeout,omitempty"`
	RetryBurst       int           `yaml:"retryBurst,omitempty"`
	RetryInterval    time.Duration `yaml:"retryInterval,omitempty"`
}

// ProbeSection configures the connectivity prober.
type ProbeSection struct {
	IPURL       string        `yaml:"ipURL,omitempty"`
	TorURL      string        `yaml:"torURL,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
}

// BrowserSection configures page loading and the request policy.
type BrowserSection struct {
	UserAgent          string        `yaml:"userAgent,omitempty"`
	StartURL           string        `yaml:"startURL,omitempty"`
	SearchURL          string        `yaml:"searchURL,omitempty"`
	Blocklist          string        `yaml:"blocklist,omitempty"`
	Timeout            time.Duration `yaml:"timeout,omitempty"`
	MaxBodySize        int64         `yaml:"maxBodySize,omitempty"`
	EphemeralContainer string        `yaml:"ephemeralContainer,omitempty"`
}

// APISection configures the control API.
type APISection struct {
	Listen string `yaml:"listen,omitempty"`
}

// LoadConfigFile loads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Apply overlays the non-zero values of f onto c.
func (c *Config) Apply(f *File) {
	if f == nil {
		return
	}

	setString(&c.DataDir, f.DataDir)
	setString(&c.DownloadsDir, f.DownloadsDir)

	setInt(&c.TorPort, f.Tor.Port)
	setString(&c.TorBackend, f.Tor.Backend)
	setString(&c.TorBinary, f.Tor.Binary)
	setString(&c.TorResourcesDir, f.Tor.ResourcesDir)
	setString(&c.TorVendorDir, f.Tor.VendorDir)
	setDuration(&c.TorReadinessTimeout, f.Tor.ReadinessTimeout)
	setDuration(&c.TorPollInterval, f.Tor.PollInterval)
	setDuration(&c.TorStartupTimeout, f.Tor.StartupTimeout)
	setInt(&c.StartRetryBurst, f.Tor.RetryBurst)
	setDuration(&c.StartRetryInterval, f.Tor.RetryInterval)

	setString(&c.ProbeIPURL, f.Probe.IPURL)
	setString(&c.ProbeTorURL, f.Probe.TorURL)
	setDuration(&c.ProbeTimeout, f.Probe.Timeout)
	setInt(&c.ProbeConcurrency, f.Probe.Concurrency)

	setString(&c.UserAgent, f.Browser.UserAgent)
	setString(&c.StartURL, f.Browser.StartURL)
	setString(&c.SearchURL, f.Browser.SearchURL)
	setString(&c.BlocklistPath, f.Browser.Blocklist)
	setDuration(&c.Timeout, f.Browser.Timeout)
	if f.Browser.MaxBodySize != 0 {
		c.MaxBodySize = f.Browser.MaxBodySize
	}
	setString(&c.EphemeralContainer, f.Browser.EphemeralContainer)

	setString(&c.ListenAddress, f.API.Listen)

	if len(f.Containers) > 0 {
		c.Containers = append([]ContainerConfig(nil), f.Containers...)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. .unseen in the current directory
// 3. .unseen in the user's home directory
// 4. config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), "config.yaml"))

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
