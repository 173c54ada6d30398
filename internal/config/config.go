package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Tools   ToolsConfig   `yaml:"tools"`
	Dump    DumpConfig    `yaml:"dump"`
}

// StorageConfig holds local storage settings. Tool binaries live under
// <data_dir>/bin, dump working directories under <data_dir>/tmp.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`
}

// HTTPConfig holds settings for all outbound HTTP calls.
type HTTPConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent"`
}

// ToolsConfig holds release-host settings for the helper binaries.
type ToolsConfig struct {
	APIBaseURL      string `yaml:"api_base_url"`
	KsudRepo        string `yaml:"ksud_repo"`
	MagiskRepo      string `yaml:"magisk_repo"`
	PayloadDumpRepo string `yaml:"payload_dumper_repo"`
}

// DumpConfig holds partition dump settings.
type DumpConfig struct {
	// SupportedPartitions is an allow-list enforced by the CLI before a
	// dump starts. Empty means any partition name is accepted.
	SupportedPartitions []string `yaml:"supported_partitions"`
	// Compression is applied to extracted images: "none", "zstd" or "xz".
	Compression string `yaml:"compression"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: ".",
			DBPath:  "",
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 120,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
		},
		Tools: ToolsConfig{
			APIBaseURL:      "https://api.github.com",
			KsudRepo:        "tiann/KernelSU",
			MagiskRepo:      "topjohnwu/Magisk",
			PayloadDumpRepo: "ssut/payload-dumper-go",
		},
		Dump: DumpConfig{
			SupportedPartitions: []string{
				"boot", "dtbo", "init_boot", "modem", "modemfirmware",
				"recovery", "system_dlkm", "vbmeta", "vbmeta_system",
				"vbmeta_vendor", "vendor_boot", "vendor_dlkm",
			},
			Compression: "none",
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"otapatch.yaml",
		"/etc/otapatch/otapatch.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "otapatch", "otapatch.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// HTTPTimeout returns the outbound HTTP timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	if c.HTTP.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BinDir returns the root directory for cached tool binaries.
func (c *Config) BinDir() string {
	return filepath.Join(c.Storage.DataDir, "bin")
}

// TmpDir returns the root directory for dump working directories.
func (c *Config) TmpDir() string {
	return filepath.Join(c.Storage.DataDir, "tmp")
}

// PartitionSupported reports whether the allow-list permits the partition.
func (c *Config) PartitionSupported(name string) bool {
	if len(c.Dump.SupportedPartitions) == 0 {
		return true
	}
	for _, p := range c.Dump.SupportedPartitions {
		if p == name {
			return true
		}
	}
	return false
}
