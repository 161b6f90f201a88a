// pkg/core/config.go
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/dchest/safefile"
	"gopkg.in/yaml.v3"
)

const (
	// AppName names the XDG subdirectories
	AppName = "benpak"

	DefaultMaxConcurrentDownloads = 3
	DefaultCatalogRepository      = "https://github.com/arc-language/benpak"
	DefaultCatalogBranch          = "main"

	storeFileName = "installed.json"
)

// Config holds benpak configuration
type Config struct {
	InstallDirectory       string        `yaml:"install_directory"`
	StateDirectory         string        `yaml:"state_directory"`
	CacheDirectory         string        `yaml:"cache_directory"`
	DescriptorDirectories  []string      `yaml:"descriptor_directories"`
	ApplicationsDirectory  string        `yaml:"applications_directory"`
	BinDirectory           string        `yaml:"bin_directory"`
	CreateDesktopShortcuts bool          `yaml:"create_desktop_shortcuts"`
	CreatePathSymlinks     bool          `yaml:"create_path_symlinks"`
	DownloadTimeout        time.Duration `yaml:"download_timeout"`
	MaxConcurrentDownloads int           `yaml:"max_concurrent_downloads"`
	CatalogRepository      string        `yaml:"catalog_repository"`
	CatalogBranch          string        `yaml:"catalog_branch"`
	Debug                  bool          `yaml:"debug"`
}

// DefaultConfig returns a default configuration rooted in the XDG base directories
func DefaultConfig() *Config {
	cfg := &Config{
		CreateDesktopShortcuts: true,
		CreatePathSymlinks:     true,
	}
	cfg.fillDefaults()
	return cfg
}

// DefaultConfigPath is $XDG_CONFIG_HOME/benpak/config.yaml
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// LoadConfig loads configuration from file. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, E(KindConfiguration, "reading config", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, E(KindConfiguration, "parsing config", fmt.Errorf("%s: %w", path, err))
	}
	cfg.fillDefaults()

	return cfg, nil
}

// SaveConfig saves configuration to file
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := safefile.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// StorePath is the version store file, kept outside the install tree
func (c *Config) StorePath() string {
	return filepath.Join(c.StateDirectory, storeFileName)
}

// CatalogDirectory receives descriptors fetched by a catalog sync
func (c *Config) CatalogDirectory() string {
	return filepath.Join(c.StateDirectory, "catalog")
}

// DownloadDirectory holds in-flight artifacts
func (c *Config) DownloadDirectory() string {
	return filepath.Join(c.CacheDirectory, "downloads")
}

func (c *Config) fillDefaults() {
	if env := os.Getenv("BENPAK_INSTALL_PATH"); env != "" {
		c.InstallDirectory = env
	}
	if c.InstallDirectory == "" {
		c.InstallDirectory = filepath.Join(xdg.DataHome, AppName, "programs")
	}
	if c.StateDirectory == "" {
		c.StateDirectory = filepath.Join(xdg.DataHome, AppName)
	}
	if c.CacheDirectory == "" {
		c.CacheDirectory = filepath.Join(xdg.CacheHome, AppName)
	}
	if len(c.DescriptorDirectories) == 0 {
		c.DescriptorDirectories = []string{filepath.Join(xdg.ConfigHome, AppName, "packages")}
	}
	if c.ApplicationsDirectory == "" {
		c.ApplicationsDirectory = filepath.Join(xdg.DataHome, "applications")
	}
	if c.BinDirectory == "" {
		c.BinDirectory = defaultBinDirectory()
	}
	if c.MaxConcurrentDownloads <= 0 {
		c.MaxConcurrentDownloads = DefaultMaxConcurrentDownloads
	}
	if c.CatalogRepository == "" {
		c.CatalogRepository = DefaultCatalogRepository
	}
	if c.CatalogBranch == "" {
		c.CatalogBranch = DefaultCatalogBranch
	}
}

func defaultBinDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(xdg.DataHome, AppName, "bin")
	}
	return filepath.Join(home, ".local", "bin")
}
