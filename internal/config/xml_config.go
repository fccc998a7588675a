// Package config provides XML-based configuration management for
// air-gapped deployment.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// AppConfig represents the root XML configuration structure.
type AppConfig struct {
	XMLName xml.Name `xml:"DiagLogAnalyzer"`

	Server  ServerConfig  `xml:"Server"`
	Storage StorageConfig `xml:"Storage"`
	Parsing ParsingConfig `xml:"Parsing"`
	Filter  FilterConfig  `xml:"Filter"`
	Results ResultsConfig `xml:"Results"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains archive storage settings. Upload size is
// bounded by Server.BodyLimit.
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	TempDirectory    string `xml:"TempDirectory"`
}

// ParsingConfig contains parse job tuning.
type ParsingConfig struct {
	CheckpointLines        int    `xml:"CheckpointLines"`
	DefaultTimezone        string `xml:"DefaultTimezone"`
	JobMaxAgeMinutes       int    `xml:"JobMaxAgeMinutes"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes"`
	ErrorRulesFile         string `xml:"ErrorRulesFile"`
}

// FilterConfig tunes the archive time-window pre-filter.
type FilterConfig struct {
	BufferMinutes             int     `xml:"BufferMinutes"`
	ReductionThresholdPercent float64 `xml:"ReductionThresholdPercent"`
}

// ResultsConfig controls the embedded result store.
type ResultsConfig struct {
	Directory        string `xml:"Directory"`
	RetentionHours   int    `xml:"RetentionHours"`
	DuckDBThreads    int    `xml:"DuckDBThreads"`
	DuckDBMemLimit   string `xml:"DuckDBMemoryLimit"`
	EnablePersisting bool   `xml:"EnablePersisting"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "2G",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/archives",
			TempDirectory:    "./data/temp",
		},
		Parsing: ParsingConfig{
			CheckpointLines:        5000,
			DefaultTimezone:        "UTC",
			JobMaxAgeMinutes:       30,
			CleanupIntervalMinutes: 5,
			ErrorRulesFile:         "",
		},
		Filter: FilterConfig{
			BufferMinutes:             60,
			ReductionThresholdPercent: 20,
		},
		Results: ResultsConfig{
			Directory:        "./data/results",
			RetentionHours:   72,
			DuckDBThreads:    2,
			DuckDBMemLimit:   "256MB",
			EnablePersisting: true,
		},
	}
}

// LoadConfig loads configuration from an XML file, creating the default
// file on first run.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save writes the configuration to an XML file.
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Diagnostic Log Analyzer Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override
// config values.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}
	if tempDir := os.Getenv("TEMP_DIR"); tempDir != "" {
		c.Storage.TempDirectory = tempDir
	}
}

// resolvePaths converts relative paths to absolute based on the config
// file location.
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.UploadsDirectory)
	resolve(&c.Storage.TempDirectory)
	resolve(&c.Results.Directory)
	resolve(&c.Parsing.ErrorRulesFile)
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories.
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
		c.Results.Directory,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
