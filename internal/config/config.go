package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the main configuration structure.
type Config struct {
	MaxFileSizeMB       float64           `mapstructure:"max_file_size_mb"`
	SupportedExtensions []string          `mapstructure:"supported_extensions"`
	Processing          ProcessingConfig  `mapstructure:"processing"`
	Performance         PerformanceConfig `mapstructure:"performance"`
	Web                 WebConfig         `mapstructure:"web"`
	Logging             LoggingConfig     `mapstructure:"logging"`
}

// ProcessingConfig contains output and metadata handling settings.
type ProcessingConfig struct {
	OutputSuffix     string `mapstructure:"output_suffix"`
	PreserveMetadata bool   `mapstructure:"preserve_metadata"`
	SkipReduced      bool   `mapstructure:"skip_reduced"`
}

// PerformanceConfig contains batch performance tuning settings.
type PerformanceConfig struct {
	WorkerThreads int  `mapstructure:"worker_threads"`
	ShowProgress  bool `mapstructure:"show_progress"`
}

// WebConfig contains settings for the web interface.
type WebConfig struct {
	Port            int     `mapstructure:"port"`
	MaxUploadSizeMB float64 `mapstructure:"max_upload_size_mb"`
	MaxBudgetMB     float64 `mapstructure:"max_budget_mb"`
	UploadDirectory string  `mapstructure:"upload_directory"`
	OutputDirectory string  `mapstructure:"output_directory"`
	FileTTLMinutes  int     `mapstructure:"file_ttl_minutes"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		MaxFileSizeMB: 1.0,
		SupportedExtensions: []string{
			".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp",
		},
		Processing: ProcessingConfig{
			OutputSuffix:     "_reduced",
			PreserveMetadata: false,
			SkipReduced:      false,
		},
		Performance: PerformanceConfig{
			WorkerThreads: 0, // 0 means use the CPU count
			ShowProgress:  true,
		},
		Web: WebConfig{
			Port:            8080,
			MaxUploadSizeMB: 50,
			MaxBudgetMB:     10,
			UploadDirectory: "uploads",
			OutputDirectory: "outputs",
			FileTTLMinutes:  60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "image-reducer.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.image-reducer")
		viper.AddConfigPath("/etc/image-reducer")
	}

	viper.SetEnvPrefix("IMAGE_REDUCER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Missing config file is fine, defaults apply.
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate validates and normalizes the configuration.
func (c *Config) Validate() error {
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("max_file_size_mb must be positive, got %v", c.MaxFileSizeMB)
	}

	if len(c.SupportedExtensions) == 0 {
		c.SupportedExtensions = DefaultConfig().SupportedExtensions
	}
	c.SupportedExtensions = normalizeExtensions(c.SupportedExtensions)

	if c.Processing.OutputSuffix == "" {
		c.Processing.OutputSuffix = "_reduced"
	}

	if c.Performance.WorkerThreads < 0 {
		c.Performance.WorkerThreads = 0
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port: %d", c.Web.Port)
	}
	if c.Web.MaxUploadSizeMB <= 0 {
		c.Web.MaxUploadSizeMB = 50
	}
	if c.Web.MaxBudgetMB <= 0 {
		c.Web.MaxBudgetMB = 10
	}
	if c.Web.UploadDirectory == "" {
		c.Web.UploadDirectory = "uploads"
	}
	if c.Web.OutputDirectory == "" {
		c.Web.OutputDirectory = "outputs"
	}
	if c.Web.FileTTLMinutes <= 0 {
		c.Web.FileTTLMinutes = 60
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// BudgetBytes converts the configured maximum file size to bytes.
func (c *Config) BudgetBytes() int64 {
	return int64(c.MaxFileSizeMB * 1024 * 1024)
}

// IsSupportedExtension checks whether ext names a supported image format.
func (c *Config) IsSupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supported := range c.SupportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
