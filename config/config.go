package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Aashish23092/invoice-flow/utils/imageproc"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	OCR      OCRConfig      `yaml:"ocr" mapstructure:"ocr"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Workflow WorkflowConfig `yaml:"workflow" mapstructure:"workflow"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Redis    RedisConfig    `yaml:"redis" mapstructure:"redis"`
	NATS     NATSConfig     `yaml:"nats" mapstructure:"nats"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Port        int    `yaml:"port" mapstructure:"port"`
	MaxUploadMB int64  `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	UploadDir   string `yaml:"upload_dir" mapstructure:"upload_dir"`
}

// MaxUploadBytes returns the upload limit in bytes.
func (c ServerConfig) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// OCRConfig configures recognition and preprocessing.
type OCRConfig struct {
	Provider           string   `yaml:"provider" mapstructure:"provider"`
	TessdataPrefix     string   `yaml:"tessdata_prefix" mapstructure:"tessdata_prefix"`
	Languages          []string `yaml:"languages" mapstructure:"languages"`
	PaddleURL          string   `yaml:"paddle_url" mapstructure:"paddle_url"`
	PaddleTimeoutSecs  int      `yaml:"paddle_timeout_secs" mapstructure:"paddle_timeout_secs"`
	EnhanceContrast    bool     `yaml:"enhance_contrast" mapstructure:"enhance_contrast"`
	ContrastPercent    float64  `yaml:"contrast_percent" mapstructure:"contrast_percent"`
	DenoiseSigma       float64  `yaml:"denoise_sigma" mapstructure:"denoise_sigma"`
	BlockSize          int      `yaml:"block_size" mapstructure:"block_size"`
	Offset             float64  `yaml:"offset" mapstructure:"offset"`
	Despeckle          bool     `yaml:"despeckle" mapstructure:"despeckle"`
	MergeMinConfidence float64  `yaml:"merge_min_confidence" mapstructure:"merge_min_confidence"`
}

// PreprocessOptions maps the OCR settings onto the preprocessing chain.
func (c OCRConfig) PreprocessOptions() imageproc.Options {
	opts := imageproc.Options{
		DenoiseSigma: c.DenoiseSigma,
		BlockSize:    c.BlockSize,
		Offset:       c.Offset,
		Cleanup:      c.Despeckle,
	}
	if c.EnhanceContrast {
		opts.Contrast = c.ContrastPercent
	}
	return opts
}

// ScoringConfig configures the priority scorer.
type ScoringConfig struct {
	StrategicVendors []string `yaml:"strategic_vendors" mapstructure:"strategic_vendors"`
}

// WorkflowConfig configures automation and reminders.
type WorkflowConfig struct {
	AutomationConcurrency int   `yaml:"automation_concurrency" mapstructure:"automation_concurrency"`
	ReminderDays          []int `yaml:"reminder_days" mapstructure:"reminder_days"`
	EscalationDays        []int `yaml:"escalation_days" mapstructure:"escalation_days"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	CatalogFile string `yaml:"catalog_file" mapstructure:"catalog_file"`
	Migrate     bool   `yaml:"migrate" mapstructure:"migrate"`
}

// RedisConfig configures the shared lock and reminder ledger. An empty URL
// keeps both in process.
type RedisConfig struct {
	URL       string `yaml:"url" mapstructure:"url"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// NATSConfig configures notification delivery. An empty URL logs
// notifications instead of publishing them.
type NATSConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	Subject string `yaml:"subject" mapstructure:"subject"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	if path := os.Getenv("INVOICEFLOW_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("INVOICEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.upload_dir", os.TempDir())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ocr.provider", "tesseract")
	v.SetDefault("ocr.tessdata_prefix", "/usr/share/tesseract-ocr/4.00/tessdata")
	v.SetDefault("ocr.languages", []string{"eng", "fra"})
	v.SetDefault("ocr.paddle_url", "http://localhost:8866/predict/ocr_system")
	v.SetDefault("ocr.paddle_timeout_secs", 30)
	v.SetDefault("ocr.enhance_contrast", false)
	v.SetDefault("ocr.contrast_percent", 30.0)
	v.SetDefault("ocr.denoise_sigma", 0.6)
	v.SetDefault("ocr.block_size", 11)
	v.SetDefault("ocr.offset", 2.0)
	v.SetDefault("ocr.despeckle", true)
	v.SetDefault("ocr.merge_min_confidence", 0.5)
	v.SetDefault("scoring.strategic_vendors", []string{"Microsoft", "Google", "Amazon", "Oracle"})
	v.SetDefault("workflow.automation_concurrency", 4)
	v.SetDefault("workflow.reminder_days", []int{7, 3, 1})
	v.SetDefault("workflow.escalation_days", []int{1, 3, 7, 14, 30})
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.catalog_file", "")
	v.SetDefault("store.migrate", false)
	v.SetDefault("redis.key_prefix", "invoiceflow:")
	v.SetDefault("nats.subject", "invoiceflow.notifications")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for the postgres driver")
		}
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.OCR.Provider {
	case "tesseract", "paddle":
	default:
		return eris.Errorf("config: unknown ocr provider %q", c.OCR.Provider)
	}
	if c.OCR.BlockSize < 3 || c.OCR.BlockSize%2 == 0 {
		return eris.Errorf("config: ocr.block_size must be an odd number >= 3, got %d", c.OCR.BlockSize)
	}
	if c.Workflow.AutomationConcurrency < 1 {
		return eris.Errorf("config: workflow.automation_concurrency must be positive, got %d", c.Workflow.AutomationConcurrency)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
