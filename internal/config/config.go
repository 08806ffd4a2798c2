package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Solver SolverConfig `yaml:"solver" mapstructure:"solver"`
	Model  ModelConfig  `yaml:"model" mapstructure:"model"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Sweep  SweepConfig  `yaml:"sweep" mapstructure:"sweep"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// SolverConfig selects and tunes the external MIP solver.
type SolverConfig struct {
	Backend        string  `yaml:"backend" mapstructure:"backend"`
	SCIPPath       string  `yaml:"scip_path" mapstructure:"scip_path"`
	GurobiPath     string  `yaml:"gurobi_path" mapstructure:"gurobi_path"`
	TimeLimitSecs  float64 `yaml:"time_limit_secs" mapstructure:"time_limit_secs"`
	MIPGap         float64 `yaml:"mip_gap" mapstructure:"mip_gap"`
	AcceptFeasible bool    `yaml:"accept_feasible" mapstructure:"accept_feasible"`
	KeepFiles      bool    `yaml:"keep_files" mapstructure:"keep_files"`
	CheckSolution  bool    `yaml:"check_solution" mapstructure:"check_solution"`
}

// ModelConfig holds default model parameters used when a flag is not given.
type ModelConfig struct {
	Aversion        float64 `yaml:"aversion" mapstructure:"aversion"`
	MinPercent      float64 `yaml:"min_percent" mapstructure:"min_percent"`
	DefaultCapacity float64 `yaml:"default_capacity" mapstructure:"default_capacity"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SweepConfig configures concurrent scenario sweeps.
type SweepConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxBodyMB      int64    `yaml:"max_body_mb" mapstructure:"max_body_mb"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EFL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("solver.backend", "scip")
	v.SetDefault("solver.scip_path", "scip")
	v.SetDefault("solver.gurobi_path", "gurobi_cl")
	v.SetDefault("solver.time_limit_secs", 3600)
	v.SetDefault("solver.mip_gap", 0)
	v.SetDefault("solver.accept_feasible", false)
	v.SetDefault("solver.keep_files", false)
	v.SetDefault("solver.check_solution", true)
	v.SetDefault("model.aversion", -1.0)
	v.SetDefault("model.min_percent", 0)
	v.SetDefault("model.default_capacity", 0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "efl.db")
	v.SetDefault("sweep.max_concurrent", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_mb", 64)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
}

// Validate checks the settings a command needs before it starts work.
// Supported modes are "optimize", "serve" and "store".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "optimize":
		problems = append(problems, c.validateSolver()...)
	case "serve":
		problems = append(problems, c.validateSolver()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
		}
	case "store":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateSolver() []string {
	var problems []string
	switch c.Solver.Backend {
	case "scip":
		if c.Solver.SCIPPath == "" {
			problems = append(problems, "solver.scip_path is required")
		}
	case "gurobi":
		if c.Solver.GurobiPath == "" {
			problems = append(problems, "solver.gurobi_path is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("solver.backend %q is not supported", c.Solver.Backend))
	}
	if c.Solver.TimeLimitSecs < 0 {
		problems = append(problems, "solver.time_limit_secs must not be negative")
	}
	if c.Solver.MIPGap < 0 || c.Solver.MIPGap >= 1 {
		problems = append(problems, "solver.mip_gap must be in [0, 1)")
	}
	return problems
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
