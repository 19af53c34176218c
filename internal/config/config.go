package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Profile ProfileConfig `mapstructure:"profile"`
	Sampler SamplerConfig `mapstructure:"sampler"`
	Analyze AnalyzeConfig `mapstructure:"analyze"`
	Compare CompareConfig `mapstructure:"compare"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
}

type ProfileConfig struct {
	Command      string        `mapstructure:"command"`
	GuardTime    time.Duration `mapstructure:"guard_time"`
	HeartbeatDir string        `mapstructure:"heartbeat_dir"`
	OutputDir    string        `mapstructure:"output_dir"`
	SummaryFile  string        `mapstructure:"summary_file"`
	StdoutFile   string        `mapstructure:"stdout_file"`
	StderrFile   string        `mapstructure:"stderr_file"`
	Trials       int           `mapstructure:"trials"`
	ScopedLogs   bool          `mapstructure:"scoped_logs"`
	Shell        string        `mapstructure:"shell"`
}

type SamplerConfig struct {
	Type       string     `mapstructure:"type"`
	Binary     string     `mapstructure:"binary"`
	Args       []string   `mapstructure:"args"`
	OutputFile string     `mapstructure:"output_file"`
	RAPL       RAPLConfig `mapstructure:"rapl"`
}

type RAPLConfig struct {
	BasePath string        `mapstructure:"base_path"`
	Interval time.Duration `mapstructure:"interval"`
}

type AnalyzeConfig struct {
	Directory     string `mapstructure:"directory"`
	PowerProfiler string `mapstructure:"power_profiler"`
	Strict        bool   `mapstructure:"strict"`
	SkipBadTrials bool   `mapstructure:"skip_bad_trials"`
}

type CompareConfig struct {
	HeartbeatDir string `mapstructure:"heartbeat_dir"`
	SummaryFile  string `mapstructure:"summary_file"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type DBConfig struct {
	Type     string          `mapstructure:"type"`
	InfluxDB *InfluxDBConfig `mapstructure:"influxdb"`
}

type InfluxDBConfig struct {
	URL          string `mapstructure:"url"`
	Token        string `mapstructure:"token"`
	Org          string `mapstructure:"org"`
	TrialBucket  string `mapstructure:"trial_bucket"`
	SeriesBucket string `mapstructure:"series_bucket"`
}

const (
	SamplerExec = "exec"
	SamplerRAPL = "rapl"

	DBNone     = "none"
	DBInfluxDB = "influxdb"
)

// LoadConfig reads the YAML file at path on top of the built-in defaults.
// A missing file is not an error when optional is set. Flags listed in
// bindings (config key -> flag name) override file values when changed.
func LoadConfig(path string, optional bool, flags *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	v := viper.New()

	setDefaultConfig(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !optional || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
			log.Debugf("Config file %s not found, using defaults", path)
		}
	}

	if flags != nil {
		for key, name := range bindings {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("error binding flag --%s: %w", name, err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaultConfig(v *viper.Viper) {
	// Profile defaults
	v.SetDefault("profile.guard_time", "20s")
	v.SetDefault("profile.heartbeat_dir", ".")
	v.SetDefault("profile.output_dir", ".")
	v.SetDefault("profile.summary_file", "summary.txt")
	v.SetDefault("profile.stdout_file", "stdout.txt")
	v.SetDefault("profile.stderr_file", "stderr.txt")
	v.SetDefault("profile.trials", 1)
	v.SetDefault("profile.scoped_logs", false)
	v.SetDefault("profile.shell", "/bin/sh")

	// Sampler defaults
	v.SetDefault("sampler.type", SamplerExec)
	v.SetDefault("sampler.binary", "energymon")
	v.SetDefault("sampler.output_file", "energymon.txt")
	v.SetDefault("sampler.rapl.base_path", "/sys/class/powercap")
	v.SetDefault("sampler.rapl.interval", "100ms")

	// Analyze defaults
	v.SetDefault("analyze.directory", "heartbeat_logs")
	v.SetDefault("analyze.power_profiler", "APPLICATION")
	v.SetDefault("analyze.strict", false)
	v.SetDefault("analyze.skip_bad_trials", false)

	// Compare defaults
	v.SetDefault("compare.heartbeat_dir", "heartbeat_logs")
	v.SetDefault("compare.summary_file", "summary.txt")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// DB defaults
	v.SetDefault("db.type", DBNone)
}

func validateConfig(cfg *Config) error {
	if cfg.Profile.Trials <= 0 {
		return fmt.Errorf("number of trials must be greater than 0")
	}

	if cfg.Profile.GuardTime < 0 {
		return fmt.Errorf("guard time must not be negative")
	}

	if cfg.Profile.SummaryFile == "" || cfg.Profile.StdoutFile == "" || cfg.Profile.StderrFile == "" {
		return fmt.Errorf("summary, stdout and stderr file names must be specified")
	}

	switch cfg.Sampler.Type {
	case SamplerExec:
		if cfg.Sampler.Binary == "" {
			return fmt.Errorf("sampler binary is required when sampler type is exec")
		}
	case SamplerRAPL:
		if cfg.Sampler.RAPL.Interval <= 0 {
			return fmt.Errorf("rapl sampling interval must be greater than 0")
		}
	default:
		return fmt.Errorf("unsupported sampler type: %s", cfg.Sampler.Type)
	}

	if cfg.Sampler.OutputFile == "" {
		return fmt.Errorf("sampler output file must be specified")
	}

	switch cfg.DB.Type {
	case DBNone, "":
		cfg.DB.Type = DBNone
	case DBInfluxDB:
		if cfg.DB.InfluxDB == nil {
			return fmt.Errorf("influxdb configuration is required when type is influxdb")
		}
		if cfg.DB.InfluxDB.URL == "" || cfg.DB.InfluxDB.Token == "" ||
			cfg.DB.InfluxDB.Org == "" || cfg.DB.InfluxDB.TrialBucket == "" ||
			cfg.DB.InfluxDB.SeriesBucket == "" {
			return fmt.Errorf("incomplete influxdb configuration")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", cfg.DB.Type)
	}

	return nil
}

func PrintConfig(cfg *Config) {
	log.Debugf("=== Current Configuration Start ===")

	log.Debugf("Profile Configuration:")
	log.Debugf("  Guard Time: %v", cfg.Profile.GuardTime)
	log.Debugf("  Heartbeat Dir: %s", cfg.Profile.HeartbeatDir)
	log.Debugf("  Output Dir: %s", cfg.Profile.OutputDir)
	log.Debugf("  Summary File: %s", cfg.Profile.SummaryFile)
	log.Debugf("  Trials: %d", cfg.Profile.Trials)
	log.Debugf("  Scoped Logs: %v", cfg.Profile.ScopedLogs)

	log.Debugf("Sampler Configuration:")
	log.Debugf("  Type: %s", cfg.Sampler.Type)
	switch cfg.Sampler.Type {
	case SamplerExec:
		log.Debugf("  Binary: %s %v", cfg.Sampler.Binary, cfg.Sampler.Args)
	case SamplerRAPL:
		log.Debugf("  Powercap Path: %s", cfg.Sampler.RAPL.BasePath)
		log.Debugf("  Interval: %v", cfg.Sampler.RAPL.Interval)
	}
	log.Debugf("  Output File: %s", cfg.Sampler.OutputFile)

	log.Debugf("Database Configuration:")
	log.Debugf("  Type: %s", cfg.DB.Type)
	if cfg.DB.Type == DBInfluxDB && cfg.DB.InfluxDB != nil {
		log.Debugf("  InfluxDB Settings:")
		log.Debugf("    URL: %s", cfg.DB.InfluxDB.URL)
		log.Debugf("    Organization: %s", cfg.DB.InfluxDB.Org)
		log.Debugf("    Trial Bucket: %s", cfg.DB.InfluxDB.TrialBucket)
		log.Debugf("    Series Bucket: %s", cfg.DB.InfluxDB.SeriesBucket)
		log.Debugf("    Token: %s", tokenPreview(cfg.DB.InfluxDB.Token))
	}

	log.Debugf("=== Current Configuration End ===")
}

func tokenPreview(token string) string {
	if len(token) <= 10 {
		return "***"
	}
	return token[:10] + "..."
}
