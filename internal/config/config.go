package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	StaticDir      string   `mapstructure:"static_dir"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxBodyBytes   int64    `mapstructure:"max_body_bytes"`
}

type SandboxConfig struct {
	WorkDir        string        `mapstructure:"work_dir"`
	CompileTimeout time.Duration `mapstructure:"compile_timeout"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	SourceFile     string        `mapstructure:"source_file"`
	MainClass      string        `mapstructure:"main_class"`
}

type ToolchainConfig struct {
	JavaHome   string   `mapstructure:"java_home"`
	SearchDirs []string `mapstructure:"search_dirs"`
}

type SessionsConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	MaxLifetime   time.Duration `mapstructure:"max_lifetime"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type SharesConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	MaxSize         int           `mapstructure:"max_size"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	Window time.Duration `mapstructure:"window"`
	Max    int           `mapstructure:"max"`
}

// ReviewConfig points the AI error reviewer at an OpenAI-compatible endpoint.
type ReviewConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Toolchain ToolchainConfig `mapstructure:"toolchain"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Shares    SharesConfig    `mapstructure:"shares"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Review    ReviewConfig    `mapstructure:"review"`
	Log       LogConfig       `mapstructure:"log"`
}

// Load reads javarena.yaml from the working directory or $HOME/.javarena.
// An explicit path overrides the search. A missing file is not an error;
// every key has a default.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("javarena")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.javarena")
	}

	v.SetEnvPrefix("JAVARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Review.APIKey = expandEnv(cfg.Review.APIKey)
	cfg.Toolchain.JavaHome = expandEnv(cfg.Toolchain.JavaHome)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("server.port", 5000)
	v.SetDefault("server.static_dir", "dist")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("sandbox.work_dir", filepath.Join(os.TempDir(), "javarena"))
	v.SetDefault("sandbox.compile_timeout", 30*time.Second)
	v.SetDefault("sandbox.run_timeout", 10*time.Second)
	v.SetDefault("sandbox.source_file", "Main.java")
	v.SetDefault("sandbox.main_class", "Main")

	v.SetDefault("toolchain.java_home", "${JAVA_HOME}")
	v.SetDefault("toolchain.search_dirs", DefaultSearchDirs(runtime.GOOS))

	v.SetDefault("sessions.idle_timeout", 10*time.Minute)
	v.SetDefault("sessions.max_lifetime", 30*time.Minute)
	v.SetDefault("sessions.sweep_interval", 30*time.Second)

	v.SetDefault("storage.db_path", filepath.Join(home, ".javarena", "javarena.db"))

	v.SetDefault("shares.ttl", 30*24*time.Hour)
	v.SetDefault("shares.max_size", 50000)
	v.SetDefault("shares.cleanup_interval", time.Hour)

	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.max", 5)

	v.SetDefault("review.enabled", false)
	v.SetDefault("review.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("review.api_key", "${OPENROUTER_API_KEY}")
	v.SetDefault("review.model", "openai/gpt-oss-20b:free")
	v.SetDefault("review.timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
}

// DefaultSearchDirs lists the directories probed for a JDK when javac is not on PATH.
// On Windows the entries are parents of versioned JDK directories.
func DefaultSearchDirs(goos string) []string {
	if goos == "windows" {
		return []string{
			`C:\Program Files\Java`,
			`C:\Program Files (x86)\Java`,
			`C:\Program Files\OpenLogic`,
		}
	}
	return []string{"/usr/bin", "/usr/local/bin", "/opt/java/bin"}
}

func (c *Config) validate() error {
	if c.Sandbox.RunTimeout <= 0 {
		return fmt.Errorf("sandbox.run_timeout must be positive, got %s", c.Sandbox.RunTimeout)
	}
	if c.Sandbox.CompileTimeout <= 0 {
		return fmt.Errorf("sandbox.compile_timeout must be positive, got %s", c.Sandbox.CompileTimeout)
	}
	if c.Sandbox.SourceFile == "" || c.Sandbox.MainClass == "" {
		return fmt.Errorf("sandbox.source_file and sandbox.main_class are required")
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.max and ratelimit.window must be positive")
	}
	return nil
}

// expandEnv resolves values written as ${VAR}.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}
