package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "skirmish"
	envPrefix  = "SKIRMISH"
)

type Config struct {
	Addr           string   `mapstructure:"addr"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
	LogLevel       string   `mapstructure:"logLevel"`

	Game    GameConfig    `mapstructure:"game"`
	Session SessionConfig `mapstructure:"session"`
	OTel    OTelConfig    `mapstructure:"otel"`
}

// ListenAddr は http.Server に渡すアドレス。
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Addr, strconv.Itoa(c.Port))
}

type GameConfig struct {
	MaxHealth         int           `mapstructure:"maxHealth"`
	RespawnDelay      time.Duration `mapstructure:"respawnDelay"`
	StaleAfter        time.Duration `mapstructure:"staleAfter"`
	SweepInterval     time.Duration `mapstructure:"sweepInterval"`
	ProjectileTTL     time.Duration `mapstructure:"projectileTTL"`
	SpawnRange        float64       `mapstructure:"spawnRange"`
	SpawnHeight       float64       `mapstructure:"spawnHeight"`
	MaxNicknameLength int           `mapstructure:"maxNicknameLength"`
	MaxChatLength     int           `mapstructure:"maxChatLength"`
}

type SessionConfig struct {
	PingInterval time.Duration `mapstructure:"pingInterval"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`
	ReadLimit    int64         `mapstructure:"readLimit"`
}

type OTelConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"serviceName"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "")
	v.SetDefault("port", 3000)
	v.SetDefault("allowedOrigins", []string{"localhost:*", "127.0.0.1:*"})
	v.SetDefault("logLevel", "info")

	v.SetDefault("game.maxHealth", 100)
	v.SetDefault("game.respawnDelay", 5*time.Second)
	v.SetDefault("game.staleAfter", 60*time.Second)
	v.SetDefault("game.sweepInterval", 60*time.Second)
	v.SetDefault("game.projectileTTL", 10*time.Second)
	v.SetDefault("game.spawnRange", 150.0)
	v.SetDefault("game.spawnHeight", 0.5)
	v.SetDefault("game.maxNicknameLength", 24)
	v.SetDefault("game.maxChatLength", 500)

	v.SetDefault("session.pingInterval", 25*time.Second)
	v.SetDefault("session.idleTimeout", 60*time.Second)
	v.SetDefault("session.readLimit", 65536)

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.serviceName", "skirmish")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", true)
}

// Load はデフォルト値、configDir の skirmish.{yaml,json,toml}、環境変数の順に読み込む。
// 設定ファイルは任意。環境変数は SKIRMISH_GAME_RESPAWNDELAY のように指定し、PORT だけは接頭辞なしでも受け付ける。
func Load(configDir string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	if configDir != "" {
		v.AddConfigPath(configDir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("port", envPrefix+"_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind PORT: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if origins := v.GetStringSlice("allowedOrigins"); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Game.MaxHealth < 1 {
		return fmt.Errorf("game.maxHealth must be at least 1, got %d", c.Game.MaxHealth)
	}
	if c.Game.SweepInterval <= 0 {
		return fmt.Errorf("game.sweepInterval must be positive, got %s", c.Game.SweepInterval)
	}
	if c.OTel.Enabled && c.OTel.ServiceName == "" {
		return errors.New("otel.serviceName is required when otel is enabled")
	}
	return nil
}
