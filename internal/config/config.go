package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode         string `mapstructure:"mode"`
	LogLevel     string `mapstructure:"log_level"`
	PionLogLevel string `mapstructure:"pion_log_level"`

	PeerID      string `mapstructure:"peer_id"`
	SignalURL   string `mapstructure:"signal_url"`
	SignalAddr  string `mapstructure:"signal_addr"`
	ControlAddr string `mapstructure:"control_addr"`

	ICEServers []string `mapstructure:"ice_servers"`
	UDPPortMin uint16   `mapstructure:"udp_port_min"`
	UDPPortMax uint16   `mapstructure:"udp_port_max"`

	ReadLimit         int64         `mapstructure:"read_limit"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	OfferRateLimit    int           `mapstructure:"offer_rate_limit"`
	OfferRateInterval time.Duration `mapstructure:"offer_rate_interval"`

	Codec      string `mapstructure:"codec"`
	Echo       bool   `mapstructure:"echo"`
	AutoAnswer bool   `mapstructure:"auto_answer"`

	TelemetryEndpoint string `mapstructure:"telemetry_endpoint"`
}

const envPrefix = "PEERNODE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("pion_log_level", "warn")
	v.SetDefault("peer_id", "")
	v.SetDefault("signal_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("signal_addr", ":8080")
	v.SetDefault("control_addr", ":8081")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("udp_port_min", 0)
	v.SetDefault("udp_port_max", 0)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("offer_rate_limit", 10)
	v.SetDefault("offer_rate_interval", "10s")
	v.SetDefault("codec", "json")
	v.SetDefault("echo", false)
	v.SetDefault("auto_answer", false)
	v.SetDefault("telemetry_endpoint", "")
}

// Load reads .env, config/config.<CONFIG_ENV>.yaml, PEERNODE_* variables and
// flags, later sources winning. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Str("module", "config").Msg("loaded .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.UDPPortMin > cfg.UDPPortMax {
		return nil, fmt.Errorf("udp_port_min %d above udp_port_max %d", cfg.UDPPortMin, cfg.UDPPortMax)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Str("signal_url", cfg.SignalURL).Msg("config ready")
	return &cfg, nil
}
