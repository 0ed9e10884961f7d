package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string   `mapstructure:"mode"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SendBuffer     int      `mapstructure:"send_buffer"`

	RelayURL string   `mapstructure:"relay_url"`
	STUNURLs []string `mapstructure:"stun_urls"`

	RecognizerURL     string        `mapstructure:"recognizer_url"`
	RecognizerTimeout time.Duration `mapstructure:"recognizer_timeout"`

	LocalSampleEvery   time.Duration `mapstructure:"local_sample_every"`
	RemoteSampleEvery  time.Duration `mapstructure:"remote_sample_every"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 3002)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("send_buffer", 32)
	v.SetDefault("relay_url", "ws://localhost:3002/api/ws")
	v.SetDefault("stun_urls", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("recognizer_url", "http://localhost:8000/recognize")
	v.SetDefault("recognizer_timeout", "5s")
	v.SetDefault("local_sample_every", "1s")
	v.SetDefault("remote_sample_every", "2s")
	v.SetDefault("negotiation_timeout", "30s")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
