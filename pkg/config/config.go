package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config representa a estrutura completa do config.yaml
type Config struct {
	App struct {
		Env      string `mapstructure:"env" yaml:"env"`
		LogLevel string `mapstructure:"log_level" yaml:"log_level"`
		// Timezone do portal; a data "de hoje" é calculada nela.
		Timezone string `mapstructure:"timezone" yaml:"timezone"`
	} `mapstructure:"app" yaml:"app"`

	Portal struct {
		BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
		SSOURL     string `mapstructure:"sso_url" yaml:"sso_url"`
		ServiceURL string `mapstructure:"service_url" yaml:"service_url"`
		UserAgent  string `mapstructure:"user_agent" yaml:"user_agent"`
		UserField  string `mapstructure:"username_field" yaml:"username_field"`
		PassField  string `mapstructure:"password_field" yaml:"password_field"`
		// Campo da resposta no formulário do captcha.
		CaptchaField string `mapstructure:"captcha_field" yaml:"captcha_field"`
		TimeoutSecs  int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	} `mapstructure:"portal" yaml:"portal"`

	Captcha struct {
		MaxAttempts      int    `mapstructure:"max_attempts" yaml:"max_attempts"`
		Threshold        int    `mapstructure:"threshold" yaml:"threshold"`
		InvalidBackoffMS int    `mapstructure:"invalid_backoff_ms" yaml:"invalid_backoff_ms"`
		RejectBackoffMS  int    `mapstructure:"reject_backoff_ms" yaml:"reject_backoff_ms"`
		Engine           string `mapstructure:"engine" yaml:"engine"` // "tesseract" ou "nats"
		NatsSubject      string `mapstructure:"nats_subject" yaml:"nats_subject"`
		NatsTimeoutSecs  int    `mapstructure:"nats_timeout_seconds" yaml:"nats_timeout_seconds"`
		// Diretório para salvar amostras rotuladas (vazio desativa).
		DatasetDir string `mapstructure:"dataset_dir" yaml:"dataset_dir"`
	} `mapstructure:"captcha" yaml:"captcha"`

	Browser struct {
		Headless       bool   `mapstructure:"headless" yaml:"headless"`
		Bin            string `mapstructure:"bin" yaml:"bin"`
		WaitSecs       int    `mapstructure:"wait_seconds" yaml:"wait_seconds"`
		LoadingSecs    int    `mapstructure:"loading_seconds" yaml:"loading_seconds"`
		Navigate       bool   `mapstructure:"navigate" yaml:"navigate"`
		MaxPaginations int    `mapstructure:"max_paginations" yaml:"max_paginations"`
		DebugPort      string `mapstructure:"debug_port" yaml:"debug_port"`
	} `mapstructure:"browser" yaml:"browser"`

	Server struct {
		Port string `mapstructure:"port" yaml:"port"`
	} `mapstructure:"server" yaml:"server"`

	Export struct {
		Dir    string `mapstructure:"dir" yaml:"dir"`
		Format string `mapstructure:"format" yaml:"format"` // "csv" ou "xlsx"
	} `mapstructure:"export" yaml:"export"`

	// Infraestrutura opcional: campos vazios desativam o componente.
	Nats struct {
		URL            string `mapstructure:"url" yaml:"url"`
		ResultsSubject string `mapstructure:"results_subject" yaml:"results_subject"`
	} `mapstructure:"nats" yaml:"nats"`

	Redis struct {
		Address        string `mapstructure:"address" yaml:"address"`
		Password       string `mapstructure:"password" yaml:"password"`
		DB             int    `mapstructure:"db" yaml:"db"`
		LockTTLMinutes int    `mapstructure:"lock_ttl_minutes" yaml:"lock_ttl_minutes"`
	} `mapstructure:"redis" yaml:"redis"`

	Database struct {
		URL string `mapstructure:"url" yaml:"url"`
	} `mapstructure:"database" yaml:"database"`

	Meilisearch struct {
		Host  string `mapstructure:"host" yaml:"host"`
		Key   string `mapstructure:"key" yaml:"key"`
		Index string `mapstructure:"index" yaml:"index"`
	} `mapstructure:"meilisearch" yaml:"meilisearch"`

	Metrics struct {
		Port string `mapstructure:"port" yaml:"port"`
	} `mapstructure:"metrics" yaml:"metrics"`
}

var defaults = map[string]any{
	"app.env":       "dev",
	"app.log_level": "info",
	"app.timezone":  "Asia/Jakarta",

	"portal.base_url":        "https://simaster.ugm.ac.id",
	"portal.sso_url":         "https://sso.ugm.ac.id",
	"portal.service_url":     "http://simaster.ugm.ac.id/ugmfw/signin_simaster/signin_proses",
	"portal.user_agent":      "Mozilla/5.0",
	"portal.username_field":  "username",
	"portal.password_field":  "password",
	"portal.captcha_field":   "captcha",
	"portal.timeout_seconds": 30,

	"captcha.max_attempts":         5,
	"captcha.threshold":            140,
	"captcha.invalid_backoff_ms":   1000,
	"captcha.reject_backoff_ms":    2000,
	"captcha.engine":               "tesseract",
	"captcha.nats_subject":         "jobs.captcha.digits",
	"captcha.nats_timeout_seconds": 30,
	"captcha.dataset_dir":          "",

	"browser.headless":        true,
	"browser.bin":             "",
	"browser.wait_seconds":    10,
	"browser.loading_seconds": 10,
	"browser.navigate":        false,
	"browser.max_paginations": 12,
	"browser.debug_port":      "",

	"server.port": "8000",

	"export.dir":    ".",
	"export.format": "csv",

	"nats.url":             "",
	"nats.results_subject": "attendance.results",

	"redis.address":          "",
	"redis.password":         "",
	"redis.db":               0,
	"redis.lock_ttl_minutes": 30,

	"database.url": "",

	"meilisearch.host":  "",
	"meilisearch.key":   "",
	"meilisearch.index": "attendance",

	"metrics.port": "",
}

// Load lê o config.yaml (se existir) e aplica variáveis de ambiente por cima.
// Sem arquivo, todos os valores vêm dos defaults/env.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		v.AddConfigPath(".")
		v.AddConfigPath("config")
		v.AddConfigPath("../../config")
		v.AddConfigPath("/app/config")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("erro lendo config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("erro decodificando config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejeita valores que seriam truncados ou ignorados em silêncio.
func (c *Config) Validate() error {
	if c.Captcha.Threshold < 1 || c.Captcha.Threshold > 255 {
		return fmt.Errorf("captcha.threshold deve estar entre 1 e 255, veio %d", c.Captcha.Threshold)
	}
	return nil
}

// YAML serializa a config efetiva (usado por `presensi config`).
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) PortalTimeout() time.Duration {
	return time.Duration(c.Portal.TimeoutSecs) * time.Second
}

func (c *Config) InvalidBackoff() time.Duration {
	return time.Duration(c.Captcha.InvalidBackoffMS) * time.Millisecond
}

func (c *Config) RejectBackoff() time.Duration {
	return time.Duration(c.Captcha.RejectBackoffMS) * time.Millisecond
}

func (c *Config) BrowserWait() time.Duration {
	return time.Duration(c.Browser.WaitSecs) * time.Second
}

func (c *Config) LoadingWait() time.Duration {
	return time.Duration(c.Browser.LoadingSecs) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Redis.LockTTLMinutes) * time.Minute
}

func (c *Config) CaptchaRemoteTimeout() time.Duration {
	return time.Duration(c.Captcha.NatsTimeoutSecs) * time.Second
}

// CaptchaThreshold é o corte de binarização já validado por Validate.
func (c *Config) CaptchaThreshold() uint8 {
	return uint8(c.Captcha.Threshold)
}
