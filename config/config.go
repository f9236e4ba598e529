package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type Config struct {
	AppName        string        `mapstructure:"app_name"`
	ListenIP       string        `mapstructure:"listen_ip"`
	ListenPort     int           `mapstructure:"listen_port"`
	SessionKey     string        `mapstructure:"session_key"`
	DatabasePath   string        `mapstructure:"database_path"`
	StaticDir      string        `mapstructure:"static_dir"`
	BaseURL        string        `mapstructure:"base_url"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	SecureCookies  bool          `mapstructure:"secure_cookies"`
	CSRFEnabled    bool          `mapstructure:"csrf_enabled"`
	CaptchaEnabled bool          `mapstructure:"captcha_enabled"`
	BuiltinAdmins  []string      `mapstructure:"builtin_admins"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	ResetTokenTTL  time.Duration `mapstructure:"reset_token_ttl"`
	PasswordCost   int           `mapstructure:"password_cost"`
	SMTP           SMTPConfig    `mapstructure:"smtp"`

	generatedKey bool
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenIP, c.ListenPort)
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "SFAP Competency Tracker")
	v.SetDefault("listen_ip", "0.0.0.0")
	v.SetDefault("listen_port", 3000)
	v.SetDefault("session_key", "")
	v.SetDefault("database_path", "./data/competency_tracker.db")
	v.SetDefault("static_dir", "")
	v.SetDefault("base_url", "http://localhost:3000")
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("secure_cookies", false)
	v.SetDefault("csrf_enabled", true)
	v.SetDefault("captcha_enabled", false)
	v.SetDefault("builtin_admins", []string{
		"paolomorales@reliabilitysolutions.net",
		"jeremysymonds@reliabilitysolutions.net",
	})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("reset_token_ttl", "1h")
	v.SetDefault("password_cost", 10)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
}

// LoadConfig fills AppConfig from defaults, the JSON file at path (skipped
// when path is empty) and TRACKER_* environment variables, in that order of
// precedence from lowest to highest.
func LoadConfig(path string) error {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	// If no key is provided or it's the placeholder, generate a secure random one
	if cfg.SessionKey == "" || cfg.SessionKey == "CHANGE_ME_IN_PRODUCTION" {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			return err
		}
		cfg.SessionKey = hex.EncodeToString(randomKey)
		cfg.generatedKey = true
	}

	for i, email := range cfg.BuiltinAdmins {
		cfg.BuiltinAdmins[i] = strings.ToLower(strings.TrimSpace(email))
	}

	AppConfig = cfg
	return nil
}

// GeneratedSessionKey reports whether the session key was generated at load
// time, meaning sessions will not survive a restart.
func (c Config) GeneratedSessionKey() bool {
	return c.generatedKey
}
