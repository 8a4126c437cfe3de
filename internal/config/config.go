// ABOUTME: Configuration loading for the KSC bridge
// ABOUTME: Reads YAML via viper, a .env file via godotenv and KSC_* environment overrides

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/service"
	"github.com/harper/ksc-bridge/internal/session"
	"github.com/harper/ksc-bridge/internal/transport"
	"github.com/harper/ksc-bridge/internal/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "KSC_BRIDGE"

var log = logger.Named("config")

type Config struct {
	Server  ServerConfig  `mapstructure:"server" json:"server"`
	KSC     KSCConfig     `mapstructure:"ksc" json:"ksc"`
	Journal JournalConfig `mapstructure:"journal" json:"journal"`
	Logging LoggingConfig `mapstructure:"logging" json:"logging"`

	// Source is the config file that was read, empty when none existed.
	Source string `mapstructure:"-" json:"source,omitempty"`
}

type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port" json:"http_port"`
	HTTPHost       string   `mapstructure:"http_host" json:"http_host"`
	WebSocketPort  int      `mapstructure:"websocket_port" json:"websocket_port"`
	WebSocketHost  string   `mapstructure:"websocket_host" json:"websocket_host"`
	ManagementPort int      `mapstructure:"management_port" json:"management_port"`
	ManagementHost string   `mapstructure:"management_host" json:"management_host"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins,omitempty"`
}

type KSCConfig struct {
	Host        string `mapstructure:"host" json:"host"`
	Port        int    `mapstructure:"port" json:"port"`
	Username    string `mapstructure:"username" json:"username"`
	Password    string `mapstructure:"password" json:"password"`
	Domain      string `mapstructure:"domain" json:"domain,omitempty"`
	Internal    bool   `mapstructure:"internal" json:"internal"`
	VServer     string `mapstructure:"vserver" json:"vserver,omitempty"`
	Token       string `mapstructure:"token" json:"token,omitempty"`
	TokenScheme string `mapstructure:"token_scheme" json:"token_scheme,omitempty"`

	VerifySSL      bool              `mapstructure:"verify_ssl" json:"verify_ssl"`
	CAFile         string            `mapstructure:"ca_file" json:"ca_file,omitempty"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	Headers        map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	RateLimit      float64           `mapstructure:"rate_limit" json:"rate_limit,omitempty"`
	Burst          int               `mapstructure:"burst" json:"burst,omitempty"`
	Tracing        bool              `mapstructure:"tracing" json:"tracing"`
	TraceFile      string            `mapstructure:"trace_file" json:"trace_file,omitempty"`

	Login       bool    `mapstructure:"login" json:"login"`
	ExpiryCodes []int64 `mapstructure:"expiry_codes" json:"expiry_codes,omitempty"`
	Instance    string  `mapstructure:"instance" json:"instance,omitempty"`

	PageSize               int   `mapstructure:"page_size" json:"page_size"`
	ListLimit              int   `mapstructure:"list_limit" json:"list_limit"`
	AccessorLifetime       int32 `mapstructure:"accessor_lifetime" json:"accessor_lifetime"`
	PollFallbackMS         int   `mapstructure:"poll_fallback_ms" json:"poll_fallback_ms"`
	RemoveGroupWaitSeconds int   `mapstructure:"remove_group_wait_seconds" json:"remove_group_wait_seconds"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" json:"path"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" json:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_host", "127.0.0.1")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.websocket_host", "127.0.0.1")
	v.SetDefault("server.websocket_port", 8081)
	v.SetDefault("server.management_host", "127.0.0.1")
	v.SetDefault("server.management_port", 8082)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("ksc.host", "")
	v.SetDefault("ksc.port", transport.DefaultPort)
	v.SetDefault("ksc.username", "")
	v.SetDefault("ksc.password", "")
	v.SetDefault("ksc.domain", "")
	v.SetDefault("ksc.internal", true)
	v.SetDefault("ksc.vserver", "")
	v.SetDefault("ksc.token", "")
	v.SetDefault("ksc.token_scheme", transport.SchemeToken)
	v.SetDefault("ksc.verify_ssl", true)
	v.SetDefault("ksc.ca_file", "")
	v.SetDefault("ksc.timeout_seconds", int(transport.DefaultTimeout/time.Second))
	v.SetDefault("ksc.rate_limit", 0)
	v.SetDefault("ksc.burst", 1)
	v.SetDefault("ksc.tracing", false)
	v.SetDefault("ksc.trace_file", "")
	v.SetDefault("ksc.login", true)
	v.SetDefault("ksc.instance", "")
	v.SetDefault("ksc.page_size", 100)
	v.SetDefault("ksc.list_limit", service.DefaultListLimit)
	v.SetDefault("ksc.accessor_lifetime", service.DefaultAccessorLife)
	v.SetDefault("ksc.poll_fallback_ms", 1000)
	v.SetDefault("ksc.remove_group_wait_seconds", int(service.DefaultRemoveGroupWait/time.Second))

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "$XDG_DATA_HOME/ksc-bridge/journal.db")
	v.SetDefault("logging.level", "info")
}

// bareEnv are the unprefixed variable names that also configure the connection.
var bareEnv = map[string]string{
	"ksc.host":       "KSC_HOST",
	"ksc.port":       "KSC_PORT",
	"ksc.username":   "KSC_USERNAME",
	"ksc.password":   "KSC_PASSWORD",
	"ksc.verify_ssl": "KSC_VERIFY_SSL",
}

// Load reads path (the default config file when empty) and applies .env and
// environment overrides. A missing file is fine as long as the environment supplies
// the connection; Validate reports what is still missing.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = xdg.DefaultConfigFile()
	}
	loadDotEnv(filepath.Join(xdg.ConfigHome(), ".env"), ".env")

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range bareEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	source := path
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		source = ""
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Source = source

	// Viper lowercases map keys; header names are sent as written.
	if source != "" {
		if headers, err := readHeaders(source); err == nil && len(headers) > 0 {
			cfg.KSC.Headers = headers
		}
	}

	cfg.Journal.Path = xdg.ExpandPath(cfg.Journal.Path)
	cfg.KSC.CAFile = xdg.ExpandPath(cfg.KSC.CAFile)
	cfg.KSC.TraceFile = xdg.ExpandPath(cfg.KSC.TraceFile)

	if _, err := logger.ParseLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("invalid logging.level: %w", err)
	}
	return &cfg, nil
}

// loadDotEnv loads the first existing file; existing environment variables win.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			log.Warn("failed to load %s: %v", p, err)
		}
		return
	}
}

func readHeaders(path string) (map[string]string, error) {
	//nolint:gosec // config file path from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw struct {
		KSC struct {
			Headers map[string]string `yaml:"headers"`
		} `yaml:"ksc"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw.KSC.Headers, nil
}

// Validate reports missing connection settings as a SetupRequiredError.
func (c *Config) Validate() error {
	missingHost := c.KSC.Host == ""
	missingCreds := c.KSC.Token == "" && (c.KSC.Username == "" || c.KSC.Password == "")
	if missingHost || missingCreds {
		return apierrors.NewSetupRequiredError(c.Source == "", missingHost, missingCreds)
	}
	if c.KSC.PageSize <= 0 {
		return fmt.Errorf("invalid ksc.page_size: %d (must be positive)", c.KSC.PageSize)
	}
	return nil
}

// Redacted returns a copy safe to print or serve.
func (c *Config) Redacted() Config {
	out := *c
	if out.KSC.Password != "" {
		out.KSC.Password = "<redacted>"
	}
	if out.KSC.Token != "" {
		out.KSC.Token = "<redacted>"
	}
	if len(c.KSC.Headers) > 0 {
		out.KSC.Headers = make(map[string]string, len(c.KSC.Headers))
		for k := range c.KSC.Headers {
			out.KSC.Headers[k] = "<redacted>"
		}
	}
	return out
}

// Transport builds the connection settings for one KSC server.
func (c KSCConfig) Transport() transport.Config {
	var auth transport.Authenticator
	if c.Token != "" {
		auth = transport.TokenAuth{Scheme: c.TokenScheme, Token: c.Token}
	} else {
		auth = transport.BasicAuth{
			User:     c.Username,
			Password: c.Password,
			Domain:   c.Domain,
			Internal: c.Internal,
			VServer:  c.VServer,
		}
	}
	return transport.Config{
		BaseURL:   transport.BaseURL(c.Host, c.Port),
		Timeout:   time.Duration(c.TimeoutSeconds) * time.Second,
		VerifyTLS: c.VerifySSL,
		CAFile:    c.CAFile,
		Headers:   c.Headers,
		Auth:      auth,
		RateLimit: c.RateLimit,
		Burst:     c.Burst,
		Tracing:   c.Tracing,
	}
}

func (c KSCConfig) Session() session.Config {
	return session.Config{
		Transport:     c.Transport(),
		Login:         c.Login,
		ExpiryCodes:   c.ExpiryCodes,
		PageSize:      c.PageSize,
		FallbackDelay: c.pollFallback(),
	}
}

func (c KSCConfig) Service() service.Config {
	return service.Config{
		Instance:         c.Instance,
		ListLimit:        c.ListLimit,
		PageSize:         c.PageSize,
		AccessorLifetime: c.AccessorLifetime,
		FallbackDelay:    c.pollFallback(),
		RemoveGroupWait:  time.Duration(c.RemoveGroupWaitSeconds) * time.Second,
	}
}

func (c KSCConfig) pollFallback() time.Duration {
	return time.Duration(c.PollFallbackMS) * time.Millisecond
}
