// Package config loads the relay configuration from a file and the
// environment. Everything is validated once, at load time.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/hamed0406/pushrelay/internal/classify"
	"github.com/hamed0406/pushrelay/internal/domain"
	"github.com/hamed0406/pushrelay/internal/relay"
)

// ErrInvalid wraps every configuration failure. It is fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

const (
	EnvPrefix            = "RELAY"
	DefaultListenAddress = "127.0.0.1:8321"
	DefaultLogDir        = "logs"
)

type TLSConfig struct {
	CAFile          string `mapstructure:"ca_file"`
	CertificateFile string `mapstructure:"certificate_file"`
	PrivateKeyFile  string `mapstructure:"private_key_file"`
	SkipTLSVerify   bool   `mapstructure:"skip_tls_verify"`
}

type LogConfig struct {
	Dir    string `mapstructure:"dir"`
	Level  string `mapstructure:"level"`
	Stdout bool   `mapstructure:"stdout"`
}

type ErrorReportingConfig struct {
	SentryDSN              string  `mapstructure:"sentry_dsn"`
	SentrySampleRate       float64 `mapstructure:"sentry_sample_rate"`
	SentryTracesSampleRate float64 `mapstructure:"sentry_traces_sample_rate"`
	SlackWebhook           string  `mapstructure:"slack_webhook"`
}

type ServerConfig struct {
	ListenAddress  string    `mapstructure:"listen_address"`
	TLS            TLSConfig `mapstructure:"tls"`
	RateLimitRPM   int       `mapstructure:"rate_limit_rpm"`
	RateLimitBurst int       `mapstructure:"rate_limit_burst"`
}

type UpstreamConfig struct {
	BaseURL        string            `mapstructure:"base_url"`
	RequestHeaders map[string]string `mapstructure:"request_headers"`
	TLS            TLSConfig         `mapstructure:"tls"`
}

type MonitorConfig struct {
	ID             string            `mapstructure:"id"`
	Type           string            `mapstructure:"type"`
	Target         string            `mapstructure:"target"`
	PushURL        string            `mapstructure:"push_url"`
	RequestHeaders map[string]string `mapstructure:"request_headers"`
	SkipTLSVerify  bool              `mapstructure:"skip_tls_verify"`
}

type Config struct {
	Environment    string               `mapstructure:"environment"`
	Region         string               `mapstructure:"region"`
	Classification string               `mapstructure:"classification"`
	ICMPPrivileged bool                 `mapstructure:"icmp_privileged"`
	DatabaseURL    string               `mapstructure:"database_url"`
	Log            LogConfig            `mapstructure:"log"`
	ErrorReporting ErrorReportingConfig `mapstructure:"error_reporting"`
	Server         ServerConfig         `mapstructure:"server"`
	Upstream       UpstreamConfig       `mapstructure:"upstream"`
	Monitors       []MonitorConfig      `mapstructure:"monitors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "production")
	v.SetDefault("region", relay.DefaultRegion)
	v.SetDefault("classification", classify.PolicyBasic.String())
	v.SetDefault("icmp_privileged", false)
	v.SetDefault("database_url", "")
	v.SetDefault("log.dir", DefaultLogDir)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.stdout", true)
	v.SetDefault("error_reporting.sentry_dsn", "")
	v.SetDefault("error_reporting.sentry_sample_rate", 1.0)
	v.SetDefault("error_reporting.sentry_traces_sample_rate", 0.0)
	v.SetDefault("error_reporting.slack_webhook", "")
	v.SetDefault("server.listen_address", DefaultListenAddress)
	v.SetDefault("server.rate_limit_rpm", 0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("upstream.base_url", "")
}

// Load reads path (yaml, json or toml by extension) and applies RELAY_*
// environment overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section and every monitor. The returned error wraps
// ErrInvalid.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Region, validation.Required),
		validation.Field(&c.Classification, validation.By(func(value interface{}) error {
			_, err := classify.ParsePolicy(value.(string))
			return err
		})),
		validation.Field(&c.Log, validation.By(func(value interface{}) error {
			lc := value.(LogConfig)
			return validation.ValidateStruct(&lc,
				validation.Field(&lc.Level, validation.In("debug", "info", "warn", "error")),
			)
		})),
		validation.Field(&c.ErrorReporting, validation.By(func(value interface{}) error {
			er := value.(ErrorReportingConfig)
			return validation.ValidateStruct(&er,
				validation.Field(&er.SentryDSN, is.URL),
				validation.Field(&er.SentrySampleRate, validation.Min(0.0), validation.Max(1.0)),
				validation.Field(&er.SentryTracesSampleRate, validation.Min(0.0), validation.Max(1.0)),
				validation.Field(&er.SlackWebhook, validation.By(httpURL)),
			)
		})),
		validation.Field(&c.Server, validation.By(func(value interface{}) error {
			sc := value.(ServerConfig)
			return validation.ValidateStruct(&sc,
				validation.Field(&sc.ListenAddress, validation.Required, validation.By(hostPort)),
				validation.Field(&sc.RateLimitRPM, validation.Min(0)),
				validation.Field(&sc.RateLimitBurst, validation.Min(0)),
				validation.Field(&sc.TLS, validation.By(tlsFiles)),
			)
		})),
		validation.Field(&c.Upstream, validation.By(func(value interface{}) error {
			uc := value.(UpstreamConfig)
			return validation.ValidateStruct(&uc,
				validation.Field(&uc.BaseURL, validation.By(httpURL)),
				validation.Field(&uc.TLS, validation.By(tlsFiles)),
			)
		})),
	)
	_, terr := c.Targets()
	if err = multierr.Append(err, terr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Targets converts the monitors into validated target descriptors. A
// monitor without push_url gets {upstream.base_url}/api/push/{id}.
func (c *Config) Targets() ([]domain.Target, error) {
	var errs error
	out := make([]domain.Target, 0, len(c.Monitors))
	for i, m := range c.Monitors {
		t, err := c.target(m)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("monitors[%d] (%s): %w", i, m.label(), err))
			continue
		}
		out = append(out, t)
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func (c *Config) target(m MonitorConfig) (domain.Target, error) {
	kind, err := domain.ParseKind(m.Type)
	if err != nil {
		return domain.Target{}, err
	}
	push := m.PushURL
	if push == "" {
		if c.Upstream.BaseURL == "" {
			return domain.Target{}, errors.New("push_url is empty and no upstream.base_url is set")
		}
		if push, err = relay.PushURL(c.Upstream.BaseURL, m.ID); err != nil {
			return domain.Target{}, err
		}
	}
	t := domain.Target{
		ID:            m.ID,
		Kind:          kind,
		Address:       strings.TrimSpace(m.Target),
		PushURL:       push,
		Headers:       m.RequestHeaders,
		SkipTLSVerify: m.SkipTLSVerify,
	}
	if err := t.Validate(); err != nil {
		return domain.Target{}, err
	}
	return t, nil
}

func (m MonitorConfig) label() string {
	if m.ID != "" {
		return m.ID
	}
	return m.Target
}

// Enabled reports whether any TLS option is set.
func (t TLSConfig) Enabled() bool { return t != TLSConfig{} }

// Build turns the file references into a *tls.Config. It returns nil when
// nothing is configured.
func (t TLSConfig) Build() (*tls.Config, error) {
	if !t.Enabled() {
		return nil, nil
	}
	c := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: t.SkipTLSVerify, //nolint:gosec // explicit opt-in
	}
	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("ca_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca_file %s: no certificates found", t.CAFile)
		}
		c.RootCAs = pool
	}
	if t.CertificateFile != "" || t.PrivateKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertificateFile, t.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("certificate: %w", err)
		}
		c.Certificates = []tls.Certificate{cert}
	}
	return c, nil
}

// ServesTLS reports whether the inbound server has a certificate.
func (s ServerConfig) ServesTLS() bool {
	return s.TLS.CertificateFile != "" && s.TLS.PrivateKeyFile != ""
}

// Policy returns the parsed classification policy.
func (c *Config) Policy() classify.Policy {
	p, _ := classify.ParsePolicy(c.Classification)
	return p
}

func tlsFiles(value interface{}) error {
	_, err := value.(TLSConfig).Build()
	return err
}

func hostPort(value interface{}) error {
	addr, _ := value.(string)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}
	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}
	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}
	return nil
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}
	if u.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}
	return nil
}
