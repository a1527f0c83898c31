// Package config loads pgfe.Options from a config file and environment
// variables, the environment taking precedence over the file. It does not
// read command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/riftdata/pgfe/pgfe"
)

// Config is the on-disk/env-var shape whose mapstructure tags drive viper's
// unmarshal. It carries most pgfe.Options fields plus log settings; the
// Kerberos service name, SSL compression and SSL CRL file options have no
// Config field.
type Config struct {
	CommunicationMode string        `mapstructure:"communication_mode"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	WaitTimeout       time.Duration `mapstructure:"wait_response_timeout"`

	UDSDirectory             string `mapstructure:"uds_directory"`
	UDSRequireServerUsername bool   `mapstructure:"uds_require_server_process_username"`

	TCPKeepalivesEnabled  bool          `mapstructure:"tcp_keepalives_enabled"`
	TCPKeepalivesIdle     time.Duration `mapstructure:"tcp_keepalives_idle"`
	TCPKeepalivesInterval time.Duration `mapstructure:"tcp_keepalives_interval"`
	TCPKeepalivesCount    int           `mapstructure:"tcp_keepalives_count"`

	NetAddress  string `mapstructure:"net_address"`
	NetHostname string `mapstructure:"net_hostname"`
	Port        int    `mapstructure:"port"`

	Username string `mapstructure:"username"`
	Database string `mapstructure:"database"`
	Password string `mapstructure:"password"`

	SSLEnabled                        bool   `mapstructure:"ssl_enabled"`
	SSLCertificateFile                string `mapstructure:"ssl_certificate_file"`
	SSLPrivateKeyFile                 string `mapstructure:"ssl_private_key_file"`
	SSLCertificateAuthorityFile       string `mapstructure:"ssl_certificate_authority_file"`
	SSLServerHostnameVerificationOn   bool   `mapstructure:"ssl_server_hostname_verification_enabled"`

	ChannelBinding string `mapstructure:"channel_binding"`
	SessionMode    string `mapstructure:"session_mode"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// DefaultConfig mirrors pgfe.NewOptions' defaults in the Config shape.
func DefaultConfig() *Config {
	o := pgfe.NewOptions()
	return &Config{
		CommunicationMode:              "net",
		ConnectTimeout:                 o.ConnectTimeout,
		Port:                           o.Port,
		TCPKeepalivesEnabled:           o.TCPKeepalivesEnabled,
		TCPKeepalivesIdle:              o.TCPKeepalivesIdle,
		TCPKeepalivesInterval:          o.TCPKeepalivesInterval,
		TCPKeepalivesCount:             o.TCPKeepalivesCount,
		SSLServerHostnameVerificationOn: o.SSLServerHostnameVerificationEnabled,
		ChannelBinding:                 "preferred",
		SessionMode:                    "any",
		LogLevel:                       "info",
		LogFormat:                      "text",
	}
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pgfe"
	}
	return filepath.Join(home, ".pgfe")
}

// Load reads configuration from viper defaults, configPath (or the default
// search path) and environment variables prefixed PGFE_, in that order of
// increasing precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	d := DefaultConfig()

	v.SetDefault("communication_mode", d.CommunicationMode)
	v.SetDefault("connect_timeout", d.ConnectTimeout)
	v.SetDefault("wait_response_timeout", d.WaitTimeout)
	v.SetDefault("port", d.Port)
	v.SetDefault("tcp_keepalives_enabled", d.TCPKeepalivesEnabled)
	v.SetDefault("tcp_keepalives_idle", d.TCPKeepalivesIdle)
	v.SetDefault("tcp_keepalives_interval", d.TCPKeepalivesInterval)
	v.SetDefault("tcp_keepalives_count", d.TCPKeepalivesCount)
	v.SetDefault("ssl_server_hostname_verification_enabled", d.SSLServerHostnameVerificationOn)
	v.SetDefault("channel_binding", d.ChannelBinding)
	v.SetDefault("session_mode", d.SessionMode)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultConfigDir())
		v.AddConfigPath("/etc/pgfe")
	}

	v.SetEnvPrefix("pgfe")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path in YAML form.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.Set("communication_mode", c.CommunicationMode)
	v.Set("connect_timeout", c.ConnectTimeout)
	v.Set("wait_response_timeout", c.WaitTimeout)
	v.Set("uds_directory", c.UDSDirectory)
	v.Set("uds_require_server_process_username", c.UDSRequireServerUsername)
	v.Set("tcp_keepalives_enabled", c.TCPKeepalivesEnabled)
	v.Set("tcp_keepalives_idle", c.TCPKeepalivesIdle)
	v.Set("tcp_keepalives_interval", c.TCPKeepalivesInterval)
	v.Set("tcp_keepalives_count", c.TCPKeepalivesCount)
	v.Set("net_address", c.NetAddress)
	v.Set("net_hostname", c.NetHostname)
	v.Set("port", c.Port)
	v.Set("username", c.Username)
	v.Set("database", c.Database)
	v.Set("ssl_enabled", c.SSLEnabled)
	v.Set("ssl_certificate_file", c.SSLCertificateFile)
	v.Set("ssl_private_key_file", c.SSLPrivateKeyFile)
	v.Set("ssl_certificate_authority_file", c.SSLCertificateAuthorityFile)
	v.Set("ssl_server_hostname_verification_enabled", c.SSLServerHostnameVerificationOn)
	v.Set("channel_binding", c.ChannelBinding)
	v.Set("session_mode", c.SessionMode)
	v.Set("log_level", c.LogLevel)
	v.Set("log_format", c.LogFormat)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return v.WriteConfigAs(path)
}

// Validate checks the fields viper cannot validate on its own.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port >= 65536 {
		return fmt.Errorf("port %d out of range (0, 65536)", c.Port)
	}
	if c.CommunicationMode == "net" && c.NetAddress == "" && c.NetHostname == "" {
		return fmt.Errorf("net_address or net_hostname is required in net mode")
	}
	if c.CommunicationMode == "uds" && c.UDSDirectory == "" {
		return fmt.Errorf("uds_directory is required in uds mode")
	}
	return nil
}

// ToOptions translates the loaded Config into pgfe.Options. It does not
// validate: the CLI prompts for missing endpoint details before calling
// Options.Validate.
func (c *Config) ToOptions() (pgfe.Options, error) {
	o := pgfe.NewOptions()
	if c.CommunicationMode == "uds" {
		o.CommunicationMode = pgfe.CommunicationModeUDS
	}
	o.ConnectTimeout = c.ConnectTimeout
	o.WaitResponseTimeout = c.WaitTimeout
	o.UDSDirectory = c.UDSDirectory
	o.UDSRequireServerProcessUsername = c.UDSRequireServerUsername
	o.TCPKeepalivesEnabled = c.TCPKeepalivesEnabled
	o.TCPKeepalivesIdle = c.TCPKeepalivesIdle
	o.TCPKeepalivesInterval = c.TCPKeepalivesInterval
	o.TCPKeepalivesCount = c.TCPKeepalivesCount
	o.NetAddress = c.NetAddress
	o.NetHostname = c.NetHostname
	o.Port = c.Port
	o.Username = c.Username
	o.Database = c.Database
	o.Password = c.Password
	o.SSLEnabled = c.SSLEnabled
	o.SSLCertificateFile = c.SSLCertificateFile
	o.SSLPrivateKeyFile = c.SSLPrivateKeyFile
	o.SSLCertificateAuthorityFile = c.SSLCertificateAuthorityFile
	o.SSLServerHostnameVerificationEnabled = c.SSLServerHostnameVerificationOn

	switch c.ChannelBinding {
	case "disabled":
		o.ChannelBinding = pgfe.ChannelBindingDisabled
	case "required":
		o.ChannelBinding = pgfe.ChannelBindingRequired
	default:
		o.ChannelBinding = pgfe.ChannelBindingPreferred
	}
	switch c.SessionMode {
	case "read_write":
		o.SessionMode = pgfe.SessionModeReadWrite
	case "read_only":
		o.SessionMode = pgfe.SessionModeReadOnly
	case "primary":
		o.SessionMode = pgfe.SessionModePrimary
	case "standby":
		o.SessionMode = pgfe.SessionModeStandby
	default:
		o.SessionMode = pgfe.SessionModeAny
	}

	return o, nil
}
