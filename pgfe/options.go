package pgfe

import (
	"fmt"
	"time"
)

// CommunicationMode selects the transport a Connection dials.
type CommunicationMode int

const (
	CommunicationModeNet CommunicationMode = iota
	CommunicationModeUDS
)

// ChannelBinding controls SCRAM channel-binding negotiation.
type ChannelBinding int

const (
	ChannelBindingDisabled ChannelBinding = iota
	ChannelBindingPreferred
	ChannelBindingRequired
)

// SessionMode constrains which server a Connection is willing to target,
// mirroring libpq's target_session_attrs.
type SessionMode int

const (
	SessionModeAny SessionMode = iota
	SessionModeReadWrite
	SessionModeReadOnly
	SessionModePrimary
	SessionModeStandby
)

// Options holds every recognized connection option. A zero
// Options is invalid; use NewOptions to get the documented defaults.
type Options struct {
	CommunicationMode CommunicationMode

	ConnectTimeout       time.Duration
	WaitResponseTimeout  time.Duration // zero means "no timeout"

	UDSDirectory                    string
	UDSRequireServerProcessUsername bool

	TCPKeepalivesEnabled  bool
	TCPKeepalivesIdle     time.Duration
	TCPKeepalivesInterval time.Duration
	TCPKeepalivesCount    int

	NetAddress  string
	NetHostname string
	Port        int

	Username            string
	Database             string
	Password            string
	KerberosServiceName string

	SSLEnabled                         bool
	SSLCompressionEnabled              bool
	SSLCertificateFile                 string
	SSLPrivateKeyFile                  string
	SSLCertificateAuthorityFile        string
	SSLCertificateRevocationListFile   string
	SSLServerHostnameVerificationEnabled bool

	ChannelBinding ChannelBinding
	SessionMode    SessionMode
}

// NewOptions returns the documented defaults: net transport, port 5432,
// a 10-second connect timeout, SSL off until explicitly enabled.
func NewOptions() Options {
	return Options{
		CommunicationMode:     CommunicationModeNet,
		ConnectTimeout:        10 * time.Second,
		Port:                  5432,
		TCPKeepalivesEnabled:  true,
		TCPKeepalivesIdle:     2 * time.Hour,
		TCPKeepalivesInterval: 75 * time.Second,
		TCPKeepalivesCount:    9,
		SSLServerHostnameVerificationEnabled: true,
		ChannelBinding:                       ChannelBindingPreferred,
		SessionMode:                          SessionModeAny,
	}
}

// Validate enforces the options' cross-field invariants.
func (o Options) Validate() error {
	if o.Port <= 0 || o.Port >= 65536 {
		return fmt.Errorf("%w: port %d out of range (0, 65536)", ErrBadOptions, o.Port)
	}
	if o.CommunicationMode == CommunicationModeNet {
		if o.NetAddress == "" && o.NetHostname == "" {
			return fmt.Errorf("%w: net mode requires net_address or net_hostname", ErrBadOptions)
		}
	}
	if o.CommunicationMode == CommunicationModeUDS && o.UDSDirectory == "" {
		return fmt.Errorf("%w: uds mode requires uds_directory", ErrBadOptions)
	}
	return nil
}

// connString renders the options pgx/pgconn understands, ignoring options
// that are inert for the selected transport.
func (o Options) connString() string {
	kv := make(map[string]string)
	if o.CommunicationMode == CommunicationModeUDS {
		kv["host"] = o.UDSDirectory
	} else {
		host := o.NetAddress
		if host == "" {
			host = o.NetHostname
		}
		kv["host"] = host
	}
	kv["port"] = fmt.Sprintf("%d", o.Port)
	if o.Username != "" {
		kv["user"] = o.Username
	}
	if o.Database != "" {
		kv["database"] = o.Database
	}
	if o.Password != "" {
		kv["password"] = o.Password
	}
	if o.ConnectTimeout > 0 {
		kv["connect_timeout"] = fmt.Sprintf("%d", int(o.ConnectTimeout.Seconds()))
	}
	if o.SSLEnabled {
		kv["sslmode"] = "verify-full"
		if !o.SSLServerHostnameVerificationEnabled {
			kv["sslmode"] = "verify-ca"
		}
		if o.SSLCertificateFile != "" {
			kv["sslcert"] = o.SSLCertificateFile
		}
		if o.SSLPrivateKeyFile != "" {
			kv["sslkey"] = o.SSLPrivateKeyFile
		}
		if o.SSLCertificateAuthorityFile != "" {
			kv["sslrootcert"] = o.SSLCertificateAuthorityFile
		}
	} else {
		kv["sslmode"] = "disable"
	}
	switch o.SessionMode {
	case SessionModeReadWrite:
		kv["target_session_attrs"] = "read-write"
	case SessionModeReadOnly:
		kv["target_session_attrs"] = "read-only"
	case SessionModePrimary:
		kv["target_session_attrs"] = "primary"
	case SessionModeStandby:
		kv["target_session_attrs"] = "standby"
	}

	var b []byte
	for k, v := range kv {
		if v == "" {
			continue
		}
		if len(b) > 0 {
			b = append(b, ' ')
		}
		b = append(b, k...)
		b = append(b, '=')
		b = append(b, '\'')
		for i := 0; i < len(v); i++ {
			if v[i] == '\'' || v[i] == '\\' {
				b = append(b, '\\')
			}
			b = append(b, v[i])
		}
		b = append(b, '\'')
	}
	return string(b)
}
