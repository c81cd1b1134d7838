// Package snmp samples remote hosts over SNMP. CPU and disk come from
// HOST-RESOURCES-MIB, memory and load from UCD-SNMP-MIB and interface
// counters from IF-MIB.
package snmp

import (
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/hostwatch/config"
	"github.com/xtxerr/hostwatch/internal/validation"
)

// HostConfig describes one SNMP target.
type HostConfig struct {
	// Name is the target ID.
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port uint16 `yaml:"port"`

	// v2c
	Community string `yaml:"community"`

	// v3
	SecurityName  string `yaml:"security_name"`
	SecurityLevel string `yaml:"security_level" validate:"omitempty,oneof=noAuthNoPriv authNoPriv authPriv"`
	AuthProtocol  string `yaml:"auth_protocol"`
	AuthPassword  string `yaml:"auth_password"`
	PrivProtocol  string `yaml:"priv_protocol"`
	PrivPassword  string `yaml:"priv_password"`
	ContextName   string `yaml:"context_name"`

	// DiskMount is the hrStorageDescr of the filesystem to report.
	DiskMount string `yaml:"disk_mount"`

	// Timing
	TimeoutMs uint32 `yaml:"timeout_ms"`
	Retries   uint32 `yaml:"retries"`
}

// Validate checks the host configuration.
func (h *HostConfig) Validate() error {
	if err := validation.ValidateTargetID(h.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if h.Host == "" {
		return fmt.Errorf("host is required")
	}

	isV3 := h.SecurityName != ""
	if !isV3 && h.Community == "" {
		return fmt.Errorf("SNMP v2c requires community string (refusing to use insecure default)")
	}

	return nil
}

// newClient builds the gosnmp client of a host.
func newClient(h *HostConfig) *gosnmp.GoSNMP {
	port := h.Port
	if port == 0 {
		port = config.DefaultSNMPPort
	}

	timeout := h.TimeoutMs
	if timeout == 0 {
		timeout = config.DefaultSNMPTimeoutMs
	}

	retries := h.Retries
	if retries == 0 {
		retries = config.DefaultSNMPRetries
	}

	g := &gosnmp.GoSNMP{
		Target:         h.Host,
		Port:           port,
		Timeout:        time.Duration(timeout) * time.Millisecond,
		Retries:        int(retries),
		MaxRepetitions: 20,
	}

	if h.SecurityName != "" {
		g.Version = gosnmp.Version3
		g.SecurityModel = gosnmp.UserSecurityModel
		g.MsgFlags = msgFlags(h.SecurityLevel)
		g.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 h.SecurityName,
			AuthenticationProtocol:   authProtocol(h.AuthProtocol),
			AuthenticationPassphrase: h.AuthPassword,
			PrivacyProtocol:          privProtocol(h.PrivProtocol),
			PrivacyPassphrase:        h.PrivPassword,
		}
		g.ContextName = h.ContextName
	} else {
		g.Version = gosnmp.Version2c
		g.Community = h.Community
	}

	return g
}

// =============================================================================
// SNMPv3 Protocol Helpers
// =============================================================================

func msgFlags(level string) gosnmp.SnmpV3MsgFlags {
	switch level {
	case "authNoPriv":
		return gosnmp.AuthNoPriv
	case "authPriv":
		return gosnmp.AuthPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func authProtocol(protocol string) gosnmp.SnmpV3AuthProtocol {
	switch protocol {
	case "MD5":
		return gosnmp.MD5
	case "SHA":
		return gosnmp.SHA
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func privProtocol(protocol string) gosnmp.SnmpV3PrivProtocol {
	switch protocol {
	case "DES":
		return gosnmp.DES
	case "AES":
		return gosnmp.AES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.NoPriv
	}
}
