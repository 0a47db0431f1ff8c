package device

import (
	"time"

	"github.com/fsconf-network/fsconf/pkg/eapi"
	"github.com/fsconf-network/fsconf/pkg/util"
)

// Defaults applied by Profile.withDefaults
const (
	DefaultFilesystem = "flash:"
	DefaultSSHPort    = 22
)

// Profile describes how to reach and manage one switch.
type Profile struct {
	Name     string
	Host     string
	Port     int // command channel port; 0 means the scheme default
	Username string
	Password string

	SSHPort int
	// Filesystem is the device storage prefix candidates are staged under,
	// e.g. "flash:".
	Filesystem string

	// InsecureTLS disables certificate verification on the command channel.
	InsecureTLS bool
	// KnownHosts is the known_hosts file used to verify the SSH host key.
	// Empty means ~/.ssh/known_hosts.
	KnownHosts string
	// InsecureHostKey accepts any SSH host key.
	InsecureHostKey bool

	// Timeout bounds each command-channel request and the SSH dial and
	// handshake. Zero means eapi.DefaultTimeout.
	Timeout time.Duration

	// ReplaceSupported enables CommitReplace on platforms whose
	// "copy <file> running-config" replaces rather than merges.
	ReplaceSupported bool
}

func (p Profile) withDefaults() Profile {
	if p.Name == "" {
		p.Name = p.Host
	}
	if p.SSHPort == 0 {
		p.SSHPort = DefaultSSHPort
	}
	if p.Filesystem == "" {
		p.Filesystem = DefaultFilesystem
	}
	if p.Timeout <= 0 {
		p.Timeout = eapi.DefaultTimeout
	}
	return p
}

// Validate checks the fields required to open a session.
func (p Profile) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(p.Host != "", "host is required")
	v.Add(p.Username != "", "username is required")
	v.Add(p.Port >= 0 && p.Port <= 65535, "port out of range")
	v.Add(p.SSHPort >= 0 && p.SSHPort <= 65535, "ssh port out of range")
	return v.Build()
}
