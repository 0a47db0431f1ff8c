// Package inventory loads the YAML device inventory. Each device entry is
// merged over the file's defaults to form a device.Profile.
//
//	defaults:
//	  username: admin
//	  filesystem: "flash:"
//	  known_hosts: ~/.ssh/known_hosts
//	devices:
//	  sw1:
//	    host: 10.0.0.11
//	  sw2:
//	    host: 10.0.0.12
//	    replace_supported: true
//	    lock:
//	      redis: 10.0.0.2:6379
package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fsconf-network/fsconf/pkg/device"
)

// DefaultPath is the inventory file used when none is configured.
var DefaultPath = filepath.Join("~", ".fsconf", "inventory.yaml")

// Entry is one device (or the defaults block) as written in the file.
// Pointer fields distinguish "unset" from the zero value when merging.
type Entry struct {
	Host             string `yaml:"host,omitempty"`
	Port             int    `yaml:"port,omitempty"`
	Username         string `yaml:"username,omitempty"`
	Password         string `yaml:"password,omitempty"`
	SSHPort          int    `yaml:"ssh_port,omitempty"`
	Filesystem       string `yaml:"filesystem,omitempty"`
	InsecureTLS      *bool  `yaml:"insecure_tls,omitempty"`
	KnownHosts       string `yaml:"known_hosts,omitempty"`
	InsecureHostKey  *bool  `yaml:"insecure_host_key,omitempty"`
	Timeout          string `yaml:"timeout,omitempty"`
	ReplaceSupported *bool  `yaml:"replace_supported,omitempty"`
	Catalogue        string `yaml:"catalogue,omitempty"`
	Lock             *Lock  `yaml:"lock,omitempty"`
}

// Lock configures the optional Redis device lock.
type Lock struct {
	Redis string `yaml:"redis"`
	TTL   string `yaml:"ttl,omitempty"`
}

// Inventory is the parsed file.
type Inventory struct {
	Defaults Entry            `yaml:"defaults"`
	Devices  map[string]Entry `yaml:"devices"`
}

// Device is a resolved inventory entry.
type Device struct {
	Profile   device.Profile
	Catalogue string
	Lock      *Lock
	LockTTL   time.Duration
}

// Load reads and parses an inventory file. A leading "~" is expanded.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	return Parse(data)
}

// Parse decodes inventory YAML.
func Parse(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parsing inventory YAML: %w", err)
	}
	if len(inv.Devices) == 0 {
		return nil, fmt.Errorf("inventory has no devices")
	}
	return &inv, nil
}

// Names returns the device names, sorted.
func (inv *Inventory) Names() []string {
	names := make([]string, 0, len(inv.Devices))
	for name := range inv.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve merges the named device over the defaults.
func (inv *Inventory) Resolve(name string) (*Device, error) {
	e, ok := inv.Devices[name]
	if !ok {
		return nil, fmt.Errorf("device %q not in inventory", name)
	}
	m := merge(inv.Defaults, e)

	p := device.Profile{
		Name:             name,
		Host:             m.Host,
		Port:             m.Port,
		Username:         m.Username,
		Password:         m.Password,
		SSHPort:          m.SSHPort,
		Filesystem:       m.Filesystem,
		InsecureTLS:      deref(m.InsecureTLS),
		KnownHosts:       ExpandHome(m.KnownHosts),
		InsecureHostKey:  deref(m.InsecureHostKey),
		ReplaceSupported: deref(m.ReplaceSupported),
	}
	if p.Host == "" {
		p.Host = name
	}
	if m.Timeout != "" {
		d, err := time.ParseDuration(m.Timeout)
		if err != nil {
			return nil, fmt.Errorf("device %s: invalid timeout %q: %w", name, m.Timeout, err)
		}
		p.Timeout = d
	}

	d := &Device{Profile: p, Catalogue: ExpandHome(m.Catalogue), Lock: m.Lock}
	if m.Lock != nil && m.Lock.TTL != "" {
		ttl, err := time.ParseDuration(m.Lock.TTL)
		if err != nil {
			return nil, fmt.Errorf("device %s: invalid lock ttl %q: %w", name, m.Lock.TTL, err)
		}
		d.LockTTL = ttl
	}
	return d, nil
}

// merge returns base overlaid with the set fields of over.
func merge(base, over Entry) Entry {
	out := base
	if over.Host != "" {
		out.Host = over.Host
	}
	if over.Port != 0 {
		out.Port = over.Port
	}
	if over.Username != "" {
		out.Username = over.Username
	}
	if over.Password != "" {
		out.Password = over.Password
	}
	if over.SSHPort != 0 {
		out.SSHPort = over.SSHPort
	}
	if over.Filesystem != "" {
		out.Filesystem = over.Filesystem
	}
	if over.InsecureTLS != nil {
		out.InsecureTLS = over.InsecureTLS
	}
	if over.KnownHosts != "" {
		out.KnownHosts = over.KnownHosts
	}
	if over.InsecureHostKey != nil {
		out.InsecureHostKey = over.InsecureHostKey
	}
	if over.Timeout != "" {
		out.Timeout = over.Timeout
	}
	if over.ReplaceSupported != nil {
		out.ReplaceSupported = over.ReplaceSupported
	}
	if over.Catalogue != "" {
		out.Catalogue = over.Catalogue
	}
	if over.Lock != nil {
		out.Lock = over.Lock
	}
	return out
}

func deref(b *bool) bool {
	return b != nil && *b
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
