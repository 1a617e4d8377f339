// Package shary is the root of the LAN file-sharing network core: the
// Config/LoadConfig pair used by cmd/sharectl, tying together the
// internal/core task group.
package shary

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration for one host's network core.
type Config struct {
	// Port is the well-known UDP/TCP service port shared by the
	// advertiser, receiver, and file server.
	Port uint16 `yaml:"port"`
	// MulticastGroup is the IPv4 multicast address advertisements are
	// sent to and received from.
	MulticastGroup string `yaml:"multicast_group"`
	// ShareDir is an optional convenience root: files placed directly
	// under it are not auto-registered, but presentation layers may use
	// it as the default location to browse when adding a share.
	ShareDir string `yaml:"share_dir"`
}

// DefaultConfig is the service port and multicast group used when no
// config file overrides them: port 17671, multicast group 224.0.0.139.
var DefaultConfig = Config{
	Port:           17671,
	MulticastGroup: "224.0.0.139",
}

// LoadConfig reads filename as YAML over DefaultConfig, tolerating a
// missing file. ShareDir is expanded with go-homedir to resolve a
// leading ~.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	b, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", filename, err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", filename, err)
	}
	if c.ShareDir != "" {
		c.ShareDir, err = homedir.Expand(c.ShareDir)
		if err != nil {
			return nil, fmt.Errorf("expand share_dir: %w", err)
		}
	}
	return &c, nil
}

// MulticastAddr parses MulticastGroup, returning the default address if
// it is empty.
func (c *Config) MulticastAddr() (netip.Addr, error) {
	group := c.MulticastGroup
	if group == "" {
		group = DefaultConfig.MulticastGroup
	}
	addr, err := netip.ParseAddr(group)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse multicast_group %q: %w", group, err)
	}
	return addr, nil
}
