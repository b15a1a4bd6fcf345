/*
File Name:  config.go
Author:     Eastsea Contributors

YAML configuration loading, kept from the teacher's Settings.go/Config.go
pattern: a //go:embed default used whenever the configured file is
missing or empty, parsed with gopkg.in/yaml.v3. Fields are repointed from
the teacher's private-key/seed-list blockchain config to this module's
listen/bootstrap/discovery/auto-discovery surface.
*/

package eastsea

import (
	_ "embed"
	"os"

	"gopkg.in/yaml.v3"
)

// Version is this module's build identifier.
const Version = "0.1"

//go:embed "config_default.yaml"
var defaultConfig []byte

// DiscoveryConfig toggles which discovery subsystems are active.
type DiscoveryConfig struct {
	MDNS      bool `yaml:"mdns"`
	Broadcast bool `yaml:"broadcast"`
	PortScan  bool `yaml:"port_scan"`
	STUN      bool `yaml:"stun"`
	UPnP      bool `yaml:"upnp"`
	Tracker   bool `yaml:"tracker"`
}

// AutoDiscoveryConfig tunes the auto-discovery controller. The node binary
// applies MaxPeers; the two interval fields are parsed but not applied, the
// controller's loops run at its fixed DiscoveryInterval and
// ConnectionInterval.
type AutoDiscoveryConfig struct {
	MaxPeers           int `yaml:"max_peers"`
	DiscoveryIntervalS int `yaml:"discovery_interval_seconds"`
	ConnectionInterval int `yaml:"connection_interval_seconds"`
}

// Config is this node's full runtime configuration.
type Config struct {
	LogFile string `yaml:"log_file"`

	ListenAddress string `yaml:"listen_address"`
	ListenPort    int    `yaml:"listen_port"`

	BootstrapSeeds []string `yaml:"bootstrap_seeds"`

	TrackerListen string   `yaml:"tracker_listen"` // non-empty runs a local tracker server
	TrackerSeeds  []string `yaml:"tracker_seeds"`  // external trackers to announce to

	ScanHosts []string `yaml:"scan_hosts"`
	ScanPorts []int    `yaml:"scan_ports"`

	Discovery     DiscoveryConfig     `yaml:"discovery"`
	AutoDiscovery AutoDiscoveryConfig `yaml:"auto_discovery"`
}

// LoadConfig reads filename as YAML, falling back to the embedded default
// when the file is missing or empty. The returned status mirrors the
// Exit.go exit-code table so a cmd/ binary can os.Exit with it directly.
func LoadConfig(filename string) (cfg Config, status int, err error) {
	var data []byte

	stats, statErr := os.Stat(filename)
	switch {
	case statErr != nil && os.IsNotExist(statErr):
		data = defaultConfig
	case statErr == nil && stats.Size() == 0:
		data = defaultConfig
	case statErr != nil:
		return Config{}, ExitErrorConfigAccess, statErr
	default:
		if data, err = os.ReadFile(filename); err != nil {
			return Config{}, ExitErrorConfigRead, err
		}
	}

	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, ExitErrorConfigParse, err
	}

	return cfg, 0, nil
}

// SaveConfig writes cfg as YAML to filename.
func SaveConfig(filename string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
