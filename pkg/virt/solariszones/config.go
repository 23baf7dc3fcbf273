package solariszones

import (
	"encoding/json"
	"os"
)

// Config holds the driver's tunables. Values mirror the [solariszones]
// option group of the original deployment configuration.
type Config struct {
	// GlancecacheDirname is the image cache directory.
	GlancecacheDirname string `json:"glancecache_dirname"`
	// InstancesPath is where per-instance state directories live.
	InstancesPath string `json:"instances_path"`
	// SnapshotsDirectory is where snapshots are staged before upload.
	SnapshotsDirectory string `json:"snapshots_directory"`
	// ZonesSuspendPath is where suspend images are written.
	ZonesSuspendPath string `json:"zones_suspend_path"`
	// LiveMigrationCipher encrypts memory traffic during live migration.
	// Empty means a common algorithm is negotiated.
	LiveMigrationCipher string `json:"live_migration_cipher"`
	// BootOptions allows kernel boot options from instance metadata.
	BootOptions bool `json:"solariszones_boot_options"`
}

// DefaultConfig returns the driver defaults.
func DefaultConfig() *Config {
	return &Config{
		GlancecacheDirname: "/var/share/nova/images",
		InstancesPath:      "/var/share/nova/instances",
		SnapshotsDirectory: "/var/share/nova/snapshots",
		ZonesSuspendPath:   "/var/share/zones/SYSsuspend",
		BootOptions:        true,
	}
}

// LoadConfig reads a JSON config file over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Opt describes a single configuration option.
type Opt struct {
	Name    string `json:"name"`
	Default string `json:"default"`
	Help    string `json:"help"`
}

// OptGroup is a named group of options.
type OptGroup struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Opts  []Opt  `json:"opts"`
}

// ListOpts returns the driver's configuration option groups, used by
// config tooling to enumerate what the driver accepts.
func ListOpts() []OptGroup {
	return []OptGroup{
		{
			Name:  "solariszones",
			Title: "Solaris Zones Options",
			Opts: []Opt{
				{"glancecache_dirname", "/var/share/nova/images", "Default path to the image cache for Solaris Zones."},
				{"instances_path", "/var/share/nova/instances", "Directory holding per-instance state."},
				{"snapshots_directory", "/var/share/nova/snapshots", "Location to store snapshots before uploading them to the image service."},
				{"zones_suspend_path", "/var/share/zones/SYSsuspend", "Default path for suspend images for Solaris Zones."},
				{"live_migration_cipher", "", "Cipher to use for encryption of memory traffic during live migration. If not specified, a common encryption algorithm will be negotiated."},
				{"solariszones_boot_options", "true", "Allow kernel boot options to be set in instance metadata."},
			},
		},
	}
}
