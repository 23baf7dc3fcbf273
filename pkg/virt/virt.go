// Package virt defines the contract between the compute daemon and a
// virtualization driver, plus a registry so drivers can be selected by
// name. Importing a driver package registers it; the compute daemon then
// instantiates it with New, the same way pkg/kv selects its backends.
package virt

import (
	"context"
	"fmt"
	"sync"

	"github.com/guillermomolina/nova-solaris/pkg/zones"
)

// RebootType selects between an orderly and an immediate reboot.
type RebootType string

// HaltType selects between an orderly shutdown and an immediate halt.
type HaltType string

// Reboot and halt types
const (
	RebootSoft RebootType = "SOFT"
	RebootHard RebootType = "HARD"

	HaltSoft HaltType = "SOFT"
	HaltHard HaltType = "HARD"
)

// Resources are the compute resources requested for an instance.
type Resources struct {
	MemoryMB uint64 `json:"memory"`
	DiskGB   uint64 `json:"disk"`
	VCPUs    uint32 `json:"cpu"`
}

// InstanceSpec describes an instance the driver should realize. ExtraSpecs
// carries flavor extra specs; keys with the zonecfg: prefix become global
// zone configuration properties.
type InstanceSpec struct {
	Name       string            `json:"name"`
	UUID       string            `json:"uuid"`
	Brand      zones.Brand       `json:"brand"`
	Resources  Resources         `json:"resources"`
	ExtraSpecs map[string]string `json:"extra_specs,omitempty"`
	ImagePath  string            `json:"image_path,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// InstanceInfo is the observed status of an instance.
type InstanceInfo struct {
	Name      string           `json:"name"`
	State     zones.PowerState `json:"state"`
	Brand     zones.Brand      `json:"brand"`
	MaxMemKB  uint64           `json:"max_mem_kb"`
	MemKB     uint64           `json:"mem_kb"`
	NumCPU    uint32           `json:"num_cpu"`
	CPUTimeNS uint64           `json:"cpu_time_ns"`
}

// Resource is the host resource report delivered to the orchestrator's
// resource tracker.
type Resource struct {
	VCPUs              uint64 `json:"vcpus"`
	VCPUsUsed          uint64 `json:"vcpus_used"`
	MemoryMB           uint64 `json:"memory_mb"`
	MemoryMBUsed       uint64 `json:"memory_mb_used"`
	LocalGB            uint64 `json:"local_gb"`
	LocalGBUsed        uint64 `json:"local_gb_used"`
	HypervisorType     string `json:"hypervisor_type"`
	HypervisorVersion  string `json:"hypervisor_version"`
	HypervisorHostname string `json:"hypervisor_hostname"`
	CPUArch            string `json:"cpu_arch"`
}

// VolumeConnection describes a block device to attach to an instance.
type VolumeConnection struct {
	// DriverVolumeType is one of iscsi, fibre_channel, file, or local.
	DriverVolumeType string `json:"driver_volume_type"`
	// SURI is the storage URI understood by the zones framework.
	SURI string `json:"suri"`
	// Mountpoint is the device path inside the instance.
	Mountpoint string `json:"mountpoint"`
}

// Driver is the hypervisor abstraction the compute daemon drives. All
// operations are idempotent where the underlying lifecycle allows it:
// repeating an operation whose effect already holds succeeds.
type Driver interface {
	// InitHost prepares the driver at daemon startup.
	InitHost(ctx context.Context, host string) error

	Spawn(ctx context.Context, spec InstanceSpec, powerOn bool) error
	// Destroy removes an instance. A missing instance is success.
	Destroy(ctx context.Context, name string) error

	Reboot(ctx context.Context, name string, t RebootType) error
	PowerOn(ctx context.Context, name string) error
	PowerOff(ctx context.Context, name string, t HaltType) error
	Suspend(ctx context.Context, name string) error
	Resume(ctx context.Context, name string) error

	GetInfo(ctx context.Context, name string) (*InstanceInfo, error)
	InstanceExists(ctx context.Context, name string) (bool, error)
	ListInstances(ctx context.Context) ([]string, error)

	AttachVolume(ctx context.Context, name string, conn VolumeConnection) error
	DetachVolume(ctx context.Context, name string, conn VolumeConnection) error

	// CheckCanLiveMigrate performs a dry-run migration check.
	CheckCanLiveMigrate(ctx context.Context, name, dest string) error
	LiveMigrate(ctx context.Context, name, dest string) error

	ConsoleOutput(ctx context.Context, name string) ([]byte, error)
	AvailableResource(ctx context.Context) (*Resource, error)
}

// ErrInstanceNotFound is returned for operations on unknown instances.
type ErrInstanceNotFound struct {
	Name string
}

func (e ErrInstanceNotFound) Error() string {
	return fmt.Sprintf("instance %q not found", e.Name)
}

// Options configures a driver at construction time.
type Options struct {
	// Manager overrides the zone manager, used by tests. When nil the
	// driver uses the host utilities.
	Manager zones.Manager
	// NodeName is the hypervisor hostname to report.
	NodeName string
	// ConfigFile is an optional driver config file path.
	ConfigFile string
}

var drivers = struct {
	sync.RWMutex
	constructors map[string]func(Options) (Driver, error)
}{
	constructors: map[string]func(Options) (Driver, error){},
}

// Register makes a driver available under name. It is called from driver
// package inits; registering a name twice panics.
func Register(name string, fn func(Options) (Driver, error)) {
	drivers.Lock()
	defer drivers.Unlock()

	if _, dup := drivers.constructors[name]; dup {
		panic("virt: Register called twice for " + name)
	}
	drivers.constructors[name] = fn
}

// New instantiates the named driver.
func New(name string, opts Options) (Driver, error) {
	drivers.RLock()
	fn := drivers.constructors[name]
	drivers.RUnlock()

	if fn == nil {
		return nil, fmt.Errorf("unknown virt driver %s (forgotten import?)", name)
	}
	return fn(opts)
}

// Drivers returns the registered driver names.
func Drivers() []string {
	drivers.RLock()
	defer drivers.RUnlock()

	names := make([]string, 0, len(drivers.constructors))
	for name := range drivers.constructors {
		names = append(names, name)
	}
	return names
}
