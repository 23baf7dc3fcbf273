// Package solariszones implements the virt.Driver contract on top of the
// Solaris Zones framework. Importing it registers the "solariszones"
// driver.
package solariszones

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	log "github.com/sirupsen/logrus"

	"github.com/guillermomolina/nova-solaris/pkg/virt"
	"github.com/guillermomolina/nova-solaris/pkg/zones"
)

// DriverName is the registry key for this driver.
const DriverName = "solariszones"

const (
	// HypervisorVersion is reported upstream. The zones framework does not
	// expose a version number of its own; bump only for incompatible
	// changes such as kernel zone live migration format changes.
	HypervisorVersion = "5.11"

	// MaxConsoleBytes caps console log output
	MaxConsoleBytes = 102400

	// kernel zone memory must align on a 256 MB boundary
	memoryAlignmentMB = 256
)

// zonecfg global properties settable through flavor extra specs, by brand
var (
	commonZonecfgItems = []string{"bootargs", "hostid"}
	ngzZonecfgItems    = []string{"file-mac-profile", "fs-allowed", "limitpriv"}
	kzZonecfgItems     = []string{"cpu-arch"}
)

func init() {
	virt.Register(DriverName, func(opts virt.Options) (virt.Driver, error) {
		return New(opts)
	})
}

// kstatSource is the subset of zones.Kstat the driver needs, split out so
// tests can substitute canned statistics.
type kstatSource interface {
	SystemPages(ctx context.Context) (total, free uint64, err error)
	DefaultPsetCPUs(ctx context.Context) (uint64, error)
	ZoneCPUTime(ctx context.Context, zone string) (uint64, error)
}

// poolSource reports root pool capacity.
type poolSource interface {
	Stats(ctx context.Context) (size, free uint64, err error)
}

// Driver manages instances as Solaris zones.
type Driver struct {
	mgr      zones.Manager
	kstat    kstatSource
	pool     poolSource
	cfg      *Config
	node     string
	pagesize uint64
	ncpus    uint64
}

var _ virt.Driver = (*Driver)(nil)

// New creates a Driver. A nil opts.Manager means the host utilities are
// used.
func New(opts virt.Options) (*Driver, error) {
	cfg, err := LoadConfig(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	mgr := opts.Manager
	if mgr == nil {
		mgr = zones.NewCLI()
	}

	node := opts.NodeName
	if node == "" {
		if node, err = os.Hostname(); err != nil {
			return nil, err
		}
	}

	return &Driver{
		mgr:      mgr,
		kstat:    zones.NewKstat(),
		pool:     zones.NewPool("rpool"),
		cfg:      cfg,
		node:     node,
		pagesize: uint64(os.Getpagesize()),
		ncpus:    uint64(onlineCPUs()),
	}, nil
}

// InitHost prepares host directories at daemon startup.
func (d *Driver) InitHost(ctx context.Context, host string) error {
	for _, dir := range []string{d.cfg.InstancesPath, d.cfg.SnapshotsDirectory} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	log.WithFields(log.Fields{
		"host":   host,
		"driver": DriverName,
	}).Info("driver initialized")
	return nil
}

// brandFor resolves the zone brand for a spec: an explicit brand wins,
// then the zonecfg:brand extra spec, then the default native brand.
func brandFor(spec virt.InstanceSpec) zones.Brand {
	if spec.Brand != "" {
		return spec.Brand
	}
	if b, ok := spec.ExtraSpecs["zonecfg:brand"]; ok {
		return zones.Brand(b)
	}
	return zones.BrandSolaris
}

// validateSpec checks the spec for brand compatibility.
func validateSpec(spec virt.InstanceSpec) (zones.Brand, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("instance name is required")
	}
	brand := brandFor(spec)
	if !brand.Valid() {
		return "", fmt.Errorf("unsupported zone brand %q for instance %q", brand, spec.Name)
	}
	if brand == zones.BrandSolarisKZ && spec.Resources.MemoryMB%memoryAlignmentMB != 0 {
		return "", fmt.Errorf("memory size %dM for instance %q does not align on %dM boundary",
			spec.Resources.MemoryMB, spec.Name, memoryAlignmentMB)
	}
	return brand, nil
}

/// buildConfig renders the zone configuration for a spec: the brand
// template, the brand-appropriate cpu and memory caps, and any
// zonecfg-scoped extra specs.
func buildConfig(spec virt.InstanceSpec, brand zones.Brand) (*zones.Config, error) {
	cfg, err := zones.NewConfig(brand)
	if err != nil {
		return nil, err
	}

	// cpu and memory resource types differ by brand
	vcpuResource, memResource := "capped-cpu", "swap"
	if brand == zones.BrandSolarisKZ {
		vcpuResource, memResource = "virtual-cpu", "physical"
	}
	if spec.Resources.VCPUs > 0 {
		cfg.AddResource(vcpuResource, zones.Property{Name: "ncpus", Value: strconv.FormatUint(uint64(spec.Resources.VCPUs), 10)})
	}
	if spec.Resources.MemoryMB > 0 {
		cfg.AddResource("capped-memory", zones.Property{Name: memResource, Value: fmt.Sprintf("%dM", spec.Resources.MemoryMB)})
	}

	allowed := append([]string{}, commonZonecfgItems...)
	if brand == zones.BrandSolaris {
		allowed = append(allowed, ngzZonecfgItems...)
	} else {
		allowed = append(allowed, kzZonecfgItems...)
	}
	for _, prop := range allowed {
		if v, ok := spec.ExtraSpecs["zonecfg:"+prop]; ok {
			cfg.SetGlobal(prop, v)
		}
	}
	for key := range spec.ExtraSpecs {
		if !strings.HasPrefix(key, "zonecfg:") || key == "zonecfg:brand" {
			continue
		}
		prop := strings.TrimPrefix(key, "zonecfg:")
		if !contains(allowed, prop) {
			log.WithFields(log.Fields{
				"property": prop,
				"instance": spec.Name,
			}).Warning("ignoring unsupported zone property set on flavor")
		}
	}
	return cfg, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func (d *Driver) instanceDir(name string) string {
	return filepath.Join(d.cfg.InstancesPath, name)
}

// Spawn creates and optionally boots a new zone. On failure everything
// created so far is torn down and the original error returned.
func (d *Driver) Spawn(ctx context.Context, spec virt.InstanceSpec, powerOn bool) error {
	brand, err := validateSpec(spec)
	if err != nil {
		return err
	}

	if _, err := d.mgr.Get(ctx, spec.Name); err == nil {
		return fmt.Errorf("instance %q already exists", spec.Name)
	} else if err != zones.ErrNotFound {
		return err
	}

	cfg, err := buildConfig(spec, brand)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(d.instanceDir(spec.Name), 0o755); err != nil {
		return err
	}

	if err := d.mgr.Configure(ctx, spec.Name, cfg); err != nil {
		return err
	}

	err = func() error {
		if spec.ImagePath != "" {
			if err := d.mgr.Install(ctx, spec.Name, spec.ImagePath); err != nil {
				return err
			}
		} else {
			if err := d.mgr.Attach(ctx, spec.Name); err != nil {
				return err
			}
		}
		if powerOn {
			return d.mgr.Boot(ctx, spec.Name, d.bootargs(spec.Metadata))
		}
		return nil
	}()
	if err != nil {
		log.WithFields(log.Fields{
			"instance": spec.Name,
			"error":    err,
		}).Error("unable to spawn instance, rolling back")
		// depending on where installation got to there may be state left
		// behind; attempt a full teardown but keep the original error
		if uerr := d.mgr.Uninstall(ctx, spec.Name); uerr != nil {
			log.WithFields(log.Fields{"instance": spec.Name, "error": uerr}).Debug("rollback uninstall failed")
		}
		if derr := d.mgr.Unconfigure(ctx, spec.Name); derr != nil {
			log.WithFields(log.Fields{"instance": spec.Name, "error": derr}).Debug("rollback unconfigure failed")
		}
		_ = os.RemoveAll(d.instanceDir(spec.Name))
		return err
	}
	return nil
}

// bootargs assembles boot arguments from instance metadata when the
// config allows it.
func (d *Driver) bootargs(metadata map[string]string) []string {
	if !d.cfg.BootOptions {
		return nil
	}
	if args, ok := metadata["bootargs"]; ok && args != "" {
		return []string{"--", args}
	}
	return nil
}

// Destroy tears an instance all the way down. A missing zone is success;
// each teardown step is skipped when the zone is already past it.
func (d *Driver) Destroy(ctx context.Context, name string) error {
	zone, err := d.mgr.Get(ctx, name)
	if err == zones.ErrNotFound {
		log.WithField("instance", name).Warning("destroy of an unknown instance")
		return nil
	}
	if err != nil {
		return err
	}

	if zone.State.Power() == zones.PowerRunning {
		if err := d.mgr.Halt(ctx, name); err != nil {
			return err
		}
	}
	if zone, err = d.mgr.Get(ctx, name); err != nil {
		return err
	}
	if zone.State.Power() == zones.PowerShutdown {
		if err := d.mgr.Uninstall(ctx, name); err != nil {
			return err
		}
	}
	if err := d.mgr.Unconfigure(ctx, name); err != nil {
		return err
	}
	return os.RemoveAll(d.instanceDir(name))
}

// Reboot restarts an instance. Rebooting a powered-off instance powers it
// on.
func (d *Driver) Reboot(ctx context.Context, name string, t virt.RebootType) error {
	zone, err := d.getZone(ctx, name)
	if err != nil {
		return err
	}

	if zone.State.Power() == zones.PowerShutdown {
		return d.PowerOn(ctx, name)
	}

	if t == virt.RebootSoft {
		// an orderly shutdown with -r boots the zone back up
		return d.mgr.Shutdown(ctx, name, []string{"-r"})
	}
	return d.mgr.Reboot(ctx, name, nil)
}

// PowerOn boots an instance; booting a running instance is a no-op.
func (d *Driver) PowerOn(ctx context.Context, name string) error {
	zone, err := d.getZone(ctx, name)
	if err != nil {
		return err
	}
	if zone.State.Power() == zones.PowerRunning {
		return nil
	}
	return d.mgr.Boot(ctx, name, nil)
}

// PowerOff stops an instance. An error from the shutdown that still lands
// the zone in an off state is ignored.
func (d *Driver) PowerOff(ctx context.Context, name string, t virt.HaltType) error {
	zone, err := d.getZone(ctx, name)
	if err != nil {
		return err
	}
	if zone.State.Power() == zones.PowerShutdown {
		return nil
	}

	if t == virt.HaltSoft {
		err = d.mgr.Shutdown(ctx, name, nil)
	} else {
		err = d.mgr.Halt(ctx, name)
	}
	if err != nil {
		if zone, gerr := d.mgr.Get(ctx, name); gerr == nil && zone.State.Power() == zones.PowerShutdown {
			log.WithFields(log.Fields{
				"instance": name,
				"error":    err,
			}).Warning("ignoring command error returned while powering off")
			return nil
		}
		return err
	}
	return nil
}

// suspendPathTemplate is expanded by the zones framework per zone.
const suspendPathTemplate = "/%{zonename}"

// Suspend writes the instance's memory image to the suspend path. Only
// kernel zones support suspend.
func (d *Driver) Suspend(ctx context.Context, name string) error {
	zone, err := d.getZone(ctx, name)
	if err != nil {
		return err
	}
	if zone.Brand != zones.BrandSolarisKZ {
		return fmt.Errorf("%q branded zones do not support suspend", zone.Brand)
	}
	if zone.State.Power() != zones.PowerRunning {
		return fmt.Errorf("instance %q is not running", name)
	}

	want := d.cfg.ZonesSuspendPath + suspendPathTemplate
	current, ok, err := d.mgr.LookupProperty(ctx, name, "suspend", "path")
	if err != nil {
		return err
	}
	if !ok || current != want {
		tx := zones.NewTransaction()
		if ok {
			tx.RemoveResource("suspend")
		}
		tx.AddResource("suspend", zones.Property{Name: "path", Value: want})
		if err := d.mgr.Reconfigure(ctx, name, tx); err != nil {
			return err
		}
	}
	return d.mgr.Suspend(ctx, name)
}

// Resume boots a suspended kernel zone, which restores its memory image.
func (d *Driver) Resume(ctx context.Context, name string) error {
	zone, err := d.getZone(ctx, name)
	if err != nil {
		return err
	}
	if zone.Brand != zones.BrandSolarisKZ {
		return fmt.Errorf("%q branded zones do not support resume", zone.Brand)
	}
	if zone.State.Power() != zones.PowerShutdown {
		return fmt.Errorf("instance %q is not suspended", name)
	}
	return d.mgr.Boot(ctx, name, nil)
}

func (d *Driver) getZone(ctx context.Context, name string) (*zones.Zone, error) {
	zone, err := d.mgr.Get(ctx, name)
	if err == zones.ErrNotFound {
		return nil, virt.ErrInstanceNotFound{Name: name}
	}
	return zone, err
}

// GetInfo reports the observed state of an instance.
func (d *Driver) GetInfo(ctx context.Context, name string) (*virt.InstanceInfo, error) {
	zone, err := d.getZone(ctx, name)
	if err != nil {
		return nil, err
	}

	maxMemKB := d.maxMemKB(ctx, zone)
	info := &virt.InstanceInfo{
		Name:     zone.Name,
		State:    zone.State.Power(),
		Brand:    zone.Brand,
		MaxMemKB: maxMemKB,
		// there is no way to observe actual usage from the host side, so
		// report the cap
		MemKB:  maxMemKB,
		NumCPU: d.numCPU(ctx, zone),
	}
	if zone.State == zones.StateRunning {
		if t, err := d.kstat.ZoneCPUTime(ctx, zone.Name); err == nil {
			info.CPUTimeNS = t
		}
	}
	return info, nil
}

// maxMemKB returns the memory cap in KB. The capping resource property
// depends on the brand; without a cap the zone can use all host memory.
func (d *Driver) maxMemKB(ctx context.Context, zone *zones.Zone) uint64 {
	prop := "physical"
	if zone.Brand == zones.BrandSolaris {
		prop = "swap"
	}
	if v, ok, err := d.mgr.LookupProperty(ctx, zone.Name, "capped-memory", prop); err == nil && ok {
		if b, err := units.RAMInBytes(v); err == nil {
			return uint64(b) / units.KiB
		}
	}
	if total, _, err := d.kstat.SystemPages(ctx); err == nil {
		return total * d.pagesize / units.KiB
	}
	return 0
}

// numCPU emulates the virtual platform's vcpu sizing: the minimum of a
// virtual-cpu range, else the maximum of a dedicated-cpu range, else all
// host cpus.
func (d *Driver) numCPU(ctx context.Context, zone *zones.Zone) uint32 {
	if v, ok, err := d.mgr.LookupProperty(ctx, zone.Name, "virtual-cpu", "ncpus"); err == nil && ok {
		low := strings.SplitN(v, "-", 2)[0]
		if n, err := strconv.ParseUint(low, 10, 32); err == nil {
			return uint32(n)
		}
	}
	if v, ok, err := d.mgr.LookupProperty(ctx, zone.Name, "dedicated-cpu", "ncpus"); err == nil && ok {
		parts := strings.SplitN(v, "-", 2)
		high := parts[len(parts)-1]
		if n, err := strconv.ParseUint(high, 10, 32); err == nil {
			return uint32(n)
		}
	}
	return uint32(d.ncpus)
}

func (d *Driver) InstanceExists(ctx context.Context, name string) (bool, error) {
	_, err := d.mgr.Get(ctx, name)
	if err == zones.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *Driver) ListInstances(ctx context.Context) ([]string, error) {
	zs, err := d.mgr.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(zs))
	for i, z := range zs {
		names[i] = z.Name
	}
	return names, nil
}

// AttachVolume adds a device resource backed by the connection's storage
// URI.
func (d *Driver) AttachVolume(ctx context.Context, name string, conn virt.VolumeConnection) error {
	if _, err := d.getZone(ctx, name); err != nil {
		return err
	}
	if conn.SURI == "" {
		return fmt.Errorf("volume connection for instance %q has no storage URI", name)
	}
	tx := zones.NewTransaction()
	tx.AddResource("device", zones.Property{Name: "storage", Value: conn.SURI})
	return d.mgr.Reconfigure(ctx, name, tx)
}

// DetachVolume removes the device resource matching the connection's
// storage URI.
func (d *Driver) DetachVolume(ctx context.Context, name string, conn virt.VolumeConnection) error {
	if _, err := d.getZone(ctx, name); err != nil {
		return err
	}
	tx := zones.NewTransaction()
	tx.RemoveResourceWhere("device", zones.Property{Name: "storage", Value: conn.SURI})
	return d.mgr.Reconfigure(ctx, name, tx)
}

// migrationDest builds the migration target URI.
func migrationDest(dest string) string {
	return "ssh://nova@" + dest
}

func (d *Driver) checkMigratable(ctx context.Context, name string) (*zones.Zone, error) {
	zone, err := d.getZone(ctx, name)
	if err != nil {
		return nil, err
	}
	if zone.Brand != zones.BrandSolarisKZ {
		return nil, fmt.Errorf("%q branded zones do not support live migration", zone.Brand)
	}
	if zone.State != zones.StateRunning {
		return nil, fmt.Errorf("instance %q is not running", name)
	}
	return zone, nil
}

func (d *Driver) migrationOptions(dryRun bool) []string {
	var opts []string
	if d.cfg.LiveMigrationCipher != "" {
		opts = append(opts, "-c", d.cfg.LiveMigrationCipher)
	}
	if dryRun {
		opts = append(opts, "-nq")
	}
	return opts
}

// CheckCanLiveMigrate performs a dry-run migration to the destination.
func (d *Driver) CheckCanLiveMigrate(ctx context.Context, name, dest string) error {
	if _, err := d.checkMigratable(ctx, name); err != nil {
		return err
	}
	return d.mgr.Migrate(ctx, name, migrationDest(dest), d.migrationOptions(true))
}

// LiveMigrate moves a running kernel zone to the destination host.
func (d *Driver) LiveMigrate(ctx context.Context, name, dest string) error {
	if _, err := d.checkMigratable(ctx, name); err != nil {
		return err
	}
	return d.mgr.Migrate(ctx, name, migrationDest(dest), d.migrationOptions(false))
}

// ConsoleOutput returns the tail of the instance's console log.
func (d *Driver) ConsoleOutput(ctx context.Context, name string) ([]byte, error) {
	if _, err := d.getZone(ctx, name); err != nil {
		return nil, err
	}
	return d.mgr.ConsoleOutput(ctx, name, MaxConsoleBytes)
}
