package solariszones

import (
	"context"
	"runtime"

	"github.com/docker/go-units"

	"github.com/guillermomolina/nova-solaris/pkg/virt"
)

func onlineCPUs() int {
	return runtime.NumCPU()
}

// cpuArch maps the host architecture to the name reported upstream.
func cpuArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "sparc64":
		return "sparc64"
	}
	return runtime.GOARCH
}

// AvailableResource reports host capacity and usage: cpus not claimed by
// dedicated-cpu configurations count as used, memory comes from the page
// counters, and disk from the root pool.
func (d *Driver) AvailableResource(ctx context.Context) (*virt.Resource, error) {
	res := &virt.Resource{
		VCPUs:              d.ncpus,
		HypervisorType:     DriverName,
		HypervisorVersion:  HypervisorVersion,
		HypervisorHostname: d.node,
		CPUArch:            cpuArch(),
	}

	total, free, err := d.kstat.SystemPages(ctx)
	if err != nil {
		return nil, err
	}
	res.MemoryMB = total * d.pagesize / units.MiB
	res.MemoryMBUsed = (total - free) * d.pagesize / units.MiB

	// cpus outside the default pset belong to dedicated-cpu zones
	if ncpus, err := d.kstat.DefaultPsetCPUs(ctx); err == nil && ncpus <= res.VCPUs {
		res.VCPUsUsed = res.VCPUs - ncpus
	}

	size, poolFree, err := d.pool.Stats(ctx)
	if err != nil {
		return nil, err
	}
	res.LocalGB = size / units.GiB
	res.LocalGBUsed = (size - poolFree) / units.GiB

	return res, nil
}
