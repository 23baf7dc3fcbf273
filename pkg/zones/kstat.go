package zones

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const kstatPath = "/usr/bin/kstat"

// cpu time gathering retries when the accumulated kstat generation number
// changes mid-read, which happens when cpus are reassigned
const cpuTimeAttempts = 3

// Kstat reads kernel statistics via kstat(1M) machine-parseable output.
type Kstat struct {
	run runner
}

// NewKstat returns a Kstat backed by the kstat utility.
func NewKstat() *Kstat {
	return &Kstat{run: run}
}

// parseKstat parses `kstat -p` output. Each line is
// module:instance:name:statistic<TAB>value. The result maps
// module:instance:name to its statistics.
func parseKstat(out []byte) map[string]map[string]string {
	stats := map[string]map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		i := strings.LastIndex(parts[0], ":")
		if i < 0 {
			continue
		}
		key, stat := parts[0][:i], parts[0][i+1:]
		if _, ok := stats[key]; !ok {
			stats[key] = map[string]string{}
		}
		stats[key][stat] = strings.TrimSpace(parts[1])
	}
	return stats
}

// lookup runs kstat -p with the given statistic specifier.
func (k *Kstat) lookup(ctx context.Context, spec string) (map[string]map[string]string, error) {
	out, err := k.run(ctx, "", kstatPath, "-p", spec)
	if err != nil {
		return nil, err
	}
	return parseKstat(out), nil
}

func statUint(stats map[string]string, name string) (uint64, error) {
	v, ok := stats[name]
	if !ok {
		return 0, fmt.Errorf("kstat statistic %q not found", name)
	}
	return strconv.ParseUint(v, 10, 64)
}

// SystemPages returns the host's total and free memory pages from the
// unix:0:system_pages kstat.
func (k *Kstat) SystemPages(ctx context.Context) (total, free uint64, err error) {
	stats, err := k.lookup(ctx, "unix:0:system_pages")
	if err != nil {
		return 0, 0, err
	}
	pages, ok := stats["unix:0:system_pages"]
	if !ok {
		return 0, 0, fmt.Errorf("system_pages kstat not found")
	}
	if total, err = statUint(pages, "physmem"); err != nil {
		return 0, 0, err
	}
	if free, err = statUint(pages, "pagesfree"); err != nil {
		return 0, 0, err
	}
	return total, free, nil
}

// DefaultPsetCPUs returns the number of cpus in the default processor set,
// i.e. those not claimed by dedicated-cpu zone configurations.
func (k *Kstat) DefaultPsetCPUs(ctx context.Context) (uint64, error) {
	stats, err := k.lookup(ctx, "unix:0:pset")
	if err != nil {
		return 0, err
	}
	pset, ok := stats["unix:0:pset"]
	if !ok {
		return 0, fmt.Errorf("pset kstat not found")
	}
	return statUint(pset, "ncpus")
}

// ZoneCPUTime returns the total cpu time in nanoseconds consumed by a
// running zone. The per-cpu current values (zones_cpu:*:<zone>) are summed
// and added to the accumulated totals (zones:*:<zone>); if the accumulated
// kstat's generation number changes while reading, the cpu set changed
// underneath us and the read retries.
func (k *Kstat) ZoneCPUTime(ctx context.Context, zone string) (uint64, error) {
	accumSpec := "zones:*:" + zone
	cpuSpec := "zones_cpu:*:" + zone

	for attempt := 0; attempt < cpuTimeAttempts; attempt++ {
		accum, err := k.zoneAccum(ctx, accumSpec, zone)
		if err != nil {
			return 0, err
		}

		cpus, err := k.lookup(ctx, cpuSpec)
		if err != nil {
			return 0, err
		}
		var total uint64
		for _, stats := range cpus {
			for _, stat := range []string{"cpu_nsec_kernel_cur", "cpu_nsec_user_cur"} {
				if v, err := statUint(stats, stat); err == nil {
					total += v
				}
			}
		}

		accumAfter, err := k.zoneAccum(ctx, accumSpec, zone)
		if err != nil {
			return 0, err
		}

		genBefore, err1 := statUint(accum, "gen_num")
		genAfter, err2 := statUint(accumAfter, "gen_num")
		if err1 != nil || err2 != nil || genBefore != genAfter {
			continue
		}

		for _, stat := range []string{"cpu_nsec_kernel", "cpu_nsec_user"} {
			v, err := statUint(accum, stat)
			if err != nil {
				return 0, err
			}
			total += v
		}
		return total, nil
	}
	return 0, fmt.Errorf("cpu list for zone %q keeps changing", zone)
}

// zoneAccum fetches the zone's accumulated cpu kstat.
func (k *Kstat) zoneAccum(ctx context.Context, spec, zone string) (map[string]string, error) {
	stats, err := k.lookup(ctx, spec)
	if err != nil {
		return nil, err
	}
	for _, s := range stats {
		return s, nil
	}
	return nil, fmt.Errorf("no cpu accounting kstat for zone %q", zone)
}
