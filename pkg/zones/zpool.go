package zones

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const zpoolPath = "/usr/sbin/zpool"

// Pool reads capacity information for a ZFS pool, used for host disk
// resource reporting.
type Pool struct {
	run  runner
	name string
}

// NewPool returns a Pool for the named zpool.
func NewPool(name string) *Pool {
	return &Pool{run: run, name: name}
}

// Stats returns the pool's total and free bytes from
// `zpool list -Hpo size,free`.
func (p *Pool) Stats(ctx context.Context) (size, free uint64, err error) {
	out, err := p.run(ctx, "", zpoolPath, "list", "-Hpo", "size,free", p.name)
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("unexpected zpool list output: %q", string(out))
	}
	if size, err = strconv.ParseUint(fields[0], 10, 64); err != nil {
		return 0, 0, err
	}
	if free, err = strconv.ParseUint(fields[1], 10, 64); err != nil {
		return 0, 0, err
	}
	return size, free, nil
}
