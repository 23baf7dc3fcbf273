package zones

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// System utility paths
const (
	zoneadmPath = "/usr/sbin/zoneadm"
	zonecfgPath = "/usr/sbin/zonecfg"

	// default location of zone console logs written by zoneadmd
	consoleLogDir = "/var/log/zones"
)

// runner executes a command and returns its stdout. Factored out so tests
// can intercept command execution.
type runner func(ctx context.Context, stdin string, name string, args ...string) ([]byte, error)

func run(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.WithFields(log.Fields{
		"command": name,
		"args":    args,
	}).Debug("executing zone utility")

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
		}
		return nil, fmt.Errorf("%s: %s", name, strings.ReplaceAll(msg, "\n", ": "))
	}
	return stdout.Bytes(), nil
}

// CLI is a Manager backed by the zonecfg(1M) and zoneadm(1M) utilities.
type CLI struct {
	run    runner
	logDir string
}

var _ Manager = (*CLI)(nil)

// NewCLI returns a Manager that shells out to the system zone utilities.
func NewCLI() *CLI {
	return &CLI{run: run, logDir: consoleLogDir}
}

// parseList parses `zoneadm list -pc` machine output:
// zoneid:zonename:state:zonepath:uuid:brand:ip-type
func parseList(out []byte) ([]*Zone, error) {
	var zs []*Zone
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) < 7 {
			return nil, fmt.Errorf("malformed zoneadm list line: %q", line)
		}
		state, err := ParseState(fields[2])
		if err != nil {
			return nil, err
		}
		zs = append(zs, &Zone{
			Name:   fields[1],
			State:  state,
			Path:   fields[3],
			UUID:   fields[4],
			Brand:  Brand(fields[5]),
			IPType: fields[6],
		})
	}
	return zs, nil
}

func (c *CLI) List(ctx context.Context) ([]*Zone, error) {
	out, err := c.run(ctx, "", zoneadmPath, "list", "-pc")
	if err != nil {
		return nil, err
	}
	zs, err := parseList(out)
	if err != nil {
		return nil, err
	}
	// the global zone is the host itself, not a managed instance
	managed := zs[:0]
	for _, z := range zs {
		if z.Name != "global" {
			managed = append(managed, z)
		}
	}
	return managed, nil
}

func (c *CLI) Get(ctx context.Context, name string) (*Zone, error) {
	out, err := c.run(ctx, "", zoneadmPath, "-z", name, "list", "-p")
	if err != nil {
		// zoneadm reports missing zones on stderr with a non-zero exit
		if strings.Contains(err.Error(), "No such zone") {
			return nil, ErrNotFound
		}
		return nil, err
	}
	zs, err := parseList(out)
	if err != nil {
		return nil, err
	}
	if len(zs) == 0 {
		return nil, ErrNotFound
	}
	return zs[0], nil
}

func (c *CLI) Configure(ctx context.Context, name string, cfg *Config) error {
	_, err := c.run(ctx, cfg.Script(), zonecfgPath, "-z", name, "-f", "-")
	return err
}

func (c *CLI) Reconfigure(ctx context.Context, name string, cfg *Config) error {
	if cfg.Empty() {
		return nil
	}
	_, err := c.run(ctx, cfg.Script(), zonecfgPath, "-z", name, "-f", "-")
	return err
}

func (c *CLI) Unconfigure(ctx context.Context, name string) error {
	_, err := c.run(ctx, "", zonecfgPath, "-z", name, "delete", "-F")
	return err
}

func (c *CLI) Install(ctx context.Context, name string, image string) error {
	args := []string{"-z", name, "install"}
	if image != "" {
		args = append(args, "-a", image, "-u")
	}
	_, err := c.run(ctx, "", zoneadmPath, args...)
	return err
}

func (c *CLI) Attach(ctx context.Context, name string) error {
	_, err := c.run(ctx, "", zoneadmPath, "-z", name, "attach", "-x", "initialize-hostdata")
	return err
}

func (c *CLI) Detach(ctx context.Context, name string) error {
	_, err := c.run(ctx, "", zoneadmPath, "-z", name, "detach")
	return err
}

func (c *CLI) Uninstall(ctx context.Context, name string) error {
	_, err := c.run(ctx, "", zoneadmPath, "-z", name, "uninstall", "-F")
	return err
}

func (c *CLI) Boot(ctx context.Context, name string, bootargs []string) error {
	args := append([]string{"-z", name, "boot"}, bootargs...)
	_, err := c.run(ctx, "", zoneadmPath, args...)
	return err
}

func (c *CLI) Shutdown(ctx context.Context, name string, bootargs []string) error {
	args := append([]string{"-z", name, "shutdown"}, bootargs...)
	_, err := c.run(ctx, "", zoneadmPath, args...)
	return err
}

func (c *CLI) Halt(ctx context.Context, name string) error {
	_, err := c.run(ctx, "", zoneadmPath, "-z", name, "halt")
	return err
}

func (c *CLI) Reboot(ctx context.Context, name string, bootargs []string) error {
	args := append([]string{"-z", name, "reboot"}, bootargs...)
	_, err := c.run(ctx, "", zoneadmPath, args...)
	return err
}

func (c *CLI) Suspend(ctx context.Context, name string) error {
	_, err := c.run(ctx, "", zoneadmPath, "-z", name, "suspend")
	return err
}

func (c *CLI) Migrate(ctx context.Context, name string, dest string, extra []string) error {
	args := []string{"-z", name, "migrate"}
	args = append(args, extra...)
	args = append(args, dest)
	_, err := c.run(ctx, "", zoneadmPath, args...)
	return err
}

// LookupProperty reads a single resource property via `zonecfg info`.
// Output is of the form:
//
//	capped-memory:
//		physical: 2G
func (c *CLI) LookupProperty(ctx context.Context, name, resource, prop string) (string, bool, error) {
	out, err := c.run(ctx, "", zonecfgPath, "-z", name, "info", resource)
	if err != nil {
		return "", false, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, prop+":") {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, prop+":"))
		if value == "" {
			return "", false, nil
		}
		return value, true, nil
	}
	return "", false, nil
}

// ConsoleOutput returns the tail of the zone's console log, capped at max
// bytes.
func (c *CLI) ConsoleOutput(ctx context.Context, name string, max int64) ([]byte, error) {
	path := filepath.Join(c.logDir, name+".console")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if size := info.Size(); size > max {
		if _, err := f.Seek(size-max, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(f)
}
