package zones

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a zone does not exist on the host.
var ErrNotFound = errors.New("zone not found")

// Manager performs lifecycle operations on the host's zones. The CLI
// implementation shells out to the system utilities; Stub is an in-memory
// implementation for tests.
type Manager interface {
	// Get returns the named zone or ErrNotFound.
	Get(ctx context.Context, name string) (*Zone, error)
	// List returns all zones on the host, including unbooted ones.
	List(ctx context.Context) ([]*Zone, error)

	// Configure creates a new zone from the config script.
	Configure(ctx context.Context, name string, cfg *Config) error
	// Reconfigure applies a config transaction to an existing zone.
	Reconfigure(ctx context.Context, name string, cfg *Config) error
	// Unconfigure deletes the zone's configuration.
	Unconfigure(ctx context.Context, name string) error

	// Install installs the zone, optionally from an archive image.
	Install(ctx context.Context, name string, image string) error
	// Attach attaches a zone whose storage already holds a root image.
	Attach(ctx context.Context, name string) error
	Detach(ctx context.Context, name string) error
	Uninstall(ctx context.Context, name string) error

	Boot(ctx context.Context, name string, bootargs []string) error
	// Shutdown performs an orderly shutdown; bootargs may carry -r for a
	// soft reboot.
	Shutdown(ctx context.Context, name string, bootargs []string) error
	Halt(ctx context.Context, name string) error
	Reboot(ctx context.Context, name string, bootargs []string) error
	Suspend(ctx context.Context, name string) error

	// Migrate live migrates the zone to dest, an ssh:// URI. extra carries
	// options such as the cipher or a dry-run flag.
	Migrate(ctx context.Context, name string, dest string, extra []string) error

	// LookupProperty returns a resource property value from the zone's
	// configuration. ok is false when the resource or property is absent.
	LookupProperty(ctx context.Context, name, resource, prop string) (value string, ok bool, err error)

	// ConsoleOutput returns up to max trailing bytes of the zone console log.
	ConsoleOutput(ctx context.Context, name string, max int64) ([]byte, error)
}
