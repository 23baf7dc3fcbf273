package zones

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

// Stub is an in-memory Manager for testing. Operations go through the same
// lifecycle guard as real zones, and a failure percentage can be set to
// simulate flaky hosts.
type Stub struct {
	mu          sync.Mutex
	zones       map[string]*Zone
	props       map[string]map[string]string // name -> "resource/prop" -> value
	console     map[string][]byte
	rand        *rand.Rand
	failPercent int
}

var _ Manager = (*Stub)(nil)

// NewStub creates a stub manager that fails a given percentage of
// operations at random.
func NewStub(failPercent int) *Stub {
	return &Stub{
		zones:       map[string]*Zone{},
		props:       map[string]map[string]string{},
		console:     map[string][]byte{},
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		failPercent: failPercent,
	}
}

func (s *Stub) randomError() error {
	if s.failPercent > 0 && s.rand.Intn(100) < s.failPercent {
		return errors.New("random error")
	}
	return nil
}

func (s *Stub) get(name string) (*Zone, error) {
	z, ok := s.zones[name]
	if !ok {
		return nil, ErrNotFound
	}
	return z, nil
}

// apply runs op's guarded transition on the named zone.
func (s *Stub) apply(name string, op Op) error {
	if err := s.randomError(); err != nil {
		return err
	}
	z, err := s.get(name)
	if err != nil {
		return err
	}
	if err := Guard(op, z.State); err != nil {
		return err
	}
	if op.Satisfied(z.State) {
		return nil
	}
	if op == OpUnconfigure {
		delete(s.zones, name)
		delete(s.props, name)
		return nil
	}
	z.State = op.Target()
	return nil
}

func (s *Stub) Get(_ context.Context, name string) (*Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.randomError(); err != nil {
		return nil, err
	}
	z, err := s.get(name)
	if err != nil {
		return nil, err
	}
	cp := *z
	return &cp, nil
}

func (s *Stub) List(_ context.Context) ([]*Zone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.randomError(); err != nil {
		return nil, err
	}
	zs := make([]*Zone, 0, len(s.zones))
	for _, z := range s.zones {
		cp := *z
		zs = append(zs, &cp)
	}
	return zs, nil
}

func (s *Stub) Configure(_ context.Context, name string, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.randomError(); err != nil {
		return err
	}
	if _, ok := s.zones[name]; ok {
		return errors.New("zone already configured")
	}
	brand := BrandSolaris
	if len(cfg.lines) > 0 && cfg.lines[0] == "create -t SYSsolaris-kz" {
		brand = BrandSolarisKZ
	}
	s.zones[name] = &Zone{
		Name:  name,
		Brand: brand,
		State: StateConfigured,
		Path:  "/system/zones/" + name,
	}
	return nil
}

func (s *Stub) Reconfigure(_ context.Context, name string, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.randomError(); err != nil {
		return err
	}
	_, err := s.get(name)
	return err
}

func (s *Stub) Unconfigure(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(name, OpUnconfigure)
}

func (s *Stub) Install(_ context.Context, name string, image string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(name, OpInstall)
}

func (s *Stub) Attach(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(name, OpAttach)
}

func (s *Stub) Detach(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(name, OpDetach)
}

func (s *Stub) Uninstall(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(name, OpUninstall)
}

func (s *Stub) Boot(_ context.Context, name string, bootargs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(name, OpBoot)
}

func (s *Stub) Shutdown(_ context.Context, name string, bootargs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// a soft reboot lands back in running
	for _, arg := range bootargs {
		if arg == "-r" {
			return s.apply(name, OpReboot)
		}
	}
	return s.apply(name, OpShutdown)
}

func (s *Stub) Halt(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(name, OpHalt)
}

func (s *Stub) Reboot(_ context.Context, name string, bootargs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(name, OpReboot)
}

func (s *Stub) Suspend(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(name, OpSuspend)
}

func (s *Stub) Migrate(_ context.Context, name string, dest string, extra []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.randomError(); err != nil {
		return err
	}
	z, err := s.get(name)
	if err != nil {
		return err
	}
	if err := Guard(OpMigrate, z.State); err != nil {
		return err
	}
	for _, arg := range extra {
		if arg == "-nq" {
			// dry run, leave the zone alone
			return nil
		}
	}
	delete(s.zones, name)
	delete(s.props, name)
	return nil
}

// SetProperty seeds a resource property for LookupProperty.
func (s *Stub) SetProperty(name, resource, prop, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.props[name]; !ok {
		s.props[name] = map[string]string{}
	}
	s.props[name][resource+"/"+prop] = value
}

func (s *Stub) LookupProperty(_ context.Context, name, resource, prop string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.randomError(); err != nil {
		return "", false, err
	}
	if _, err := s.get(name); err != nil {
		return "", false, err
	}
	v, ok := s.props[name][resource+"/"+prop]
	return v, ok, nil
}

// SetConsole seeds console log content.
func (s *Stub) SetConsole(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.console[name] = data
}

func (s *Stub) ConsoleOutput(_ context.Context, name string, max int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.console[name]
	if int64(len(data)) > max {
		data = data[int64(len(data))-max:]
	}
	return data, nil
}
