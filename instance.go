package novasolaris

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"

	"github.com/pborman/uuid"

	"github.com/guillermomolina/nova-solaris/pkg/kv"
	"github.com/guillermomolina/nova-solaris/pkg/virt"
	"github.com/guillermomolina/nova-solaris/pkg/zones"
)

var (
	// InstancePath is the path in the config store
	InstancePath = "nova-solaris/instances/"
)

// Desired power states for an instance
const (
	PowerDesiredRunning  = "running"
	PowerDesiredShutdown = "shutdown"
)

type (
	// Instance is a virtual machine realized as a zone
	Instance struct {
		context       *Context
		modifiedIndex uint64
		ID            string            `json:"id"`
		Name          string            `json:"name"` // zone name on the host
		Metadata      map[string]string `json:"metadata"`
		FlavorID      string            `json:"flavor"`
		HostID        string            `json:"host"` // may be blank if not placed yet
		ImagePath     string            `json:"image_path,omitempty"`
		DesiredPower  string            `json:"desired_power"`
	}

	// Instances is an alias to a slice of *Instance
	Instances []*Instance
)

// NewInstance creates a new blank Instance
func (c *Context) NewInstance() *Instance {
	id := uuid.New()
	return &Instance{
		context:      c,
		ID:           id,
		Name:         "instance-" + strings.SplitN(id, "-", 2)[0],
		Metadata:     make(map[string]string),
		DesiredPower: PowerDesiredRunning,
	}
}

// Instance fetches an Instance from the config store
func (c *Context) Instance(id string) (*Instance, error) {
	var err error
	id, err = canonicalizeUUID(id)
	if err != nil {
		return nil, err
	}
	i := &Instance{
		context: c,
		ID:      id,
	}

	if err = i.Refresh(); err != nil {
		return nil, err
	}
	return i, nil
}

// key is a helper to generate the config store key
func (i *Instance) key() string {
	return filepath.Join(InstancePath, i.ID, "metadata")
}

// Refresh reloads from the data store
func (i *Instance) Refresh() error {
	value, err := i.context.kv.Get(i.key())
	if err != nil {
		return err
	}

	if err := json.Unmarshal(value.Data, &i); err != nil {
		return err
	}
	i.modifiedIndex = value.Index

	return nil
}

// Validate ensures an Instance has reasonable data
func (i *Instance) Validate() error {
	if i.ID == "" {
		return errors.New("instance ID required")
	}
	if uuid.Parse(i.ID) == nil {
		return errors.New("instance ID must be uuid")
	}
	if i.Name == "" {
		return errors.New("instance name required")
	}
	if i.FlavorID == "" {
		return errors.New("instance flavor required")
	}
	if uuid.Parse(i.FlavorID) == nil {
		return errors.New("instance flavor must be uuid")
	}
	switch i.DesiredPower {
	case PowerDesiredRunning, PowerDesiredShutdown:
	default:
		return errors.New("instance desired power must be running or shutdown")
	}
	return nil
}

// Save persists the Instance to the data store
func (i *Instance) Save() error {
	if err := i.Validate(); err != nil {
		return err
	}

	v, err := json.Marshal(i)
	if err != nil {
		return err
	}

	// if something changed, don't clobber
	index, err := i.context.kv.Update(i.key(), kv.Value{Data: v, Index: i.modifiedIndex})
	if err != nil {
		return err
	}

	i.modifiedIndex = index
	return nil
}

// Destroy removes the Instance from the data store
func (i *Instance) Destroy() error {
	if i.ID == "" {
		return errors.New("instance ID required")
	}
	return i.context.kv.Delete(filepath.Join(InstancePath, i.ID), true)
}

// Spec builds the driver instance spec, pulling resources and extra specs
// from the instance's flavor
func (i *Instance) Spec() (virt.InstanceSpec, error) {
	flavor, err := i.context.Flavor(i.FlavorID)
	if err != nil {
		return virt.InstanceSpec{}, err
	}

	brand := zones.BrandSolaris
	if b, ok := flavor.ExtraSpecs["zonecfg:brand"]; ok {
		brand = zones.Brand(b)
	}

	return virt.InstanceSpec{
		Name:       i.Name,
		UUID:       i.ID,
		Brand:      brand,
		Resources:  flavor.Resources,
		ExtraSpecs: flavor.ExtraSpecs,
		ImagePath:  i.ImagePath,
		Metadata:   i.Metadata,
	}, nil
}

// FirstInstance will return the first instance for which the function
// returns true
func (c *Context) FirstInstance(f func(*Instance) bool) (*Instance, error) {
	keys, err := c.kv.Keys(InstancePath)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		i, err := c.Instance(filepath.Base(k))
		if err != nil {
			return nil, err
		}

		if f(i) {
			return i, nil
		}
	}
	return nil, nil
}

// ForEachInstance will run f on each Instance. It will stop iteration if f
// returns an error
func (c *Context) ForEachInstance(f func(*Instance) error) error {
	keys, err := c.kv.Keys(InstancePath)
	if err != nil {
		return err
	}
	for _, k := range keys {
		i, err := c.Instance(filepath.Base(k))
		if err != nil {
			return err
		}

		if err := f(i); err != nil {
			return err
		}
	}
	return nil
}
