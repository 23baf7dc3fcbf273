package novasolaris

import (
	"encoding/json"
	"errors"
	"path/filepath"

	"github.com/pborman/uuid"

	"github.com/guillermomolina/nova-solaris/pkg/kv"
	"github.com/guillermomolina/nova-solaris/pkg/virt"
	"github.com/guillermomolina/nova-solaris/pkg/zones"
)

var (
	// FlavorPath is the path in the config store
	FlavorPath = "nova-solaris/flavors/"
)

type (
	// Flavor defines the virtual resources for an instance. ExtraSpecs
	// carries zone configuration hints; zonecfg:brand selects the zone
	// brand.
	Flavor struct {
		context       *Context
		modifiedIndex uint64
		ID            string            `json:"id"`
		Name          string            `json:"name"`
		Image         string            `json:"image,omitempty"`
		ExtraSpecs    map[string]string `json:"extra_specs"`
		virt.Resources
	}

	// Flavors is an alias to a slice of *Flavor
	Flavors []*Flavor
)

// NewFlavor creates a blank Flavor
func (c *Context) NewFlavor() *Flavor {
	return &Flavor{
		context:    c,
		ID:         uuid.New(),
		ExtraSpecs: make(map[string]string),
	}
}

// Flavor fetches a single Flavor from the config store
func (c *Context) Flavor(id string) (*Flavor, error) {
	var err error
	id, err = canonicalizeUUID(id)
	if err != nil {
		return nil, err
	}
	f := &Flavor{
		context: c,
		ID:      id,
	}

	if err = f.Refresh(); err != nil {
		return nil, err
	}
	return f, nil
}

// key is a helper to generate the config store key
func (f *Flavor) key() string {
	return filepath.Join(FlavorPath, f.ID, "metadata")
}

// Refresh reloads from the data store
func (f *Flavor) Refresh() error {
	value, err := f.context.kv.Get(f.key())
	if err != nil {
		return err
	}

	if err := json.Unmarshal(value.Data, &f); err != nil {
		return err
	}
	f.modifiedIndex = value.Index

	return nil
}

// Brand returns the zone brand the flavor selects
func (f *Flavor) Brand() zones.Brand {
	if b, ok := f.ExtraSpecs["zonecfg:brand"]; ok {
		return zones.Brand(b)
	}
	return zones.BrandSolaris
}

// Validate ensures a Flavor has reasonable data
func (f *Flavor) Validate() error {
	if f.ID == "" {
		return errors.New("flavor ID required")
	}
	if uuid.Parse(f.ID) == nil {
		return errors.New("flavor ID must be uuid")
	}
	if f.Name == "" {
		return errors.New("flavor name required")
	}
	if f.MemoryMB == 0 {
		return errors.New("flavor memory required")
	}
	if f.VCPUs == 0 {
		return errors.New("flavor cpu required")
	}
	if !f.Brand().Valid() {
		return errors.New("flavor brand must be a supported zone brand")
	}
	return nil
}

// Save persists a Flavor. It will call Validate
func (f *Flavor) Save() error {
	if err := f.Validate(); err != nil {
		return err
	}

	v, err := json.Marshal(f)
	if err != nil {
		return err
	}

	// if something changed, don't clobber
	index, err := f.context.kv.Update(f.key(), kv.Value{Data: v, Index: f.modifiedIndex})
	if err != nil {
		return err
	}

	f.modifiedIndex = index
	return nil
}

// ForEachFlavor will run f on each Flavor. It will stop iteration if f
// returns an error
func (c *Context) ForEachFlavor(f func(*Flavor) error) error {
	keys, err := c.kv.Keys(FlavorPath)
	if err != nil {
		return err
	}
	for _, k := range keys {
		flavor, err := c.Flavor(filepath.Base(k))
		if err != nil {
			return err
		}

		if err := f(flavor); err != nil {
			return err
		}
	}
	return nil
}
