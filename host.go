package novasolaris

import (
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"time"

	"github.com/pborman/uuid"

	"github.com/guillermomolina/nova-solaris/pkg/kv"
	"github.com/guillermomolina/nova-solaris/pkg/virt"
)

var (
	// HostPath is the path in the config store
	HostPath = "nova-solaris/hosts/"
)

type (
	// Host is a physical machine running the compute daemon
	Host struct {
		context       *Context
		modifiedIndex uint64
		ID            string            `json:"id"`
		Hostname      string            `json:"hostname"`
		Metadata      map[string]string `json:"metadata"`
		IP            net.IP            `json:"ip"`
		// Resources is the host total as last reported by the driver
		Resources virt.Resource `json:"resources"`
		// AvailableResources is total minus what placed instances request
		AvailableResources virt.Resources `json:"available"`
	}

	// Hosts is an alias to a slice of *Host
	Hosts []*Host
)

// NewHost creates a new blank Host
func (c *Context) NewHost() *Host {
	return &Host{
		context:  c,
		ID:       uuid.New(),
		Metadata: make(map[string]string),
	}
}

// Host fetches a Host from the config store
func (c *Context) Host(id string) (*Host, error) {
	var err error
	id, err = canonicalizeUUID(id)
	if err != nil {
		return nil, err
	}
	h := &Host{
		context: c,
		ID:      id,
	}

	if err = h.Refresh(); err != nil {
		return nil, err
	}
	return h, nil
}

// key is a helper to generate the config store key
func (h *Host) key() string {
	return filepath.Join(HostPath, h.ID, "metadata")
}

// heartbeatKey is the expiring key that marks the host alive
func (h *Host) heartbeatKey() string {
	return filepath.Join(HostPath, h.ID, "heartbeat")
}

// Refresh reloads from the data store
func (h *Host) Refresh() error {
	value, err := h.context.kv.Get(h.key())
	if err != nil {
		return err
	}

	if err := json.Unmarshal(value.Data, &h); err != nil {
		return err
	}
	h.modifiedIndex = value.Index

	return nil
}

// Validate ensures a Host has reasonable data
func (h *Host) Validate() error {
	if h.ID == "" {
		return errors.New("host ID required")
	}
	if uuid.Parse(h.ID) == nil {
		return errors.New("host ID must be uuid")
	}
	if h.Hostname == "" {
		return errors.New("host hostname required")
	}
	return nil
}

// Save persists the Host to the data store
func (h *Host) Save() error {
	if err := h.Validate(); err != nil {
		return err
	}

	v, err := json.Marshal(h)
	if err != nil {
		return err
	}

	// if something changed, don't clobber
	index, err := h.context.kv.Update(h.key(), kv.Value{Data: v, Index: h.modifiedIndex})
	if err != nil {
		return err
	}

	h.modifiedIndex = index
	return nil
}

// Heartbeat sets an expiring liveness key. The compute daemon calls this
// periodically; missing it lets the key expire and the host go dead.
func (h *Host) Heartbeat(ttl time.Duration) error {
	return h.context.kv.TTL(h.heartbeatKey(), ttl)
}

// IsAlive returns true if the host has a current heartbeat
func (h *Host) IsAlive() bool {
	_, err := h.context.kv.Get(h.heartbeatKey())
	return err == nil
}

// UpdateResources stores the driver's latest host resource report
func (h *Host) UpdateResources(res *virt.Resource) error {
	h.Resources = *res
	h.AvailableResources = virt.Resources{
		MemoryMB: res.MemoryMB - res.MemoryMBUsed,
		DiskGB:   res.LocalGB - res.LocalGBUsed,
		VCPUs:    uint32(res.VCPUs - res.VCPUsUsed),
	}
	return h.Save()
}

// FirstHost will return the first host for which the function returns true
func (c *Context) FirstHost(f func(*Host) bool) (*Host, error) {
	keys, err := c.kv.Keys(HostPath)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		h, err := c.Host(filepath.Base(k))
		if err != nil {
			return nil, err
		}

		if f(h) {
			return h, nil
		}
	}
	return nil, nil
}

// ForEachHost will run f on each Host. It will stop iteration if f returns
// an error
func (c *Context) ForEachHost(f func(*Host) error) error {
	keys, err := c.kv.Keys(HostPath)
	if err != nil {
		return err
	}
	for _, k := range keys {
		h, err := c.Host(filepath.Base(k))
		if err != nil {
			return err
		}

		if err := f(h); err != nil {
			return err
		}
	}
	return nil
}
