// Package consul provides the consul backend for pkg/kv.
package consul

import (
	"errors"
	"net/url"
	"time"

	consul "github.com/hashicorp/consul/api"

	"github.com/guillermomolina/nova-solaris/pkg/kv"
)

var errKeyNotFound = errors.New("key not found")

func init() {
	kv.Register("consul", New)
}

type ckv struct {
	c      *consul.KV
	client *consul.Client
}

// New connects to a consul agent. addr may be empty, in which case the
// default address (possibly from the environment) is used. The consul
// scheme is synonymous with http.
func New(addr string) (kv.KV, error) {
	config := consul.DefaultConfig()
	if addr != "" {
		u, err := url.Parse(addr)
		if err != nil {
			return nil, err
		}
		if u.Scheme != "consul" {
			config.Scheme = u.Scheme
		}
		config.Address = u.Host
	}

	client, err := consul.NewClient(config)
	if err != nil {
		return nil, err
	}

	return &ckv{c: client.KV(), client: client}, nil
}

func (c *ckv) Delete(key string, recurse bool) error {
	var err error
	if recurse {
		_, err = c.c.DeleteTree(key, nil)
	} else {
		_, err = c.c.Delete(key, nil)
	}
	return err
}

func (c *ckv) Get(key string) (kv.Value, error) {
	kvp, _, err := c.c.Get(key, nil)
	if err != nil {
		return kv.Value{}, err
	}
	if kvp == nil || kvp.Value == nil {
		return kv.Value{}, errKeyNotFound
	}
	return kv.Value{Data: kvp.Value, Index: kvp.ModifyIndex}, nil
}

func (c *ckv) GetAll(prefix string) (map[string]kv.Value, error) {
	pairs, _, err := c.c.List(prefix, nil)
	if err != nil {
		return nil, err
	}
	many := make(map[string]kv.Value, len(pairs))
	for _, kvp := range pairs {
		many[kvp.Key] = kv.Value{Data: kvp.Value, Index: kvp.ModifyIndex}
	}
	return many, nil
}

func (c *ckv) Keys(key string) ([]string, error) {
	keys, _, err := c.c.Keys(key, "/", nil)
	return keys, err
}

func (c *ckv) Set(key, value string) error {
	_, err := c.c.Put(&consul.KVPair{Key: key, Value: []byte(value)}, nil)
	return err
}

func (c *ckv) cas(key string, value kv.Value) error {
	kvp := consul.KVPair{
		Key:         key,
		Value:       value.Data,
		ModifyIndex: value.Index,
	}

	valid, _, err := c.c.CAS(&kvp, nil)
	if err != nil {
		return err
	}
	if !valid {
		return errors.New("CAS failed")
	}
	return nil
}

// Update is racy with other modifiers since the consul KV API does not
// return the new modified index; a Get follows the CAS.
func (c *ckv) Update(key string, value kv.Value) (uint64, error) {
	if err := c.cas(key, value); err != nil {
		return 0, err
	}

	v, err := c.Get(key)
	return v.Index, err
}

func (c *ckv) Remove(key string, index uint64) error {
	ok, _, err := c.c.DeleteCAS(&consul.KVPair{Key: key, ModifyIndex: index}, nil)
	if err != nil {
		return err
	}
	if !ok {
		err = errors.New("failed to delete atomically")
	}
	return err
}

func (c *ckv) IsKeyNotFound(err error) bool {
	return err == errKeyNotFound
}

// Watch polls the prefix and synthesizes create/update/delete events by
// diffing modify indexes between rounds.
func (c *ckv) Watch(prefix string, index uint64, stop chan struct{}) (chan kv.Event, chan error, error) {
	events := make(chan kv.Event)
	errs := make(chan error)

	go func() {
		saved := map[string]uint64{}
		opts := &consul.QueryOptions{WaitIndex: index}
		for {
			select {
			case <-stop:
				return
			default:
			}

			pairs, meta, err := c.c.List(prefix, opts)
			if err != nil {
				errs <- err
				return
			}
			opts.WaitIndex = meta.LastIndex

			current := make(map[string]uint64, len(pairs))
			for _, kvp := range pairs {
				current[kvp.Key] = kvp.ModifyIndex

				event := kv.Event{
					Key: kvp.Key,
					Value: kv.Value{
						Data:  kvp.Value,
						Index: kvp.ModifyIndex,
					},
				}

				old, ok := saved[kvp.Key]
				switch {
				case !ok:
					event.Type = kv.Create
				case old != kvp.ModifyIndex:
					event.Type = kv.Update
				default:
					continue
				}
				events <- event
			}

			for key, idx := range saved {
				if _, ok := current[key]; ok {
					continue
				}
				events <- kv.Event{
					Key:   key,
					Type:  kv.Delete,
					Value: kv.Value{Index: idx},
				}
			}
			saved = current
		}
	}()

	return events, errs, nil
}

func (c *ckv) TTL(key string, ttl time.Duration) error {
	session := c.client.Session()
	id, _, err := session.Create(&consul.SessionEntry{
		Behavior: consul.SessionBehaviorDelete,
		TTL:      ttl.String(),
	}, nil)
	if err != nil {
		return err
	}

	kvp := &consul.KVPair{
		Key:     key,
		Value:   []byte(time.Now().String()),
		Session: id,
	}
	ok, _, err := c.c.Acquire(kvp, nil)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("failed to acquire ttl key")
	}
	return nil
}
