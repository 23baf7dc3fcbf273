package novasolaris

import (
	"errors"

	"github.com/pborman/uuid"

	"github.com/guillermomolina/nova-solaris/pkg/kv"
)

// Context carries around data/structs needed for operations
type Context struct {
	kv kv.KV
}

// NewContext creates a new Context from a kv store
func NewContext(store kv.KV) *Context {
	return &Context{
		kv: store,
	}
}

// IsKeyNotFound is a helper to determine if the error is a key not found
// error from the underlying kv store
func (c *Context) IsKeyNotFound(err error) bool {
	return c.kv.IsKeyNotFound(err)
}

// canonicalizeUUID is a helper to validate and normalize ids
func canonicalizeUUID(id string) (string, error) {
	u := uuid.Parse(id)
	if u == nil {
		return "", errors.New("invalid UUID: " + id)
	}
	return u.String(), nil
}
