package novasolaris

import (
	"path/filepath"
	"strconv"
)

// Used to get and set arbitrary config variables

var (
	ConfigPath = "nova-solaris/config/"
)

// GetConfig fetches a cluster config value
func (c *Context) GetConfig(key string) (string, error) {
	value, err := c.kv.Get(filepath.Join(ConfigPath, key))
	if err != nil {
		return "", err
	}

	return string(value.Data), nil
}

// SetConfig stores a cluster config value
func (c *Context) SetConfig(key, val string) error {
	return c.kv.Set(filepath.Join(ConfigPath, key), val)
}

// ToBool parses a config value as a boolean, false on parse failure
func ToBool(val string) bool {
	b, err := strconv.ParseBool(val)
	return err == nil && b
}
