package zones

import (
	"fmt"
	"strings"
)

// Property is a single zonecfg resource property.
type Property struct {
	Name  string
	Value string
}

// Config accumulates zonecfg(1M) operations and renders them as a single
// command script, committed as one transaction. It covers the same
// operations the zone configuration requires at create and reconfigure
// time: setting global properties, adding, selecting, and removing
// resources, and clearing property values.
type Config struct {
	lines []string
}

// NewConfig starts a configuration script that creates a zone from the
// brand's template.
func NewConfig(brand Brand) (*Config, error) {
	template, err := brand.Template()
	if err != nil {
		return nil, err
	}
	c := &Config{}
	c.lines = append(c.lines, "create -t "+template)
	return c, nil
}

// NewTransaction starts an empty script for reconfiguring an existing zone.
func NewTransaction() *Config {
	return &Config{}
}

// quote wraps values containing whitespace or shell-significant characters.
func quote(v string) string {
	if strings.ContainsAny(v, " \t;\"'") {
		return fmt.Sprintf("%q", v)
	}
	return v
}

// SetGlobal sets a global scope property, e.g. brand or bootargs.
func (c *Config) SetGlobal(prop, value string) *Config {
	c.lines = append(c.lines, fmt.Sprintf("set %s=%s", prop, quote(value)))
	return c
}

// AddResource adds a resource with the given properties. Property order is
// preserved so scripts are deterministic.
func (c *Config) AddResource(resource string, props ...Property) *Config {
	c.lines = append(c.lines, "add "+resource)
	for _, p := range props {
		c.lines = append(c.lines, fmt.Sprintf("set %s=%s", p.Name, quote(p.Value)))
	}
	c.lines = append(c.lines, "end")
	return c
}

// SelectResource updates properties on an existing resource.
func (c *Config) SelectResource(resource string, match Property, props ...Property) *Config {
	c.lines = append(c.lines, fmt.Sprintf("select %s %s=%s", resource, match.Name, quote(match.Value)))
	for _, p := range props {
		c.lines = append(c.lines, fmt.Sprintf("set %s=%s", p.Name, quote(p.Value)))
	}
	c.lines = append(c.lines, "end")
	return c
}

// RemoveResource removes all instances of a resource.
func (c *Config) RemoveResource(resource string) *Config {
	c.lines = append(c.lines, "remove -F "+resource)
	return c
}

// RemoveResourceWhere removes resource instances whose property matches.
func (c *Config) RemoveResourceWhere(resource string, match Property) *Config {
	c.lines = append(c.lines, fmt.Sprintf("remove -F %s %s=%s", resource, match.Name, quote(match.Value)))
	return c
}

// ClearProperty clears a global scope property value.
func (c *Config) ClearProperty(prop string) *Config {
	c.lines = append(c.lines, "clear "+prop)
	return c
}

// Empty reports whether the script contains no operations.
func (c *Config) Empty() bool {
	return len(c.lines) == 0
}

// Script renders the accumulated operations followed by commit, suitable
// for zonecfg -f. zonecfg aborts the whole script on the first error, so
// the transaction either fully commits or leaves the zone untouched.
func (c *Config) Script() string {
	if len(c.lines) == 0 {
		return ""
	}
	all := make([]string, 0, len(c.lines)+2)
	all = append(all, c.lines...)
	all = append(all, "commit", "exit")
	return strings.Join(all, "\n") + "\n"
}
