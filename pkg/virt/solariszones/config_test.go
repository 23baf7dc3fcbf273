package solariszones

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/guillermomolina/nova-solaris/pkg/virt"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) TestDefaultConfig() {
	cfg := DefaultConfig()
	s.Equal("/var/share/nova/instances", cfg.InstancesPath)
	s.Equal("/var/share/zones/SYSsuspend", cfg.ZonesSuspendPath)
	s.True(cfg.BootOptions)
	s.Empty(cfg.LiveMigrationCipher)
}

func (s *ConfigTestSuite) TestLoadConfig() {
	cfg, err := LoadConfig("")
	s.NoError(err)
	s.Equal(DefaultConfig(), cfg)

	path := filepath.Join(s.T().TempDir(), "driver.json")
	data := `{"live_migration_cipher": "aes128-ctr", "solariszones_boot_options": false}`
	s.Require().NoError(os.WriteFile(path, []byte(data), 0644))

	cfg, err = LoadConfig(path)
	s.Require().NoError(err)
	s.Equal("aes128-ctr", cfg.LiveMigrationCipher)
	s.False(cfg.BootOptions)
	// unset values keep their defaults
	s.Equal("/var/share/nova/instances", cfg.InstancesPath)

	_, err = LoadConfig(filepath.Join(s.T().TempDir(), "missing.json"))
	s.Error(err)
}

func (s *ConfigTestSuite) TestListOpts() {
	groups := ListOpts()
	s.Require().Len(groups, 1)
	s.Equal("solariszones", groups[0].Name)
	s.NotEmpty(groups[0].Opts)

	names := make(map[string]bool)
	for _, opt := range groups[0].Opts {
		names[opt.Name] = true
		s.NotEmpty(opt.Help)
	}
	s.True(names["instances_path"])
	s.True(names["live_migration_cipher"])
}

func (s *ConfigTestSuite) TestRegistered() {
	s.Contains(virt.Drivers(), DriverName)

	driver, err := virt.New(DriverName, virt.Options{NodeName: "testnode"})
	s.NoError(err)
	s.NotNil(driver)
}
