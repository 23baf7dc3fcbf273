package zones

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type StubTestSuite struct {
	suite.Suite
	stub *Stub
	ctx  context.Context
}

func TestStubTestSuite(t *testing.T) {
	suite.Run(t, new(StubTestSuite))
}

func (s *StubTestSuite) SetupTest() {
	s.stub = NewStub(0)
	s.ctx = context.Background()
}

func (s *StubTestSuite) configure(name string, brand Brand) {
	cfg, err := NewConfig(brand)
	s.Require().NoError(err)
	s.Require().NoError(s.stub.Configure(s.ctx, name, cfg))
}

func (s *StubTestSuite) TestConfigure() {
	s.configure("z1", BrandSolaris)

	z, err := s.stub.Get(s.ctx, "z1")
	s.Require().NoError(err)
	s.Equal(StateConfigured, z.State)
	s.Equal(BrandSolaris, z.Brand)

	s.Error(s.stub.Configure(s.ctx, "z1", NewTransaction()), "double configure should fail")

	s.configure("kz1", BrandSolarisKZ)
	z, err = s.stub.Get(s.ctx, "kz1")
	s.Require().NoError(err)
	s.Equal(BrandSolarisKZ, z.Brand)
}

func (s *StubTestSuite) TestLifecycle() {
	s.configure("z1", BrandSolaris)

	s.Error(s.stub.Boot(s.ctx, "z1", nil), "boot from configured should fail")

	s.NoError(s.stub.Install(s.ctx, "z1", ""))
	s.NoError(s.stub.Install(s.ctx, "z1", ""), "repeat install is a no-op")

	s.NoError(s.stub.Boot(s.ctx, "z1", nil))
	z, _ := s.stub.Get(s.ctx, "z1")
	s.Equal(StateRunning, z.State)

	s.NoError(s.stub.Reboot(s.ctx, "z1", nil))
	z, _ = s.stub.Get(s.ctx, "z1")
	s.Equal(StateRunning, z.State)

	s.NoError(s.stub.Shutdown(s.ctx, "z1", []string{"-r"}), "shutdown -r is a reboot")
	z, _ = s.stub.Get(s.ctx, "z1")
	s.Equal(StateRunning, z.State)

	s.NoError(s.stub.Shutdown(s.ctx, "z1", nil))
	z, _ = s.stub.Get(s.ctx, "z1")
	s.Equal(StateInstalled, z.State)

	s.NoError(s.stub.Uninstall(s.ctx, "z1"))
	s.NoError(s.stub.Unconfigure(s.ctx, "z1"))

	_, err := s.stub.Get(s.ctx, "z1")
	s.Equal(ErrNotFound, err)
}

func (s *StubTestSuite) TestMigrate() {
	s.configure("z1", BrandSolarisKZ)
	s.Require().NoError(s.stub.Install(s.ctx, "z1", ""))

	s.Error(s.stub.Migrate(s.ctx, "z1", "ssh://nova@dest", nil), "migrate requires running")

	s.Require().NoError(s.stub.Boot(s.ctx, "z1", nil))

	s.NoError(s.stub.Migrate(s.ctx, "z1", "ssh://nova@dest", []string{"-nq"}))
	_, err := s.stub.Get(s.ctx, "z1")
	s.NoError(err, "dry run should leave the zone")

	s.NoError(s.stub.Migrate(s.ctx, "z1", "ssh://nova@dest", nil))
	_, err = s.stub.Get(s.ctx, "z1")
	s.Equal(ErrNotFound, err, "migrated zone leaves the host")
}

func (s *StubTestSuite) TestList() {
	s.configure("z1", BrandSolaris)
	s.configure("z2", BrandSolaris)

	zs, err := s.stub.List(s.ctx)
	s.NoError(err)
	s.Len(zs, 2)
}

func (s *StubTestSuite) TestProperties() {
	s.configure("z1", BrandSolaris)
	s.stub.SetProperty("z1", "capped-memory", "physical", "2G")

	v, ok, err := s.stub.LookupProperty(s.ctx, "z1", "capped-memory", "physical")
	s.NoError(err)
	s.True(ok)
	s.Equal("2G", v)

	_, ok, err = s.stub.LookupProperty(s.ctx, "z1", "capped-memory", "swap")
	s.NoError(err)
	s.False(ok)

	_, _, err = s.stub.LookupProperty(s.ctx, "gone", "capped-memory", "physical")
	s.Equal(ErrNotFound, err)
}

func (s *StubTestSuite) TestConsoleOutput() {
	s.configure("z1", BrandSolaris)
	s.stub.SetConsole("z1", []byte("0123456789"))

	out, err := s.stub.ConsoleOutput(s.ctx, "z1", 4)
	s.NoError(err)
	s.Equal("6789", string(out))
}
