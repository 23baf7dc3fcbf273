package zones

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
)

// cliRunner records the last invocation and returns canned results
type cliRunner struct {
	out   []byte
	err   error
	stdin string
	name  string
	args  []string
}

func (c *cliRunner) run(_ context.Context, stdin, name string, args ...string) ([]byte, error) {
	c.stdin = stdin
	c.name = name
	c.args = args
	return c.out, c.err
}

type CLITestSuite struct {
	suite.Suite
	runner *cliRunner
	cli    *CLI
}

func TestCLITestSuite(t *testing.T) {
	suite.Run(t, new(CLITestSuite))
}

func (s *CLITestSuite) SetupTest() {
	s.runner = &cliRunner{}
	s.cli = &CLI{run: s.runner.run, logDir: s.T().TempDir()}
}

func (s *CLITestSuite) TestParseList() {
	out := []byte("0:global:running:/::solaris:shared\n" +
		"1:z1:running:/system/zones/z1:9f6161fa-6b6c-4d64-a2a3-2a8e2aefa678:solaris:excl\n" +
		"-:z2:installed:/system/zones/z2:8d2e5b4c-aaaa-bbbb-cccc-2a8e2aefa678:solaris-kz:excl\n")
	zs, err := parseList(out)
	s.Require().NoError(err)
	s.Require().Len(zs, 3)

	s.Equal("z1", zs[1].Name)
	s.Equal(StateRunning, zs[1].State)
	s.Equal("/system/zones/z1", zs[1].Path)
	s.Equal(BrandSolaris, zs[1].Brand)
	s.Equal("excl", zs[1].IPType)

	s.Equal(BrandSolarisKZ, zs[2].Brand)
	s.Equal(StateInstalled, zs[2].State)

	_, err = parseList([]byte("garbage line"))
	s.Error(err)

	_, err = parseList([]byte("1:z1:levitating:/z1:uuid:solaris:excl"))
	s.Error(err)
}

func (s *CLITestSuite) TestListSkipsGlobal() {
	s.runner.out = []byte("0:global:running:/::solaris:shared\n" +
		"1:z1:running:/system/zones/z1::solaris:excl\n")

	zs, err := s.cli.List(context.Background())
	s.Require().NoError(err)
	s.Require().Len(zs, 1)
	s.Equal("z1", zs[0].Name)
	s.Equal([]string{"list", "-pc"}, s.runner.args)
}

func (s *CLITestSuite) TestGet() {
	s.runner.out = []byte("1:z1:running:/system/zones/z1::solaris:excl\n")

	z, err := s.cli.Get(context.Background(), "z1")
	s.Require().NoError(err)
	s.Equal("z1", z.Name)

	s.runner.out = nil
	s.runner.err = errors.New("zoneadm: No such zone configured")
	_, err = s.cli.Get(context.Background(), "gone")
	s.Equal(ErrNotFound, err)
}

func (s *CLITestSuite) TestConfigure() {
	cfg, err := NewConfig(BrandSolaris)
	s.Require().NoError(err)
	cfg.SetGlobal("zonepath", "/system/zones/z1")

	s.NoError(s.cli.Configure(context.Background(), "z1", cfg))
	s.Equal(cfg.Script(), s.runner.stdin)
	s.Equal([]string{"-z", "z1", "-f", "-"}, s.runner.args)
}

func (s *CLITestSuite) TestReconfigureEmpty() {
	s.NoError(s.cli.Reconfigure(context.Background(), "z1", NewTransaction()))
	s.Empty(s.runner.args, "empty transaction should not invoke zonecfg")
}

func (s *CLITestSuite) TestInstall() {
	s.NoError(s.cli.Install(context.Background(), "z1", ""))
	s.Equal([]string{"-z", "z1", "install"}, s.runner.args)

	s.NoError(s.cli.Install(context.Background(), "z1", "/images/sol.uar"))
	s.Equal([]string{"-z", "z1", "install", "-a", "/images/sol.uar", "-u"}, s.runner.args)
}

func (s *CLITestSuite) TestBootArgs() {
	s.NoError(s.cli.Boot(context.Background(), "z1", []string{"--", "-m", "verbose"}))
	s.Equal([]string{"-z", "z1", "boot", "--", "-m", "verbose"}, s.runner.args)

	s.NoError(s.cli.Shutdown(context.Background(), "z1", []string{"-r"}))
	s.Equal([]string{"-z", "z1", "shutdown", "-r"}, s.runner.args)
}

func (s *CLITestSuite) TestMigrate() {
	s.NoError(s.cli.Migrate(context.Background(), "z1", "ssh://nova@dest", []string{"-c", "aes128-ctr"}))
	s.Equal([]string{"-z", "z1", "migrate", "-c", "aes128-ctr", "ssh://nova@dest"}, s.runner.args)
}

func (s *CLITestSuite) TestLookupProperty() {
	s.runner.out = []byte("capped-memory:\n\tphysical: 2G\n\t[swap: 4G]\n")

	v, ok, err := s.cli.LookupProperty(context.Background(), "z1", "capped-memory", "physical")
	s.NoError(err)
	s.True(ok)
	s.Equal("2G", v)

	_, ok, err = s.cli.LookupProperty(context.Background(), "z1", "capped-memory", "missing")
	s.NoError(err)
	s.False(ok)
}

func (s *CLITestSuite) TestConsoleOutput() {
	path := filepath.Join(s.cli.logDir, "z1.console")
	s.Require().NoError(os.WriteFile(path, []byte("0123456789"), 0644))

	out, err := s.cli.ConsoleOutput(context.Background(), "z1", 4)
	s.NoError(err)
	s.Equal("6789", string(out), "should return the tail capped at max")

	out, err = s.cli.ConsoleOutput(context.Background(), "z1", 100)
	s.NoError(err)
	s.Equal("0123456789", string(out))

	out, err = s.cli.ConsoleOutput(context.Background(), "nolog", 100)
	s.NoError(err)
	s.Nil(out, "missing console log is not an error")
}
