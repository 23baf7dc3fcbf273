package virt_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/guillermomolina/nova-solaris/pkg/virt"
)

type fakeDriver struct {
	virt.Driver
	node string
}

func (f *fakeDriver) InitHost(context.Context, string) error { return nil }

type VirtTestSuite struct {
	suite.Suite
}

func TestVirtTestSuite(t *testing.T) {
	suite.Run(t, new(VirtTestSuite))
}

func (s *VirtTestSuite) TestRegistry() {
	virt.Register("fake", func(opts virt.Options) (virt.Driver, error) {
		return &fakeDriver{node: opts.NodeName}, nil
	})

	s.Contains(virt.Drivers(), "fake")

	driver, err := virt.New("fake", virt.Options{NodeName: "testnode"})
	s.Require().NoError(err)
	s.Equal("testnode", driver.(*fakeDriver).node)

	_, err = virt.New("no-such-driver", virt.Options{})
	s.Error(err)

	s.Panics(func() {
		virt.Register("fake", func(virt.Options) (virt.Driver, error) { return nil, nil })
	}, "duplicate registration should panic")
}

func (s *VirtTestSuite) TestErrInstanceNotFound() {
	err := virt.ErrInstanceNotFound{Name: "z1"}
	s.Contains(err.Error(), "z1")
}
