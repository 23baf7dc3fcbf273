package novasolaris_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/guillermomolina/nova-solaris"
	"github.com/guillermomolina/nova-solaris/internal/tests/common"
)

type ConfigTestSuite struct {
	common.Suite
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) TestConfig() {
	s.NoError(s.Context.SetConfig("foo", "bar"))

	val, err := s.Context.GetConfig("foo")
	s.NoError(err)
	s.Equal("bar", val)

	_, err = s.Context.GetConfig("does-not-exist")
	s.Error(err)
	s.True(s.Context.IsKeyNotFound(err))
}

func (s *ConfigTestSuite) TestToBool() {
	s.True(novasolaris.ToBool("true"))
	s.True(novasolaris.ToBool("1"))
	s.False(novasolaris.ToBool("false"))
	s.False(novasolaris.ToBool("not-a-bool"))
}
