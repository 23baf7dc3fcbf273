package novasolaris_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/guillermomolina/nova-solaris/internal/tests/common"
)

func testMsgFunc(prefix string) func(...interface{}) string {
	return func(val ...interface{}) string {
		if len(val) == 0 {
			return prefix
		}
		msgPrefix := prefix + " : "
		if len(val) == 1 {
			return msgPrefix + val[0].(string)
		}
		return msgPrefix + fmt.Sprintf(val[0].(string), val[1:]...)
	}
}

type ContextTestSuite struct {
	common.Suite
}

func TestContextTestSuite(t *testing.T) {
	suite.Run(t, new(ContextTestSuite))
}

func (s *ContextTestSuite) TestNewContext() {
	s.NotNil(s.Context)
}

func (s *ContextTestSuite) TestIsKeyNotFound() {
	_, err := s.KV.Get(s.PrefixKey("some-random-non-existent-key"))

	s.Error(err)
	s.True(s.Context.IsKeyNotFound(err))

	err = errors.New("some-random-non-key-not-found-error")
	s.False(s.Context.IsKeyNotFound(err))
}
