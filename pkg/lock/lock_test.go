package lock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/guillermomolina/nova-solaris/internal/tests/common"
	"github.com/guillermomolina/nova-solaris/pkg/lock"
)

type LockTestSuite struct {
	common.Suite
}

func TestLockTestSuite(t *testing.T) {
	suite.Run(t, new(LockTestSuite))
}

func (s *LockTestSuite) lockKey() string {
	return s.PrefixKey("locks/test")
}

func (s *LockTestSuite) TestAcquire() {
	l, err := lock.Acquire(s.KV, s.lockKey(), "holder1", time.Minute, false)
	s.Require().NoError(err)
	s.Require().NotNil(l)

	_, err = lock.Acquire(s.KV, s.lockKey(), "holder2", time.Minute, false)
	s.Error(err, "second non-blocking acquire should fail")

	s.NoError(l.Release())

	l2, err := lock.Acquire(s.KV, s.lockKey(), "holder2", time.Minute, false)
	s.NoError(err, "acquire after release should succeed")
	s.NoError(l2.Release())
}

func (s *LockTestSuite) TestAcquireExpired() {
	l, err := lock.Acquire(s.KV, s.lockKey(), "holder1", 100*time.Millisecond, false)
	s.Require().NoError(err)

	time.Sleep(200 * time.Millisecond)

	l2, err := lock.Acquire(s.KV, s.lockKey(), "holder2", time.Minute, false)
	s.NoError(err, "expired lock should be stolen")

	s.Error(l.Refresh(), "stolen lock can not be refreshed")
	s.NoError(l2.Release())
}

func (s *LockTestSuite) TestAcquireBlocking() {
	l, err := lock.Acquire(s.KV, s.lockKey(), "holder1", time.Minute, false)
	s.Require().NoError(err)

	acquired := make(chan *lock.Lock)
	go func() {
		l2, err := lock.Acquire(s.KV, s.lockKey(), "holder2", time.Minute, true)
		s.NoError(err)
		acquired <- l2
	}()

	select {
	case <-acquired:
		s.Fail("blocking acquire returned while lock held")
	case <-time.After(500 * time.Millisecond):
	}

	s.Require().NoError(l.Release())

	select {
	case l2 := <-acquired:
		s.NoError(l2.Release())
	case <-time.After(10 * time.Second):
		s.Fail("blocking acquire did not return after release")
	}
}

func (s *LockTestSuite) TestRefresh() {
	l, err := lock.Acquire(s.KV, s.lockKey(), "holder1", time.Minute, false)
	s.Require().NoError(err)

	s.NoError(l.Refresh())
	s.NoError(l.Refresh())

	s.Require().NoError(l.Release())
	s.Equal(lock.ErrLockNotHeld, l.Refresh())
}

func (s *LockTestSuite) TestRelease() {
	l, err := lock.Acquire(s.KV, s.lockKey(), "holder1", time.Minute, false)
	s.Require().NoError(err)

	s.NoError(l.Release())
	s.Equal(lock.ErrLockNotHeld, l.Release())

	_, err = s.KV.Get(s.lockKey())
	s.True(s.KV.IsKeyNotFound(err), "release should delete the key")
}
