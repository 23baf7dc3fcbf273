package jobqueue_test

import (
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/guillermomolina/nova-solaris/internal/tests/common"
	"github.com/guillermomolina/nova-solaris/pkg/jobqueue"
)

// JobQCommonSuite runs the common suite's kv plus a beanstalkd for queue
// tests.
type JobQCommonSuite struct {
	common.Suite
	BStalkAddr string
	BStalkCmd  *exec.Cmd
	Client     *jobqueue.Client
}

func (s *JobQCommonSuite) SetupSuite() {
	s.Suite.SetupSuite()

	bPort := 40000 + rand.Intn(10000)
	s.BStalkAddr = fmt.Sprintf("127.0.0.1:%d", bPort)
	s.BStalkCmd = exec.Command("beanstalkd", "-l", "127.0.0.1", "-p", fmt.Sprintf("%d", bPort))
	if testing.Verbose() {
		s.BStalkCmd.Stdout = os.Stdout
		s.BStalkCmd.Stderr = os.Stderr
	}
	s.Require().NoError(s.BStalkCmd.Start())
	time.Sleep(500 * time.Millisecond) // Wait for beanstalkd to be ready
}

func (s *JobQCommonSuite) SetupTest() {
	s.Suite.SetupTest()

	var err error
	s.Client, err = jobqueue.NewClient(s.BStalkAddr, s.KV)
	s.Require().NoError(err)
}

func (s *JobQCommonSuite) TearDownSuite() {
	s.Require().NoError(s.BStalkCmd.Process.Kill())
	s.Require().Error(s.BStalkCmd.Wait())

	s.Suite.TearDownSuite()
}

// newJob creates and saves a job for a new instance
func (s *JobQCommonSuite) newJob(action string) *jobqueue.Job {
	if action == "" {
		action = jobqueue.ActionReboot
	}

	instance := s.NewInstance()

	job := s.Client.NewJob()
	job.Instance = instance.ID
	job.Action = action

	s.Require().NoError(job.Save())

	return job
}
