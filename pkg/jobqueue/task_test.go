package jobqueue_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/guillermomolina/nova-solaris/pkg/jobqueue"
)

type TaskSuite struct {
	JobQCommonSuite
}

func TestTaskSuite(t *testing.T) {
	suite.Run(t, new(TaskSuite))
}

func (s *TaskSuite) reserveTask(action string) *jobqueue.Task {
	job := s.newJob(action)
	_, err := s.Client.AddTask(job)
	s.Require().NoError(err)

	task, err := s.Client.NextWorkTask()
	s.Require().NoError(err)
	return task
}

func (s *TaskSuite) TestDelete() {
	task := s.reserveTask(jobqueue.ActionReboot)
	s.NoError(task.Delete())
	s.Error(task.Delete(), "double delete should fail")
}

func (s *TaskSuite) TestRelease() {
	task := s.reserveTask(jobqueue.ActionReboot)
	s.NoError(task.Release())

	// released tasks come back around
	again, err := s.Client.NextWorkTask()
	s.Require().NoError(err)
	s.Equal(task.ID, again.ID)
	s.NoError(again.Delete())
}

func (s *TaskSuite) TestRefreshJob() {
	task := s.reserveTask(jobqueue.ActionReboot)
	defer func() { _ = task.Delete() }()

	task.Job.Status = jobqueue.JobStatusWorking
	s.Require().NoError(task.Job.Save())

	s.NoError(task.RefreshJob())
	s.Equal(jobqueue.JobStatusWorking, task.Job.Status)
}

func (s *TaskSuite) TestRefreshInstance() {
	task := s.reserveTask(jobqueue.ActionReboot)
	defer func() { _ = task.Delete() }()

	s.NoError(task.RefreshInstance())
	s.Equal(task.Job.Instance, task.Instance.ID)

	task.Job = nil
	s.Error(task.RefreshInstance(), "nil job should fail")
}
