package jobqueue

import (
	"errors"

	"github.com/guillermomolina/nova-solaris"
)

// Task pulls together information from beanstalk and the kv
type Task struct {
	ID       uint64 // id from beanstalkd
	JobID    string // body from beanstalkd
	Job      *Job
	Instance *novasolaris.Instance
	client   *Client
}

// Delete removes a task from beanstalk
func (t *Task) Delete() error {
	return t.client.conn.Delete(t.ID)
}

// Release releases a task back to beanstalk for a later retry
func (t *Task) Release() error {
	return t.client.conn.Release(t.ID, priority, delay)
}

// RefreshJob reloads a task's job information
func (t *Task) RefreshJob() error {
	job, err := t.client.Job(t.JobID)
	if err != nil {
		return err
	}
	t.Job = job
	return nil
}

// RefreshInstance reloads a task's instance information
func (t *Task) RefreshInstance() error {
	if t.Job == nil {
		return errors.New("trying to load instance from nil job")
	}
	if t.Job.Instance == "" {
		return errors.New("job missing instance id")
	}
	instance, err := t.client.ctx.Instance(t.Job.Instance)
	if err != nil {
		return err
	}
	t.Instance = instance
	return nil
}
