// Package jobqueue manages instance lifecycle jobs. Job metadata lives in
// the kv store; beanstalk queues the work.
package jobqueue

import (
	"time"

	"github.com/kr/beanstalk"

	"github.com/guillermomolina/nova-solaris"
	"github.com/guillermomolina/nova-solaris/pkg/kv"
)

// Beanstalk parameters
const (
	priority     = uint32(0)
	delay        = 5 * time.Second
	ttr          = 5 * time.Second
	timeout      = 10 * time.Hour
	reserveDelay = 5 * time.Second
)

// Client is for interacting with the job queue
type Client struct {
	conn  *beanstalk.Conn
	kv    kv.KV
	ctx   *novasolaris.Context
	tubes *tubes
}

// NewClient creates a new Client and initializes the beanstalk connection
// and tubes
func NewClient(bstalk string, store kv.KV) (*Client, error) {
	conn, err := beanstalk.Dial("tcp", bstalk)
	if err != nil {
		return nil, err
	}

	client := &Client{
		conn:  conn,
		kv:    store,
		ctx:   novasolaris.NewContext(store),
		tubes: newTubes(conn),
	}
	return client, nil
}

// AddTask queues a job in the appropriate beanstalk tube
func (c *Client) AddTask(j *Job) (uint64, error) {
	ts := c.tubes.work
	if j.Action == ActionCreate {
		ts = c.tubes.create
	}
	return ts.Put(j.ID)
}

// AddJob creates a job for an instance action, persists it, and queues it
func (c *Client) AddJob(instanceID, action string) (*Job, error) {
	return c.AddJobWithDest(instanceID, action, "")
}

// AddJobWithDest is AddJob with a migration destination
func (c *Client) AddJobWithDest(instanceID, action, dest string) (*Job, error) {
	job := c.NewJob()
	job.Instance = instanceID
	job.Action = action
	job.Dest = dest
	if err := job.Save(); err != nil {
		return nil, err
	}
	if _, err := c.AddTask(job); err != nil {
		return nil, err
	}
	return job, nil
}

// DeleteTask removes a task from beanstalk by id
func (c *Client) DeleteTask(id uint64) error {
	return c.conn.Delete(id)
}

// NextCreateTask returns the next task from the create tube
func (c *Client) NextCreateTask() (*Task, error) {
	return c.nextTask(c.tubes.create)
}

// NextWorkTask returns the next task from the work tube
func (c *Client) NextWorkTask() (*Task, error) {
	return c.nextTask(c.tubes.work)
}

// nextTask returns the next task from a tubeSet and loads the Job and
// Instance
func (c *Client) nextTask(ts *tubeSet) (*Task, error) {
	id, body, err := ts.Reserve()
	if err != nil {
		return nil, err
	}

	task := &Task{
		ID:     id,
		JobID:  body,
		client: c,
	}

	if err := task.RefreshJob(); err != nil {
		return task, err
	}
	if err := task.RefreshInstance(); err != nil {
		return task, err
	}

	return task, nil
}
