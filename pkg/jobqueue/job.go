package jobqueue

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"github.com/pborman/uuid"

	"github.com/guillermomolina/nova-solaris/pkg/kv"
)

var (
	// JobPath is the path in the config store
	JobPath = "nova-solaris/jobs/"
)

// Job Status
const (
	JobStatusNew     = "new"
	JobStatusWorking = "working"
	JobStatusDone    = "done"
	JobStatusError   = "error"
)

// Job actions
const (
	ActionCreate   = "create"
	ActionDestroy  = "destroy"
	ActionReboot   = "reboot"
	ActionPowerOn  = "poweron"
	ActionPowerOff = "poweroff"
	ActionSuspend  = "suspend"
	ActionResume   = "resume"
	ActionMigrate  = "migrate"
)

// ValidActions is the set of actions a job may carry
var ValidActions = map[string]bool{
	ActionCreate:   true,
	ActionDestroy:  true,
	ActionReboot:   true,
	ActionPowerOn:  true,
	ActionPowerOff: true,
	ActionSuspend:  true,
	ActionResume:   true,
	ActionMigrate:  true,
}

type (
	// Job is a single unit of lifecycle work for an instance
	Job struct {
		ID            string    `json:"id"`
		Action        string    `json:"action"`
		Instance      string    `json:"instance"`
		Dest          string    `json:"dest,omitempty"` // migration target host
		Error         string    `json:"error,omitempty"`
		Status        string    `json:"status,omitempty"`
		StartedAt     time.Time `json:"started_at,omitempty"`
		FinishedAt    time.Time `json:"finished_at,omitempty"`
		modifiedIndex uint64
		client        *Client
	}
)

// NewJob creates a new job
func (c *Client) NewJob() *Job {
	return &Job{
		ID:     uuid.New(),
		client: c,
		Status: JobStatusNew,
	}
}

// Validate ensures required fields are populated
func (j *Job) Validate() error {
	if j.ID == "" {
		return errors.New("ID is required")
	}

	if !ValidActions[j.Action] {
		return errors.New("invalid action: " + j.Action)
	}

	if j.Instance == "" {
		return errors.New("instance is required")
	}

	if j.Status == "" {
		return errors.New("status is required")
	}

	return nil
}

// key is a helper to generate the config store key
func (j *Job) key() string {
	return filepath.Join(JobPath, j.ID)
}

// Save persists a job
func (j *Job) Save() error {
	if err := j.Validate(); err != nil {
		return err
	}

	v, err := json.Marshal(j)
	if err != nil {
		return err
	}

	index, err := j.client.kv.Update(j.key(), kv.Value{Data: v, Index: j.modifiedIndex})
	if err != nil {
		return err
	}

	j.modifiedIndex = index

	return nil
}

// Refresh reloads a Job from the data store
func (j *Job) Refresh() error {
	value, err := j.client.kv.Get(j.key())
	if err != nil {
		return err
	}

	if err := json.Unmarshal(value.Data, &j); err != nil {
		return err
	}
	j.modifiedIndex = value.Index

	return nil
}

// Job retrieves a single job from the data store
func (c *Client) Job(id string) (*Job, error) {
	j := &Job{
		ID:     id,
		client: c,
	}

	if err := j.Refresh(); err != nil {
		return nil, err
	}

	return j, nil
}
