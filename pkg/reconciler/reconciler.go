// Package reconciler keeps the zones on a compute host converged with the
// desired state in the kv store. It watches the instance prefix and wakes on
// a timer, diffs desired instances against what the driver observes, and
// enqueues corrective jobs. At most one job per instance is outstanding at a
// time.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/guillermomolina/nova-solaris"
	"github.com/guillermomolina/nova-solaris/pkg/jobqueue"
	"github.com/guillermomolina/nova-solaris/pkg/virt"
	"github.com/guillermomolina/nova-solaris/pkg/watcher"
	"github.com/guillermomolina/nova-solaris/pkg/zones"
)

// DefaultInterval is how often a full reconcile pass runs without kv
// activity
const DefaultInterval = 60 * time.Second

// Config configures a Reconciler
type Config struct {
	Context  *novasolaris.Context
	HostID   string
	Driver   virt.Driver
	Jobs     *jobqueue.Client
	Interval time.Duration
}

// Reconciler converges one host's zones toward the kv desired state
type Reconciler struct {
	ctx      *novasolaris.Context
	hostID   string
	driver   virt.Driver
	jobs     *jobqueue.Client
	interval time.Duration

	mu      sync.Mutex
	pending map[string]string // instance id -> outstanding job id
}

// New creates a Reconciler
func New(c Config) (*Reconciler, error) {
	if c.Context == nil || c.Driver == nil || c.Jobs == nil {
		return nil, errors.New("context, driver, and jobs are required")
	}
	if c.HostID == "" {
		return nil, errors.New("host id is required")
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return &Reconciler{
		ctx:      c.Context,
		hostID:   c.HostID,
		driver:   c.Driver,
		jobs:     c.Jobs,
		interval: c.Interval,
		pending:  map[string]string{},
	}, nil
}

// Run reconciles until the context is canceled. Changes under the instance
// prefix and the interval ticker both trigger a pass.
func (r *Reconciler) Run(ctx context.Context, w *watcher.Watcher) error {
	if err := w.Add(novasolaris.InstancePath); err != nil {
		return err
	}

	wake := make(chan struct{}, 1)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		for w.Next() {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
		if err := w.Err(); err != nil {
			return err
		}
		return nil
	})

	group.Go(func() error {
		defer func() {
			if err := w.Close(); err != nil {
				log.WithField("error", err).Error("failed to close watcher")
			}
		}()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			if err := r.reconcile(gctx); err != nil {
				log.WithField("error", err).Error("reconcile pass failed")
			}

			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			case <-wake:
			}
		}
	})

	return group.Wait()
}

// reconcile runs one convergence pass
func (r *Reconciler) reconcile(ctx context.Context) error {
	observed, err := r.driver.ListInstances(ctx)
	if err != nil {
		return err
	}
	zoneNames := make(map[string]bool, len(observed))
	for _, name := range observed {
		zoneNames[name] = true
	}

	desired := map[string]bool{}
	err = r.ctx.ForEachInstance(func(i *novasolaris.Instance) error {
		if i.HostID != r.hostID {
			return nil
		}
		desired[i.Name] = true

		if r.busy(i.ID) {
			return nil
		}

		action, err := r.diff(ctx, i, zoneNames[i.Name])
		if err != nil {
			log.WithFields(log.Fields{
				"error":    err,
				"instance": i.ID,
			}).Error("failed to diff instance")
			return nil
		}
		if action == "" {
			return nil
		}

		if err := r.enqueue(i, action); err != nil {
			log.WithFields(log.Fields{
				"error":    err,
				"instance": i.ID,
				"action":   action,
			}).Error("failed to enqueue job")
		}
		return nil
	})
	if err != nil {
		return err
	}

	// zones with no backing instance record are reported but left alone
	for name := range zoneNames {
		if !desired[name] {
			log.WithField("zone", name).Warning("zone has no instance record")
		}
	}

	return nil
}

// diff decides which corrective action, if any, an instance needs
func (r *Reconciler) diff(ctx context.Context, i *novasolaris.Instance, exists bool) (string, error) {
	if !exists {
		return jobqueue.ActionCreate, nil
	}

	info, err := r.driver.GetInfo(ctx, i.Name)
	if err != nil {
		return "", err
	}

	switch i.DesiredPower {
	case novasolaris.PowerDesiredRunning:
		if info.State != zones.PowerRunning {
			return jobqueue.ActionPowerOn, nil
		}
	case novasolaris.PowerDesiredShutdown:
		if info.State == zones.PowerRunning {
			return jobqueue.ActionPowerOff, nil
		}
	}
	return "", nil
}

// busy reports whether the instance already has an outstanding job,
// clearing finished ones as a side effect
func (r *Reconciler) busy(instanceID string) bool {
	r.mu.Lock()
	jobID, ok := r.pending[instanceID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	job, err := r.jobs.Job(jobID)
	if err != nil {
		// a missing job is not outstanding
		r.forget(instanceID)
		return false
	}

	switch job.Status {
	case jobqueue.JobStatusDone, jobqueue.JobStatusError:
		r.forget(instanceID)
		return false
	}
	return true
}

func (r *Reconciler) forget(instanceID string) {
	r.mu.Lock()
	delete(r.pending, instanceID)
	r.mu.Unlock()
}

// enqueue creates and queues a corrective job for an instance
func (r *Reconciler) enqueue(i *novasolaris.Instance, action string) error {
	job := r.jobs.NewJob()
	job.Action = action
	job.Instance = i.ID
	if err := job.Save(); err != nil {
		return err
	}
	if _, err := r.jobs.AddTask(job); err != nil {
		return err
	}

	r.mu.Lock()
	r.pending[i.ID] = job.ID
	r.mu.Unlock()

	log.WithFields(log.Fields{
		"instance": i.ID,
		"zone":     i.Name,
		"action":   action,
		"job":      job.ID,
	}).Info("queued corrective job")
	return nil
}
