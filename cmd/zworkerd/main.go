package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/armon/go-metrics"
	mapsink "github.com/bakins/go-metrics-map"
	"github.com/kr/beanstalk"
	logx "github.com/mistifyio/mistify-logrus-ext"
	flag "github.com/ogier/pflag"
	log "github.com/sirupsen/logrus"

	"github.com/guillermomolina/nova-solaris"
	"github.com/guillermomolina/nova-solaris/pkg/jobqueue"
	"github.com/guillermomolina/nova-solaris/pkg/kv"
	_ "github.com/guillermomolina/nova-solaris/pkg/kv/consul"
	_ "github.com/guillermomolina/nova-solaris/pkg/kv/etcd"
	"github.com/guillermomolina/nova-solaris/pkg/lock"
	"github.com/guillermomolina/nova-solaris/pkg/virt"
	_ "github.com/guillermomolina/nova-solaris/pkg/virt/solariszones"
)

// LockPath is the kv prefix for per-instance work locks
const LockPath = "nova-solaris/locks/"

const defaultLockTTL = 5 * time.Minute

type worker struct {
	ctx     *novasolaris.Context
	kv      kv.KV
	driver  virt.Driver
	node    string
	hostID  string
	lockTTL time.Duration
}

// workerLockTTL prefers the cluster config value over the default
func workerLockTTL(ctx *novasolaris.Context) time.Duration {
	val, err := ctx.GetConfig("lock-ttl")
	if err != nil {
		return defaultLockTTL
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		log.WithFields(log.Fields{
			"error": err,
			"value": val,
		}).Warning("ignoring bad lock-ttl config")
		return defaultLockTTL
	}
	return d
}

func main() {
	var port uint
	var kvAddr, bstalk, logLevel string
	var driverName, nodeName, configFile, hostID string

	flag.StringVarP(&bstalk, "beanstalk", "b", "127.0.0.1:11300", "address of beanstalkd server")
	flag.StringVarP(&logLevel, "log-level", "l", "warn", "log level")
	flag.StringVarP(&kvAddr, "kv", "k", "http://127.0.0.1:4001", "address of kv machine")
	flag.StringVarP(&driverName, "driver", "d", "solariszones", "virt driver")
	flag.StringVarP(&nodeName, "node", "n", "", "hypervisor node name, defaults to hostname")
	flag.StringVarP(&configFile, "config", "c", "", "driver config file")
	flag.StringVarP(&hostID, "id", "i", "", "id of this worker's host record (required)")
	flag.UintVarP(&port, "http", "p", 7544, "http port to publish metrics. set to 0 to disable")
	flag.Parse()

	if err := logx.DefaultSetup(logLevel); err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"level": logLevel,
		}).Fatal("unable to set up logrus")
	}

	store, err := kv.New(kvAddr)
	if err != nil {
		log.WithFields(log.Fields{
			"addr":  kvAddr,
			"error": err,
		}).Fatal("unable to connect to kv")
	}

	ctx := novasolaris.NewContext(store)

	// Workers only act on instances placed on their own host, so the host
	// record must exist before any task is taken
	if hostID == "" {
		log.Fatal("host id is required")
	}
	if _, err := ctx.Host(hostID); err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"id":    hostID,
		}).Fatal("unknown host id")
	}

	log.WithField("address", bstalk).Info("connection to beanstalk")
	jobQueue, err := jobqueue.NewClient(bstalk, store)
	if err != nil {
		log.WithFields(log.Fields{
			"error":   err,
			"address": bstalk,
		}).Fatal("failed to create jobQueue client")
	}

	driver, err := virt.New(driverName, virt.Options{
		NodeName:   nodeName,
		ConfigFile: configFile,
	})
	if err != nil {
		log.WithFields(log.Fields{
			"error":  err,
			"driver": driverName,
		}).Fatal("failed to create virt driver")
	}

	// Separate connection for the create tube, beanstalk connections are
	// not safe for concurrent reserves
	createQueue, err := jobqueue.NewClient(bstalk, store)
	if err != nil {
		log.WithFields(log.Fields{
			"error":   err,
			"address": bstalk,
		}).Fatal("failed to create jobQueue client")
	}

	m := setupMetrics(port)

	w := &worker{
		ctx:     ctx,
		kv:      store,
		driver:  driver,
		node:    nodeName,
		hostID:  hostID,
		lockTTL: workerLockTTL(ctx),
	}

	// Start consuming
	go consume(createQueue.NextCreateTask, w, m)
	consume(jobQueue.NextWorkTask, w, m)
}

func consume(next func() (*jobqueue.Task, error), w *worker, m *metrics.Metrics) {
	for {
		// Wait for and reserve a job
		task, err := next()
		if err != nil {
			if bCE, ok := err.(beanstalk.ConnError); ok {
				switch bCE {
				case beanstalk.ErrTimeout:
					// Empty queue, continue waiting
					continue
				case beanstalk.ErrDeadline:
					// Let the deadline'd job expire and try again
					m.IncrCounter([]string{"beanstalk", "error", "deadline"}, 1)
					log.Debug(beanstalk.ErrDeadline)
					time.Sleep(5 * time.Second)
					continue
				default:
					log.WithField("error", err).Fatal(err)
				}
			}

			log.WithFields(log.Fields{
				"task":  task,
				"error": err,
			}).Error("invalid task")

			if task != nil {
				if err := task.Delete(); err != nil {
					log.WithFields(log.Fields{
						"task":  task.ID,
						"error": err,
					}).Error("unable to delete")
				}
			}
			continue
		}

		logFields := log.Fields{
			"job":      task.JobID,
			"action":   task.Job.Action,
			"instance": task.Job.Instance,
		}
		log.WithFields(logFields).Info("reserved task")

		removeTask, err := processTask(task, w)

		if removeTask {
			if err != nil {
				log.WithFields(logFields).WithField("error", err).Error(err)
				_ = updateJobStatus(task, jobqueue.JobStatusError, err)
			} else if task.Job.Status != jobqueue.JobStatusError {
				_ = updateJobStatus(task, jobqueue.JobStatusDone, nil)
			}
			log.WithFields(logFields).WithField("status", task.Job.Status).Info("job finished")

			updateMetrics(task, m)

			if err := task.Delete(); err != nil {
				log.WithFields(log.Fields{
					"task":  task.ID,
					"error": err,
				}).Error("unable to delete")
			}
		} else {
			log.WithFields(logFields).Info("releasing task")
			if err := task.Release(); err != nil {
				log.WithFields(logFields).WithField("error", err).Fatal(err)
			}
		}
	}
}

// setupMetrics creates the metric sink and starts an optional http server
func setupMetrics(port uint) *metrics.Metrics {
	ms := mapsink.New()
	conf := metrics.DefaultConfig("zworkerd")
	conf.EnableHostname = false
	m, _ := metrics.New(conf, ms)

	// Unless told not to, expose metrics via http
	if port != 0 {
		http.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(ms)
		}))

		go func() {
			log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", port), nil))
		}()
	}

	return m
}

// processTask runs a task under a per-instance lock. It returns true when
// the task should be removed from the queue.
func processTask(task *jobqueue.Task, w *worker) (bool, error) {
	switch task.Job.Status {
	case jobqueue.JobStatusDone, jobqueue.JobStatusError:
		return true, nil
	}

	// Leave tasks for instances placed on another host to that host's worker
	if task.Instance != nil && task.Instance.HostID != "" && task.Instance.HostID != w.hostID {
		return false, nil
	}

	l, err := lock.Acquire(w.kv, filepath.Join(LockPath, task.Job.Instance), w.node, w.lockTTL, false)
	if err != nil {
		// Another worker holds the instance, try again later
		return false, nil
	}
	defer func() {
		if err := l.Release(); err != nil {
			log.WithFields(log.Fields{
				"error":    err,
				"instance": task.Job.Instance,
			}).Error("unable to release lock")
		}
	}()

	if err := updateJobStatus(task, jobqueue.JobStatusWorking, nil); err != nil {
		return true, err
	}

	if err := runJob(task, w); err != nil {
		return true, err
	}

	if task.Job.Action == jobqueue.ActionDestroy {
		return true, task.Instance.Destroy()
	}
	return true, nil
}

// runJob drives the instance's zone through the virt driver
func runJob(task *jobqueue.Task, w *worker) error {
	job := task.Job

	if task.Instance == nil {
		return errors.New("instance does not exist")
	}
	name := task.Instance.Name
	ctx := context.Background()

	switch job.Action {
	case jobqueue.ActionCreate:
		// Place the instance on this host if it has not been placed yet
		if task.Instance.HostID == "" {
			task.Instance.HostID = w.hostID
			if err := task.Instance.Save(); err != nil {
				return err
			}
		}
		spec, err := task.Instance.Spec()
		if err != nil {
			return err
		}
		return w.driver.Spawn(ctx, spec, task.Instance.DesiredPower == novasolaris.PowerDesiredRunning)
	case jobqueue.ActionDestroy:
		return w.driver.Destroy(ctx, name)
	case jobqueue.ActionReboot:
		return w.driver.Reboot(ctx, name, virt.RebootSoft)
	case jobqueue.ActionPowerOn:
		return w.driver.PowerOn(ctx, name)
	case jobqueue.ActionPowerOff:
		return w.driver.PowerOff(ctx, name, virt.HaltSoft)
	case jobqueue.ActionSuspend:
		return w.driver.Suspend(ctx, name)
	case jobqueue.ActionResume:
		return w.driver.Resume(ctx, name)
	case jobqueue.ActionMigrate:
		dest, err := migrationDest(w.ctx, job.Dest)
		if err != nil {
			return err
		}
		if err := w.driver.CheckCanLiveMigrate(ctx, name, dest); err != nil {
			return err
		}
		return w.driver.LiveMigrate(ctx, name, dest)
	default:
		return errors.New("invalid action")
	}
}

// migrationDest resolves a job's dest field, which may be a host id or a
// literal hostname
func migrationDest(ctx *novasolaris.Context, dest string) (string, error) {
	if dest == "" {
		return "", errors.New("migrate job missing dest")
	}
	if host, err := ctx.Host(dest); err == nil {
		return host.Hostname, nil
	}
	return dest, nil
}

func updateJobStatus(task *jobqueue.Task, status string, e error) error {
	task.Job.Status = status
	if e != nil {
		task.Job.Error = e.Error()
	}
	if task.Job.StartedAt.Equal(time.Time{}) {
		task.Job.StartedAt = time.Now()
	}
	if status == jobqueue.JobStatusError || status == jobqueue.JobStatusDone {
		task.Job.FinishedAt = time.Now()
	}

	if err := task.Job.Save(); err != nil {
		log.WithFields(log.Fields{
			"job":   task.JobID,
			"error": err,
		}).Error("unable to save")
		return err
	}
	return nil
}

func updateMetrics(task *jobqueue.Task, m *metrics.Metrics) {
	job := task.Job
	m.MeasureSince([]string{"action", job.Action, "time"}, job.StartedAt)
	m.MeasureSince([]string{"action", "time"}, job.StartedAt)
	m.IncrCounter([]string{"action", job.Action, "count"}, 1)
	m.IncrCounter([]string{"action", "count"}, 1)
	if job.Error != "" {
		m.IncrCounter([]string{"action", job.Action, "error"}, 1)
		m.IncrCounter([]string{"action", "error"}, 1)
	}
}
