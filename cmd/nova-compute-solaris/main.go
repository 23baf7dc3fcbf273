package main

import (
	"context"
	"os"
	"time"

	"github.com/armon/go-metrics"
	mapsink "github.com/bakins/go-metrics-map"
	mmw "github.com/bakins/go-metrics-middleware"
	logx "github.com/mistifyio/mistify-logrus-ext"
	flag "github.com/ogier/pflag"
	log "github.com/sirupsen/logrus"

	"github.com/guillermomolina/nova-solaris"
	"github.com/guillermomolina/nova-solaris/pkg/jobqueue"
	"github.com/guillermomolina/nova-solaris/pkg/kv"
	_ "github.com/guillermomolina/nova-solaris/pkg/kv/consul"
	_ "github.com/guillermomolina/nova-solaris/pkg/kv/etcd"
	"github.com/guillermomolina/nova-solaris/pkg/reconciler"
	"github.com/guillermomolina/nova-solaris/pkg/virt"
	_ "github.com/guillermomolina/nova-solaris/pkg/virt/solariszones"
	"github.com/guillermomolina/nova-solaris/pkg/watcher"
)

type metricsContext struct {
	sink    *mapsink.MapSink
	metrics *metrics.Metrics
	mmw     *mmw.Middleware
}

const defaultEtcdAddr = "http://localhost:4001"

func main() {
	var port uint
	var kvAddr, bstalk, logLevel, statsd string
	var driverName, nodeName, configFile, hostID string
	var heartbeat, interval time.Duration

	flag.UintVarP(&port, "port", "p", 18000, "listen port")
	flag.StringVarP(&kvAddr, "kv", "k", defaultEtcdAddr, "address of kv machine")
	flag.StringVarP(&bstalk, "beanstalk", "b", "127.0.0.1:11300", "address of beanstalkd server")
	flag.StringVarP(&logLevel, "log-level", "l", "warn", "log level")
	flag.StringVarP(&statsd, "statsd", "s", "", "statsd address")
	flag.StringVarP(&driverName, "driver", "d", "solariszones", "virt driver")
	flag.StringVarP(&nodeName, "node", "n", "", "hypervisor node name, defaults to hostname")
	flag.StringVarP(&configFile, "config", "c", "", "driver config file")
	flag.StringVarP(&hostID, "id", "i", "", "host id, defaults to a newly generated id")
	flag.DurationVar(&heartbeat, "heartbeat", 60*time.Second, "host heartbeat interval")
	flag.DurationVar(&interval, "interval", reconciler.DefaultInterval, "reconcile interval")
	flag.Parse()

	if err := logx.DefaultSetup(logLevel); err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"func":  "logx.DefaultSetup",
			"level": logLevel,
		}).Fatal("unable to set up logrus")
	}

	store, err := kv.New(kvAddr)
	if err != nil {
		log.WithFields(log.Fields{
			"addr":  kvAddr,
			"error": err,
			"func":  "kv.New",
		}).Fatal("unable to connect to kv")
	}

	ctx := novasolaris.NewContext(store)

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

	if err := driver.InitHost(context.Background(), nodeName); err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"func":  "driver.InitHost",
		}).Fatal("failed to initialize host")
	}

	host := registerHost(ctx, hostID)
	go heartbeatLoop(context.Background(), host, driver, heartbeat)

	if reconcileDisabled(ctx) {
		log.Warning("reconciler disabled by cluster config")
	} else {
		w, err := watcher.New(store)
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
				"func":  "watcher.New",
			}).Fatal("failed to create watcher")
		}

		rec, err := reconciler.New(reconciler.Config{
			Context:  ctx,
			HostID:   host.ID,
			Driver:   driver,
			Jobs:     jobQueue,
			Interval: reconcileInterval(ctx, interval),
		})
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
				"func":  "reconciler.New",
			}).Fatal("failed to create reconciler")
		}
		go func() {
			if err := rec.Run(context.Background(), w); err != nil && err != context.Canceled {
				log.WithField("error", err).Fatal("reconciler exited")
			}
		}()
	}

	// setup metrics
	sink := mapsink.New()
	fanout := metrics.FanoutSink{sink}

	if statsd != "" {
		ss, _ := metrics.NewStatsdSink(statsd)
		fanout = append(fanout, ss)
	}
	conf := metrics.DefaultConfig("nova-compute-solaris")
	conf.EnableHostname = false
	m, _ := metrics.New(conf, fanout)

	mctx := &metricsContext{
		sink:    sink,
		metrics: m,
		mmw:     mmw.New(m),
	}

	server := Run(port, ctx, jobQueue, driver, mctx)
	// Block until the server is stopped
	<-server.StopChan()
}

// reconcileInterval prefers the cluster config value over the flag
func reconcileInterval(ctx *novasolaris.Context, flagVal time.Duration) time.Duration {
	val, err := ctx.GetConfig("reconcile-interval")
	if err != nil {
		return flagVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		log.WithFields(log.Fields{
			"error": err,
			"value": val,
		}).Warning("ignoring bad reconcile-interval config")
		return flagVal
	}
	return d
}

// reconcileDisabled reports whether the cluster config turns the reconciler
// off, for maintenance windows
func reconcileDisabled(ctx *novasolaris.Context) bool {
	val, err := ctx.GetConfig("reconcile-disabled")
	return err == nil && novasolaris.ToBool(val)
}

// registerHost loads or creates this host's record in the kv store
func registerHost(ctx *novasolaris.Context, hostID string) *novasolaris.Host {
	hostname, err := os.Hostname()
	if err != nil {
		log.WithField("error", err).Fatal("unable to determine hostname")
	}

	if hostID != "" {
		host, err := ctx.Host(hostID)
		if err == nil {
			return host
		}
		if !ctx.IsKeyNotFound(err) {
			log.WithFields(log.Fields{
				"error": err,
				"host":  hostID,
			}).Fatal("unable to load host")
		}
	}

	host := ctx.NewHost()
	if hostID != "" {
		host.ID = hostID
	}
	host.Hostname = hostname
	if err := host.Save(); err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"host":  host.ID,
		}).Fatal("unable to register host")
	}
	log.WithFields(log.Fields{
		"host":     host.ID,
		"hostname": hostname,
	}).Info("registered host")
	return host
}

// heartbeatLoop maintains the host liveness key and resource report
func heartbeatLoop(ctx context.Context, host *novasolaris.Host, driver virt.Driver, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := host.Heartbeat(2 * interval); err != nil {
			log.WithFields(log.Fields{
				"error": err,
				"host":  host.ID,
			}).Error("heartbeat failed")
		}

		res, err := driver.AvailableResource(ctx)
		if err != nil {
			log.WithFields(log.Fields{
				"error": err,
				"host":  host.ID,
			}).Error("resource report failed")
		} else if err := host.UpdateResources(res); err != nil {
			log.WithFields(log.Fields{
				"error": err,
				"host":  host.ID,
			}).Error("resource update failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
