package main

import (
	"context"
	"flag"
	"log"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/bus"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/pipeline"
	"main/internal/routing"
	"main/internal/scheduler"
	"main/internal/store"
	"main/internal/transport"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	flag.Parse()

	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if loaded.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "swap-engine",
			ServerAddress:   loaded.Profiling.ServerAddress,
			Logger:          emptyLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseObjects,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	var st store.Store = store.NewNoop()
	if loaded.Storage.Enabled {
		pg, err := store.NewPG(loaded.Storage.StoreOption())
		if err != nil {
			log.Fatalf("postgres connect failed: %v", err)
		}
		st = pg
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statusBus := bus.NewBus(0)
	metrics := obs.NewMetrics()
	router := routing.NewEngine(loaded.Venues)
	orch := pipeline.NewOrchestrator(pipeline.Config{
		Router:     router,
		Bus:        statusBus,
		Store:      st,
		Metrics:    metrics,
		BuildDelay: loaded.BuildDelay,
	})
	sched := scheduler.New(orch, loaded.Scheduler)
	sched.Start(ctx)

	server := transport.NewServer(loaded.Addr, sched, statusBus, metrics)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run()
	}()

	select {
	case <-sys.Shutdown():
		logs.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logs.Errorf("http server stopped, err: %+v", err)
		}
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer drainCancel()
	if err := server.Close(drainCtx); err != nil {
		logs.Errorf("http shutdown, err: %+v", err)
	}
	if err := sched.Shutdown(drainCtx); err != nil {
		logs.Errorf("scheduler drain, err: %+v", err)
	}
	statusBus.UnsubscribeAll()
	if err := st.Close(); err != nil {
		logs.Errorf("store close, err: %+v", err)
	}
	logs.Info("engine stopped")
}

type emptyLogger struct{}

func (emptyLogger) Infof(_ string, _ ...interface{})  {}
func (emptyLogger) Debugf(_ string, _ ...interface{}) {}
func (emptyLogger) Errorf(_ string, _ ...interface{}) {}
