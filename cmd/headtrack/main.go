// Command headtrack runs the head-tracking pose pipeline: it reads raw
// 6DOF samples from a tracker backend, applies centering, filtering,
// mapping and relative translation, and delivers the result to the
// configured sinks. A small HTTP API exposes the live pose and the
// center/enable/zero controls.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/skyrookie/opentrack/internal/config"
	"github.com/skyrookie/opentrack/internal/filter"
	"github.com/skyrookie/opentrack/internal/pipeline"
	"github.com/skyrookie/opentrack/internal/pose"
	"github.com/skyrookie/opentrack/internal/protocol"
	"github.com/skyrookie/opentrack/internal/tracker"
	"github.com/skyrookie/opentrack/internal/tracklog"
	"github.com/skyrookie/opentrack/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to JSON profile (optional)")
	demoMode   = flag.Bool("demo", false, "Use the built-in motion generator instead of hardware")
	listen     = flag.String("listen", "", "HTTP listen address (overrides profile)")
)

// multiSink fans one delivered pose out to every configured sink.
type multiSink []pipeline.Protocol

func (m multiSink) Pose(p pose.Pose) {
	for _, s := range m {
		s.Pose(p)
	}
}

// multiLogger mirrors cycle records to every configured logger.
type multiLogger []pipeline.CycleLogger

func (m multiLogger) WriteHeader(cols []string) error {
	for _, l := range m {
		if err := l.WriteHeader(cols); err != nil {
			return err
		}
	}
	return nil
}

func (m multiLogger) WriteRow(fields []float64) error {
	for _, l := range m {
		if err := l.WriteRow(fields); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	flag.Parse()

	log.Printf("headtrack %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
	pipeline.SetLogWriters(pipeline.LogWriters{Ops: os.Stderr, Diag: os.Stderr})

	profile := config.EmptyProfile()
	if *configPath != "" {
		var err error
		profile, err = config.LoadProfile(*configPath)
		if err != nil {
			log.Fatalf("failed to load profile: %v", err)
		}
	}

	maps, err := profile.BuildMappings()
	if err != nil {
		log.Fatalf("failed to build axis mappings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup

	// Tracker backend: demo generator, serial device, or UDP listener.
	var trk pipeline.Tracker
	switch {
	case *demoMode:
		trk = tracker.NewDemo()
		log.Print("using demo motion generator")
	case profile.GetSerialPort() != "":
		st, err := tracker.NewSerialTracker(tracker.SerialConfig{
			Port: profile.GetSerialPort(),
			Baud: profile.GetSerialBaud(),
		})
		if err != nil {
			log.Fatalf("failed to open serial tracker: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := st.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("serial tracker stopped: %v", err)
			}
		}()
		trk = st
	default:
		ut, err := tracker.NewUDPTracker(tracker.UDPConfig{
			Address: profile.GetTrackerUDPAddress(),
		})
		if err != nil {
			log.Fatalf("failed to open UDP tracker: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ut.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("UDP tracker stopped: %v", err)
			}
		}()
		trk = ut
	}

	// Output sinks.
	var sinks multiSink
	if addr := profile.GetOutputUDPAddress(); addr != "" {
		udp, err := protocol.NewUDPSink(addr)
		if err != nil {
			log.Fatalf("failed to open UDP sink: %v", err)
		}
		defer udp.Close()
		sinks = append(sinks, udp)
	}
	if broker := profile.GetMQTTBroker(); broker != "" {
		mq, err := protocol.NewMQTTSink(protocol.MQTTConfig{
			Broker: broker,
			Topic:  profile.GetMQTTTopic(),
		})
		if err != nil {
			log.Fatalf("failed to connect MQTT sink: %v", err)
		}
		defer mq.Close()
		sinks = append(sinks, mq)
	}

	// Cycle history.
	var loggers multiLogger
	if path := profile.GetCycleLogPath(); path != "" {
		csv, err := tracklog.OpenCSVLogger(path)
		if err != nil {
			log.Fatalf("failed to open cycle log: %v", err)
		}
		defer csv.Close()
		loggers = append(loggers, csv)
	}
	if path := profile.GetRecorderPath(); path != "" {
		rec, err := tracklog.NewRecorder(path)
		if err != nil {
			log.Fatalf("failed to open pose recorder: %v", err)
		}
		defer rec.Close()
		log.Printf("recording run %s to %s", rec.RunID(), path)
		loggers = append(loggers, rec)
	}

	cfg := pipeline.Config{
		Settings: pipeline.Settings{
			CenterAtStartup: profile.GetCenterAtStartup(),
			RelMode:         profile.GetRelMode(),
			RelDisabled:     profile.GetRelDisabled(),
			NeckEnabled:     profile.GetNeckEnabled(),
			NeckLength:      profile.GetNeckLengthCm(),
		},
		Mappings: maps,
		Tracker:  trk,
		Protocol: sinks,
	}
	if profile.GetFilterEnabled() {
		cfg.Filter = filter.NewEWMA(filter.EWMAConfig{
			MinSmoothing:   profile.GetFilterMinSmoothing(),
			MaxSmoothing:   profile.GetFilterMaxSmoothing(),
			Responsiveness: profile.GetFilterResponsiveness(),
		})
	}
	if len(loggers) > 0 {
		cfg.Logger = loggers
	}

	pipe, err := pipeline.New(cfg)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		pipe.Run(ctx)
	}()

	// HTTP API.
	addr := profile.GetHTTPAddress()
	if *listen != "" {
		addr = *listen
	}
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		apiMux := NewServer(pipe).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		server := &http.Server{Addr: addr, Handler: mux}
		go func() {
			log.Printf("HTTP API listening on %s", addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start HTTP server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Print("shutdown complete")
}
