package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/Portunus/door/internal/allowlist"
	"github.com/BrandonDHaskell/Portunus/door/internal/config"
	"github.com/BrandonDHaskell/Portunus/door/internal/controller"
	"github.com/BrandonDHaskell/Portunus/door/internal/db"
	"github.com/BrandonDHaskell/Portunus/door/internal/door"
	"github.com/BrandonDHaskell/Portunus/door/internal/gpio"
	"github.com/BrandonDHaskell/Portunus/door/internal/grpcapi"
	"github.com/BrandonDHaskell/Portunus/door/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/door/internal/portunus/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/door/internal/wiegand"
)

func main() {
	if err := run(os.Args[1:], os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "portunus-door: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	httpAddr      string
	grpcAddr      string
	dbPath        string
	retentionDays int
	hardware      string
	simulate      bool
}

func newFlagSet(cfg config.Config, opts *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("portunus-door", pflag.ContinueOnError)
	fs.StringVar(&opts.httpAddr, "http-addr", cfg.HTTPAddr, "status API listen address (empty disables)")
	fs.StringVar(&opts.grpcAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	fs.StringVar(&opts.dbPath, "db-path", cfg.DBPath, `audit database path, or "memory"`)
	fs.IntVar(&opts.retentionDays, "retention-days", cfg.EventRetentionDays, "days of audit history to keep (0 keeps everything)")
	fs.StringVar(&opts.hardware, "hardware", cfg.HardwareProfile, "YAML hardware profile overriding pin and timing defaults")
	fs.BoolVar(&opts.simulate, "simulate", false, "drive fake pins from stdin instead of GPIO")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%v\n\nFlags:\n%s", config.ErrUsage, fs.FlagUsages())
	}
	return fs
}

func run(args []string, stdin io.Reader) error {
	cfg := config.FromEnv()

	var opts options
	fs := newFlagSet(cfg, &opts)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	hw, err := config.LoadHardware(opts.hardware)
	if err != nil {
		return err
	}
	pos, err := config.ParseArgs(fs.Args(), hw.Wiegand.Capacity)
	if err != nil {
		fs.Usage()
		return err
	}
	keys, err := allowlist.Load(pos.AccessList)
	if err != nil {
		fs.Usage()
		return err
	}
	formats, err := wiegand.NewFormats(pos.BitLengths...)
	if err != nil {
		return err
	}

	logger := log.New(os.Stdout, "portunus-door ", log.LstdFlags|log.LUTC)
	logger.Printf("loaded %d access keys from %s", len(keys), pos.AccessList)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pins
	wiring := hw.Wiring()
	var pins gpio.Pins
	var fake *gpio.Fake
	if opts.simulate {
		fake = gpio.NewFake()
		fake.SetLevel(wiring.FaultN, true)
		fake.SetLevel(wiring.DoorOpenN, true)
		pins = fake
		logger.Printf("simulation mode: reading frames from stdin")
	} else {
		p, err := gpio.NewPeriph(logger)
		if err != nil {
			return err
		}
		pins = p
	}
	defer pins.Close()

	// Audit log
	cfg.DBPath = opts.dbPath
	events, closeStore, err := openEventStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	access := service.NewAccessService(service.NewAccessPolicy(keys), events, logger)

	pruner := service.NewEventPruner(events, service.PrunerConfig{
		RetentionDays: opts.retentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	// Actuator and reader
	act, err := door.New(door.Dependencies{
		Pins:   pins,
		Wiring: wiring,
		Config: hw.ActuatorConfig(),
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer act.Shutdown()
	act.Observe(func(t door.Transition) {
		logger.Printf("door: %s -> %s", t.From, t.To)
	})

	capture := wiegand.NewCapture(hw.Wiegand.Capacity)
	d0, d1 := hw.DataPins()
	if err := controller.AttachReader(pins, d0, d1, capture); err != nil {
		return err
	}

	ctl, err := controller.New(controller.Dependencies{
		Logger:       logger,
		Capture:      capture,
		Formats:      formats,
		Access:       access,
		Actuator:     act,
		QuietTicks:   hw.Wiegand.QuietTicks,
		PollInterval: hw.PollInterval,
	})
	if err != nil {
		return err
	}

	// Surfaces
	var grpcSrv *grpcapi.Server
	if opts.grpcAddr != "" {
		grpcSrv = grpcapi.NewServer(grpcapi.Dependencies{Logger: logger, Addr: opts.grpcAddr})
		grpcSrv.SyncState(act.State())
		act.Observe(grpcSrv.Observe)
		go func() {
			if err := grpcSrv.Start(); err != nil {
				logger.Printf("grpc server error: %v", err)
				stop()
			}
		}()
	}

	var httpSrv *httpapi.Server
	if opts.httpAddr != "" {
		httpSrv = httpapi.NewServer(httpapi.Dependencies{Logger: logger, Addr: opts.httpAddr, Door: ctl})
		go func() {
			logger.Printf("listening on %s", opts.httpAddr)
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("server error: %v", err)
				stop()
			}
		}()
	}

	if fake != nil {
		sim := newSimulator(fake, wiring, d0, d1, frameGap(hw.Wiegand.QuietTicks, hw.PollInterval), logger)
		go func() {
			if err := sim.Run(ctx, stdin); err != nil {
				logger.Printf("simulator stopped: %v", err)
			}
		}()
	}

	err = ctl.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	if grpcSrv != nil {
		grpcSrv.Shutdown(shutdownCtx)
	}
	return err
}

// openEventStore picks the SQLite audit log unless the path is "memory".  The
// returned func releases the writer and the database.
func openEventStore(ctx context.Context, cfg config.Config, logger *log.Logger) (store.AccessEventStore, func(), error) {
	if cfg.InMemory() {
		logger.Printf("audit log kept in memory")
		return memory.NewAccessEventStore(), func() {}, nil
	}

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	writer := db.NewWorker(conn)
	logger.Printf("audit log at %s", cfg.DBPath)

	return sqlite.NewAccessEventStore(conn, writer), func() {
		writer.Close()
		_ = conn.Close()
	}, nil
}
