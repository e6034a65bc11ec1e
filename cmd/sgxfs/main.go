package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dburihabwa/sgx-fs/internal/logger"
	fuseAdapter "github.com/dburihabwa/sgx-fs/pkg/adapter/fuse"
	"github.com/dburihabwa/sgx-fs/pkg/bridge"
	"github.com/dburihabwa/sgx-fs/pkg/bridge/transport"
	"github.com/dburihabwa/sgx-fs/pkg/config"
	"github.com/dburihabwa/sgx-fs/pkg/enclave"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: "+config.GetDefaultConfigPath()+")")
	mountpoint := flag.String("mountpoint", "", "Mountpoint (overrides configuration)")
	logLevel := flag.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR; overrides configuration)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *mountpoint != "" {
		cfg.Adapters.Fuse.Mountpoint = *mountpoint
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if cfg.Adapters.Fuse.Mountpoint == "" {
		log.Fatalf("No mountpoint: pass -mountpoint or set adapters.fuse.mountpoint")
	}

	logger.SetLevel(cfg.Logging.Level)
	logger.SetFormat(cfg.Logging.Format)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("sgx-fs - enclave-backed in-memory filesystem")
	logger.Info("Block size: %d bytes", cfg.Enclave.BlockSize)

	// The sealer is the one component the filesystem cannot run without:
	// a sealing policy failure here aborts before anything is mounted.
	sealer, err := config.CreateSealer(&cfg.Enclave)
	if err != nil {
		logger.Error("Sealer initialization failed: %v", err)
		os.Exit(1)
	}

	store, err := config.CreatePersistenceStore(ctx, &cfg.Persistence)
	if err != nil {
		logger.Error("Persistence initialization failed: %v", err)
		os.Exit(1)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	enc, err := enclave.New(enclave.Config{
		BlockSize: cfg.Enclave.BlockSize,
		Sealer:    sealer,
	})
	if err != nil {
		logger.Error("Enclave initialization failed: %v", err)
		os.Exit(1)
	}
	logger.Info("Enclave instance %s created", enc.ID())

	if err := enc.Mount(ctx, store); err != nil {
		logger.Error("Restore failed: %v", err)
		os.Exit(1)
	}

	dispatcher := bridge.NewDispatcher(enc, bridge.Options{
		UID:      uint32(os.Getuid()),
		GID:      uint32(os.Getgid()),
		ReadOnly: cfg.Adapters.Fuse.ReadOnly,
	})
	client := transport.NewClient(transport.NewBoundary(dispatcher))

	server, err := fuseAdapter.Mount(fuseAdapter.Options{
		Mountpoint: cfg.Adapters.Fuse.Mountpoint,
		Client:     client,
		FSName:     cfg.Adapters.Fuse.FSName,
		AllowOther: cfg.Adapters.Fuse.AllowOther,
		ReadOnly:   cfg.Adapters.Fuse.ReadOnly,
	})
	if err != nil {
		logger.Error("Mount failed: %v", err)
		os.Exit(1)
	}

	// Unmount on SIGINT/SIGTERM; the kernel may also unmount on its own.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received %v, unmounting", sig)
		if err := server.Unmount(); err != nil {
			logger.Warn("Unmount failed (busy mount?): %v", err)
		}
	}()

	logger.Info("Serving at %s. Press Ctrl+C to stop.", cfg.Adapters.Fuse.Mountpoint)
	server.Wait()

	// The kernel is detached; drain the enclave and persist its state.
	if err := enc.Unmount(ctx, store); err != nil {
		logger.Error("Dump failed: %v", err)
		os.Exit(1)
	}

	logger.Info("Clean unmount")
}
