package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hp77-creator/clipkeep/internal/config"
	"github.com/hp77-creator/clipkeep/internal/logging"
	"github.com/hp77-creator/clipkeep/internal/server"
	"github.com/hp77-creator/clipkeep/internal/service"
)

// runCmd starts the capture daemon and its HTTP API.
func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Capture the clipboard and serve the local API",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Mirror logs to stderr at debug level"},
		},
		Action: func(c *cli.Context) error {
			cfg, cfgPath, err := loadConfig(c)
			if err != nil {
				return err
			}

			logCfg := logging.Config{
				LogDir: cfg.DataDir,
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Stderr: cfg.Log.Stderr,
			}
			if c.Bool("verbose") {
				logCfg.Level = "debug"
				logCfg.Stderr = true
			}
			logging.Init(logCfg)
			defer logging.Shutdown()
			log := logging.ForComponent(logging.CompService)

			pid, err := server.NewPIDFile(cfg.DataDir)
			if err != nil {
				return err
			}
			if err := pid.Acquire(); err != nil {
				return err
			}
			defer pid.Remove()

			svc, err := service.New(cfg, cfgPath, service.Deps{})
			if err != nil {
				return err
			}
			defer svc.Close()

			srv := server.New(svc, server.Config{Port: cfg.Server.Port})
			if err := srv.Start(); err != nil {
				return err
			}
			defer srv.Stop()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info("clipkeep started",
				"data_dir", cfg.DataDir,
				"storage", cfg.Storage,
				"port", cfg.Server.Port,
				"version", Version)

			err = svc.Run(ctx)
			log.Info("shutting down")
			return err
		},
	}
}

// stopCmd signals a running daemon to exit.
func stopCmd() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Stop the running daemon",
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}
			pidFile, err := server.NewPIDFile(cfg.DataDir)
			if err != nil {
				return err
			}
			pid, err := pidFile.Read()
			if err != nil {
				return err
			}
			if pid == 0 || !server.IsRunning(pid) {
				pidFile.Remove()
				return errors.New("clipkeep is not running")
			}
			if err := server.KillProcess(pid); err != nil {
				return err
			}

			deadline := time.Now().Add(5 * time.Second)
			for time.Now().Before(deadline) {
				if !server.IsRunning(pid) {
					fmt.Fprintf(c.App.Writer, "stopped clipkeep (pid %d)\n", pid)
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("clipkeep (pid %d) did not exit", pid)
		},
	}
}

// loadConfig reads config.toml from the data directory and applies flag overrides
func loadConfig(c *cli.Context) (*config.Config, string, error) {
	dataDir := c.String("data-dir")
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	path := c.String("config")
	if path == "" {
		path = config.Path(dataDir)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if c.IsSet("data-dir") || cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if port := c.Int("port"); port > 0 {
		cfg.Server.Port = port
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return cfg, path, nil
}
