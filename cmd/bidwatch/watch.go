package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/morelatto/bidwatch/internal/api"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the registry continuously (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "bidwatch.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func runWatch() error {
	fmt.Fprintf(os.Stderr, "bidwatch version %s\n", version)

	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.preflight(); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	printStep("watching club %s (%s), every %s, publishing %s",
		a.cfg.Source.ClubCode, a.cfg.Source.Region,
		a.cfg.Schedule.IntervalDuration(), onOff(a.publish))

	// Refuse to start a second poller against the same history file.
	pidPath := pidFilePath(a.cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", a.cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("bidwatch already running (PID %d)", pid)
		}
		return fmt.Errorf("bidwatch already running on port %d", a.cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Scheduler: a.scheduler,
			History:   a.history,
			Journal:   a.journal,
			Version:   version,
		}),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "status server listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.scheduler.Start(gctx)
		<-gctx.Done()
		a.scheduler.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	fmt.Fprintln(os.Stderr, "shut down")
	return err
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
