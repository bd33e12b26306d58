package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/morelatto/bidwatch/internal/config"
	"github.com/morelatto/bidwatch/internal/dedupe"
	"github.com/morelatto/bidwatch/internal/storage"
)

// --- once ---

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single poll cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce()
	},
}

func runOnce() error {
	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.preflight(); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStep("running one cycle for club %s (%s), publishing %s",
		a.cfg.Source.ClubCode, a.cfg.Source.Region, onOff(a.publish))

	if err := a.scheduler.RunOnce(ctx); err != nil {
		return err
	}

	cycle, err := a.journal.LastCycle()
	if err != nil {
		return nil
	}
	printSuccess("cycle complete: %d found, %d posted, %d skipped, %d failed",
		cycle.RecordsFound, cycle.Posted, cycle.Skipped, cycle.Failed)
	return nil
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show poller status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 2 * time.Second}
	statusURL := fmt.Sprintf("http://127.0.0.1:%d/status", cfg.Server.Port)

	resp, err := client.Get(statusURL)
	if err == nil {
		defer resp.Body.Close()
		var live struct {
			Running         bool      `json:"running"`
			CycleCount      int       `json:"cycle_count"`
			LastRunAt       time.Time `json:"last_run_at"`
			NextRunAt       time.Time `json:"next_run_at"`
			LastRotationDay string    `json:"last_rotation_day"`
			LastCycleError  string    `json:"last_cycle_error"`
			PostedToday     int       `json:"posted_today"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&live); err != nil {
			return fmt.Errorf("decoding status response: %w", err)
		}
		printStatus("Poller", "running on port %d", cfg.Server.Port)
		printStatus("Cycles", "%d", live.CycleCount)
		if !live.LastRunAt.IsZero() {
			printStatus("Last run", "%s", live.LastRunAt.Format(time.RFC3339))
			printStatus("Next run", "%s", live.NextRunAt.Format(time.RFC3339))
		}
		printStatus("Posted today", "%d", live.PostedToday)
		if live.LastCycleError != "" {
			printStatus("Last error", "%s", live.LastCycleError)
		}
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	}

	// No live poller; report from the journal and history file.
	printStatus("Poller", "stopped")

	history := dedupe.Open(historyPath(cfg.Storage.DataDir))
	printStatus("Posted today", "%d", history.Len())

	journal, err := storage.Open(cfg.Storage.DataDir)
	if err == nil {
		defer journal.Close()
		if cycle, err := journal.LastCycle(); err == nil {
			printStatus("Last cycle", "%s at %s (%d posted, %d skipped, %d failed)",
				cycle.Status, cycle.StartedAt.Format(time.RFC3339), cycle.Posted, cycle.Skipped, cycle.Failed)
		} else if errors.Is(err, storage.ErrNotFound) {
			printStatus("Last cycle", "never ran")
		}
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List records posted today",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showHistory()
	},
}

func showHistory() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	history := dedupe.Open(historyPath(cfg.Storage.DataDir))
	entries := history.Entries()
	if len(entries) == 0 {
		fmt.Println("No records posted today.")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%s  %-30s  contract %s\n",
			colorize(colorCyan, e.PostedAt.Format("15:04:05")),
			e.SubjectName, e.ContractNumber)
	}
	fmt.Printf("\n%d record(s) posted today.\n", len(entries))

	// Recent journal outcomes give the longer view, failures included.
	journal, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil
	}
	defer journal.Close()

	posts, err := journal.RecentPosts(10)
	if err != nil || len(posts) == 0 {
		return nil
	}
	fmt.Println("\nRecent outcomes:")
	for _, p := range posts {
		line := fmt.Sprintf("%s  %-8s  %s", p.CreatedAt.Local().Format("02/01 15:04"), p.Outcome, p.SubjectName)
		if p.Detail != "" {
			line += "  (" + p.Detail + ")"
		}
		fmt.Println(line)
	}
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <name>",
	Short: "Store a publisher secret (x_username or x_password)",
	Long:  "Store a publisher secret in the platform secret store.\nThe value is read from stdin so it never lands in shell history.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(os.Stderr, "Value for %s: ", args[0])
		reader := bufio.NewReader(os.Stdin)
		value, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}
		value = strings.TrimRight(value, "\r\n")
		if value == "" {
			return fmt.Errorf("empty secret value")
		}

		if err := config.SetSecret(args[0], value); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
