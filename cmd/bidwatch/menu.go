package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// runMenu is the no-arguments entry point: a small interactive loop for
// operators who prefer prompts over subcommands.
func runMenu(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Println()
		fmt.Println(colorize(colorBold, "bidwatch"))
		fmt.Println("  1) Start watching")
		fmt.Println("  2) Run one cycle")
		fmt.Println("  3) Status")
		fmt.Println("  4) Today's posted records")
		fmt.Println("  5) Clear today's history")
		fmt.Println("  q) Quit")
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}

		switch strings.TrimSpace(line) {
		case "1":
			if err := runWatch(); err != nil {
				printError("%v", err)
			}
		case "2":
			if err := runOnce(); err != nil {
				printError("%v", err)
			}
		case "3":
			if err := showStatus(); err != nil {
				printError("%v", err)
			}
		case "4":
			if err := showHistory(); err != nil {
				printError("%v", err)
			}
		case "5":
			if err := clearHistory(reader); err != nil {
				printError("%v", err)
			}
		case "q", "Q", "":
			return nil
		default:
			printWarning("unknown choice")
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// clearHistory wipes the dedup store after confirmation. Records published
// today will be posted again on the next cycle.
func clearHistory(reader *bufio.Reader) error {
	fmt.Print("This will clear today's posted-record history; records may be posted again. Continue? [y/N] ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
		fmt.Println("Aborted.")
		return nil
	}

	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	a.history.Clear()
	printSuccess("History cleared")
	return nil
}
