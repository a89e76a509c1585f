// Command tuxdrive wires the config loader, the watcher and the reader
// together and prints what changed. It is demonstration wiring, not a
// supported CLI surface: no flags, no subcommands.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/RedDocMD/tuxdrive"
	"github.com/RedDocMD/tuxdrive/config"
)

const pollInterval = 2 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tuxdrive:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	watcher, events, err := tuxdrive.NewWatcher()
	if err != nil {
		return fmt.Errorf("build watcher: %w", err)
	}
	reader, commands, results, err := tuxdrive.NewReader()
	if err != nil {
		return fmt.Errorf("build reader: %w", err)
	}

	for _, entry := range cfg {
		if err := watcher.AddDirectory(entry.Path, entry.Recursive); err != nil {
			return fmt.Errorf("add %s: %w", entry.Path, err)
		}
	}

	errs := make(chan error, 2)
	go func() { errs <- watcher.StartPolling(pollInterval) }()
	go func() { errs <- reader.StartReader() }()
	go pump(events, commands)
	go printResults(results)

	return <-errs
}

// pump translates watcher events into reader commands: a write asks
// for fresh content, a permission change asks for the fresh mode bits.
// Create and Delete carry no content to fetch and are just logged.
func pump(events <-chan tuxdrive.Event, commands chan<- tuxdrive.ReadCommand) {
	for ev := range events {
		switch ev.Kind {
		case tuxdrive.EventWritten:
			commands <- tuxdrive.ReadCommand{Path: ev.Path, Kind: tuxdrive.ReadKindContent, EventID: ev.ID}
		case tuxdrive.EventChmod:
			commands <- tuxdrive.ReadCommand{Path: ev.Path, Kind: tuxdrive.ReadKindPermission, EventID: ev.ID}
		case tuxdrive.EventCreate, tuxdrive.EventDelete:
			fmt.Println(ev)
		}
	}
}

func printResults(results <-chan tuxdrive.ReadData) {
	for data := range results {
		switch data.Kind {
		case tuxdrive.ReadResultContent:
			fmt.Printf("event %d: %d bytes\n", data.EventID, len(data.Content))
		case tuxdrive.ReadResultPermission:
			fmt.Printf("event %d: mode %+v\n", data.EventID, data.Permission)
		case tuxdrive.ReadResultDeleted:
			fmt.Printf("event %d: gone before read\n", data.EventID)
		}
	}
}
