// Command ledpanel-server stores light states for ledpanel devices and turns
// lights on when scheduled reminders fall due.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/ledpanel/internal/schedule"
	"github.com/sweeney/ledpanel/internal/stateserver"
)

func main() {
	addr := flag.String("http", ":5000", "API listen address")
	dbPath := flag.String("db", "ledpanel.db", "SQLite database path")
	chips := flag.Int("chips", 3, "Number of expanders on the panel")
	pins := flag.Int("pins", 6, "Lights per expander")
	tick := flag.Duration("tick", time.Second, "Schedule evaluation interval")
	flag.Parse()

	if *chips < 1 || *pins < 1 {
		log.Fatalf("fatal: -chips and -pins must be positive")
	}

	if err := run(*addr, *dbPath, *chips, *pins, *tick); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(addr, dbPath string, chips, pins int, tick time.Duration) error {
	store, err := stateserver.Open(dbPath, chips, pins)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	saved, err := store.Schedules()
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	sched := schedule.NewScheduler(store, saved)

	srv := &http.Server{
		Addr:              addr,
		Handler:           stateserver.NewServer(store, sched, time.Now),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sched.Run(ctx, tick, time.Now, func(err error) {
		log.Printf("schedule: %v", err)
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()
	log.Printf("started: http=%s db=%s panel=%dx%d schedules=%d", addr, dbPath, chips, pins, len(saved))

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	return nil
}
