package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"fclink/internal/domain/customer"
	"fclink/internal/infrastructure/filestore"
	"fclink/internal/infrastructure/postgres"
	"fclink/internal/infrastructure/redisstore"
	"fclink/internal/shared/auth"
	"fclink/internal/shared/config"
)

const usage = `fclink Admin CLI - Management commands for the linking API

Usage:
  admin <command> [options]

Commands:
  hash-password   Generate a bcrypt hash for ADMIN_PASSWORD_HASH
  sweep           One-shot sweep: fail pending sessions older than a cutoff
  list-sessions   Print every linking session in the store

Examples:
  # Generate the admin credential hash (reads the password from stdin)
  admin hash-password

  # Fail pending sessions older than 24 hours
  admin sweep --max-age=24h

  # List all sessions across customers
  admin list-sessions
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	command := os.Args[1]

	var err error
	switch command {
	case "hash-password":
		err = runHashPassword()
	case "sweep":
		err = runSweep(os.Args[2:])
	case "list-sessions":
		err = runListSessions()
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func runHashPassword() error {
	fmt.Fprint(os.Stderr, "Password: ")
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	fmt.Println(hash)
	return nil
}

func runSweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	maxAge := fs.Duration("max-age", 24*time.Hour, "fail pending sessions older than this")
	fs.Parse(args)

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	all, err := store.GetAll(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-*maxAge)
	failed := customer.StatusFailed

	var swept int
	for customerID, c := range all {
		for stateID, session := range c.Sessions {
			if session.Status != customer.StatusPending || session.CreatedAt.After(cutoff) {
				continue
			}
			if err := store.UpdateSession(ctx, customerID, stateID, customer.SessionUpdate{Status: &failed}); err != nil {
				log.Printf("Failed to expire session %s: %v", stateID, err)
				continue
			}
			swept++
		}
	}

	fmt.Printf("Marked %d stale pending sessions failed\n", swept)
	return nil
}

func runListSessions() error {
	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	all, err := store.GetAll(ctx)
	if err != nil {
		return err
	}

	for customerID, c := range all {
		for stateID, session := range c.Sessions {
			fmt.Printf("%s\t%s\t%s\t%s\n", customerID, stateID, session.Status, session.CreatedAt.Format(time.RFC3339))
		}
	}
	return nil
}

// openStore connects the configured backend, mirroring the API server's
// selection logic.
func openStore() (customer.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Store.Backend {
	case "file":
		store, err := filestore.New(cfg.Store.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "postgres":
		db, err := postgres.New(cfg.Store.Database.ConnectionString())
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewCustomerRepository(db), func() { db.Close() }, nil
	case "redis":
		store, err := redisstore.New(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
