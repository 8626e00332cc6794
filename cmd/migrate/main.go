// Command migrate applies the embedded schema to the configured Postgres
// database and scaffolds new migration pairs.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/postcard/backend/internal/infrastructure/logger"
	"github.com/postcard/backend/internal/infrastructure/migration"
	"github.com/postcard/backend/migrations"
	"go.uber.org/zap"
)

// dbCommand runs against an open migrator
type dbCommand struct {
	arg string
	run func(m *migration.Migrator, args []string, log *zap.Logger) error
}

var dbCommands = map[string]dbCommand{
	"up": {"", func(m *migration.Migrator, _ []string, _ *zap.Logger) error {
		return m.Up()
	}},
	"down": {"", func(m *migration.Migrator, _ []string, _ *zap.Logger) error {
		return m.Down()
	}},
	"step": {"<n>", func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	}},
	"force": {"<version>", func(m *migration.Migrator, args []string, _ *zap.Logger) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(version)
	}},
	"version": {"", func(m *migration.Migrator, _ []string, log *zap.Logger) error {
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Info("Schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	}},
}

func main() {
	dir := flag.String("dir", "migrations", "where create writes new migration pairs")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{Level: *level, Format: "console", Output: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(args[0], args[1:], *dir, log); err != nil {
		log.Error("Migration command failed", zap.String("command", args[0]), zap.Error(err))
		os.Exit(1)
	}
}

func run(name string, args []string, dir string, log *zap.Logger) error {
	switch name {
	case "create":
		if len(args) == 0 {
			return fmt.Errorf("usage: migrate create <name> [description]")
		}
		description := ""
		if len(args) > 1 {
			description = args[1]
		}
		mf, err := migration.CreateMigration(dir, args[0], description)
		if err != nil {
			return err
		}
		log.Info("Migration created", zap.Uint("version", mf.Version),
			zap.String("up_file", mf.UpPath), zap.String("down_file", mf.DownPath))
		return nil
	case "list":
		versions, err := migration.Available(migrations.FS, ".")
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Println(v)
		}
		return nil
	}

	cmd, ok := dbCommands[name]
	if !ok {
		usage()
		return fmt.Errorf("unknown command %q", name)
	}
	if cmd.arg != "" && len(args) == 0 {
		return fmt.Errorf("usage: migrate %s %s", name, cmd.arg)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := migration.New(db, log)
	if err != nil {
		return err
	}
	defer m.Close()
	return cmd.run(m, args, log)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: migrate [-dir path] [-log-level level] <command>

  up | down | step <n> | force <version> | version
  create <name> [description]
  list

Connection settings come from POSTCARD_DATABASE_* like the server.`)
}
