// Command migrate применяет миграции схемы jobs и job_applications.
//
//	migrate [flags] up [N]
//	migrate [flags] down [N]
//	migrate [flags] force VERSION
//	migrate [flags] version
//	migrate [flags] drop
//	migrate [flags] create NAME
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/Haleralex/jobboard/internal/config"
	"github.com/Haleralex/jobboard/internal/pkg/logger"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type options struct {
	migrationsPath string
	databaseURL    string
}

func run(argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "configs", "Directory with config.yaml")
	migrationsPath := fs.String("path", "", "Migrations directory (default: database.migrations_path)")
	databaseURL := fs.String("database-url", "", "Database URL (default: $DATABASE_URL, then config)")
	if err := fs.Parse(argv); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, "config")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Setup(&logger.Config{Level: cfg.Log.Level, Format: "text", Output: os.Stderr})

	opts := options{migrationsPath: *migrationsPath, databaseURL: *databaseURL}
	if opts.migrationsPath == "" {
		opts.migrationsPath = cfg.Database.MigrationsPath
	}
	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		opts.databaseURL = cfg.Database.DSN()
	}

	args := fs.Args()
	command := "up"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	// create работает только с файлами, БД не нужна
	if command == "create" {
		if len(args) == 0 {
			return errors.New("create requires a migration name")
		}
		up, down, err := createMigration(opts.migrationsPath, args[0])
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}
		slog.Info("Migration created", slog.String("up", up), slog.String("down", down))
		return nil
	}

	handler, ok := commands[command]
	if !ok {
		return fmt.Errorf("unknown command %q (available: up, down, force, version, drop, create)", command)
	}

	m, err := migrate.New("file://"+opts.migrationsPath, opts.databaseURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()
	m.Log = migrationLogger{log: slog.Default().With(slog.String("component", "migrate"))}

	return handler(m, args, stdout)
}

type command func(m *migrate.Migrate, args []string, stdout io.Writer) error

var commands = map[string]command{
	"up": func(m *migrate.Migrate, args []string, _ io.Writer) error {
		return migrateSteps(m, args, 1, m.Up)
	},
	"down": func(m *migrate.Migrate, args []string, _ io.Writer) error {
		return migrateSteps(m, args, -1, m.Down)
	},
	"force": func(m *migrate.Migrate, args []string, _ io.Writer) error {
		if len(args) == 0 {
			return errors.New("force requires a version")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		if err := m.Force(version); err != nil {
			return fmt.Errorf("force: %w", err)
		}
		slog.Info("Version forced", slog.Int("version", version))
		return nil
	},
	"version": func(m *migrate.Migrate, _ []string, stdout io.Writer) error {
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			_, err = fmt.Fprintln(stdout, "No migrations applied yet")
			return err
		case err != nil:
			return fmt.Errorf("version: %w", err)
		}
		_, err = fmt.Fprintf(stdout, "Current version: %d (dirty: %v)\n", version, dirty)
		return err
	},
	"drop": func(m *migrate.Migrate, _ []string, _ io.Writer) error {
		if err := m.Drop(); err != nil {
			return fmt.Errorf("drop: %w", err)
		}
		slog.Info("All tables dropped")
		return nil
	},
}

// migrateSteps выполняет N шагов в направлении sign или все миграции через all.
// ErrNoChange не считается ошибкой.
func migrateSteps(m *migrate.Migrate, args []string, sign int, all func() error) error {
	steps, err := stepsArg(args)
	if err != nil {
		return err
	}
	if steps > 0 {
		err = m.Steps(sign * steps)
	} else {
		err = all()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return verr
	}
	slog.Info("Migrations done", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}

// stepsArg - необязательное число шагов для up/down; 0 = все.
func stepsArg(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	steps, err := strconv.Atoi(args[0])
	if err != nil || steps < 0 {
		return 0, fmt.Errorf("invalid steps argument %q", args[0])
	}
	return steps, nil
}

var (
	migrationFile = regexp.MustCompile(`^(\d+)_.+\.(up|down)\.sql$`)
	migrationName = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// createMigration создаёт пустые NNNNNN_name.up.sql и .down.sql со
// следующим свободным номером. Существующие файлы не перезаписываются.
func createMigration(dir, name string) (string, string, error) {
	if !migrationName.MatchString(name) {
		return "", "", fmt.Errorf("migration name %q must match %s", name, migrationName)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", err
	}

	next := 1
	for _, e := range entries {
		match := migrationFile.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}
		if n, err := strconv.Atoi(match[1]); err == nil && n >= next {
			next = n + 1
		}
	}

	base := filepath.Join(dir, fmt.Sprintf("%06d_%s", next, name))
	up, down := base+".up.sql", base+".down.sql"
	for _, path := range []string{up, down} {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return "", "", err
		}
		if err := f.Close(); err != nil {
			return "", "", err
		}
	}
	return up, down, nil
}

// migrationLogger передаёт вывод golang-migrate в slog.
type migrationLogger struct {
	log *slog.Logger
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.log.Info(fmt.Sprintf(format, v...))
}

func (l migrationLogger) Verbose() bool { return false }
