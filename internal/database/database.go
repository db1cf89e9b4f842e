package database

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
)

// ErrNoDatabaseURL is returned when no DSN is configured anywhere.
var ErrNoDatabaseURL = errors.New("DATABASE_URL not found in config, environment or .env")

// ResolveURL prefers the configured DSN, then DATABASE_URL, then the first
// .env found walking up from the working directory.
func ResolveURL(configured string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured, nil
	}
	if direct := strings.TrimSpace(os.Getenv("DATABASE_URL")); direct != "" {
		return direct, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	envPath, err := findEnvFile(wd)
	if err != nil {
		return "", ErrNoDatabaseURL
	}
	return readEnvURL(envPath)
}

// NewDB opens a database/sql handle for the read-only conversation tables.
func NewDB(ctx context.Context, dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

// NewPool opens the pgx pool shared by the orphan store, the story service
// and River.
func NewPool(ctx context.Context, dbURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping pool: %w", err)
	}
	return pool, nil
}

// readEnvURL pulls DATABASE_URL out of a dotenv file.
func readEnvURL(envPath string) (string, error) {
	f, err := os.Open(envPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", envPath, err)
	}
	defer f.Close()

	vars, err := parseDotenv(f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", envPath, err)
	}
	value, ok := vars["DATABASE_URL"]
	if !ok {
		return "", ErrNoDatabaseURL
	}
	if value == "" {
		return "", fmt.Errorf("DATABASE_URL is empty in %s", envPath)
	}
	return value, nil
}

// parseDotenv reads KEY=VALUE lines. Comments, blank lines and an optional
// export prefix are ignored; surrounding quotes are stripped. The first
// definition of a key wins.
func parseDotenv(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		entry := strings.TrimSpace(sc.Text())
		if entry == "" || entry[0] == '#' {
			continue
		}
		key, raw, found := strings.Cut(strings.TrimPrefix(entry, "export "), "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		if _, dup := vars[key]; dup {
			continue
		}
		vars[key] = strings.TrimFunc(strings.Trim(strings.TrimSpace(raw), "\"'"), unicode.IsSpace)
	}
	return vars, sc.Err()
}

// findEnvFile returns the nearest .env at or above dir.
func findEnvFile(dir string) (string, error) {
	for cur := dir; ; {
		path := filepath.Join(cur, ".env")
		if st, err := os.Stat(path); err == nil && st.Mode().IsRegular() {
			return path, nil
		}
		up := filepath.Dir(cur)
		if up == cur {
			return "", fmt.Errorf("no .env at or above %s", dir)
		}
		cur = up
	}
}
