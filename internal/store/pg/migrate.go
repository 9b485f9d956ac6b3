package pg

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// Formato de archivo: {version}_{name}.sql (ej: 0001_init.sql)
var migrationFilePattern = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

type Migration struct {
	Version int
	Name    string
	SQL     string
}

type MigrationResult struct {
	Applied  []int
	Skipped  []int
	Duration time.Duration
}

// Migrator aplica migraciones SQL embebidas usando el pool pgx.
type Migrator struct {
	fsys fs.FS
	dir  string
}

func NewMigrator(fsys embed.FS, dir string) *Migrator {
	return &Migrator{fsys: fsys, dir: dir}
}

// ParseMigrations lee las migraciones ordenadas por versión.
func (m *Migrator) ParseMigrations() ([]Migration, error) {
	var out []Migration
	err := fs.WalkDir(m.fsys, m.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		matches := migrationFilePattern.FindStringSubmatch(path.Base(p))
		if matches == nil {
			return nil
		}
		version, _ := strconv.Atoi(matches[1])
		content, err := fs.ReadFile(m.fsys, p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		out = append(out, Migration{Version: version, Name: matches[2], SQL: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate aplica las migraciones pendientes, cada una en su propia tx.
func (s *Store) Migrate(ctx context.Context, m *Migrator) (*MigrationResult, error) {
	start := time.Now()
	res := &MigrationResult{}

	const ensure = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := s.pool.Exec(ctx, ensure); err != nil {
		return nil, fmt.Errorf("creating migrations table: %w", err)
	}

	applied := map[int]bool{}
	rows, err := s.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("getting applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	if err != nil {
		return nil, fmt.Errorf("getting applied migrations: %w", err)
	}
	for _, v := range versions {
		applied[int(v)] = true
	}

	migs, err := m.ParseMigrations()
	if err != nil {
		return nil, fmt.Errorf("parsing migrations: %w", err)
	}

	for _, mig := range migs {
		if applied[mig.Version] {
			res.Skipped = append(res.Skipped, mig.Version)
			continue
		}
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return res, fmt.Errorf("applying migration %d_%s: %w", mig.Version, mig.Name, err)
		}
		res.Applied = append(res.Applied, mig.Version)
	}
	res.Duration = time.Since(start)
	return res, nil
}
