// Package migrations embeds the schema for each supported SQL dialect.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Migration is one schema step, named "<semver>_<description>.sql".
type Migration struct {
	Name    string
	Version *semver.Version
	SQL     string
}

// Load returns the migrations of a dialect in version order.
func Load(dialect string) ([]Migration, error) {
	entries, err := fs.ReadDir(files, dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s migrations: %w", dialect, err)
	}

	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: missing version prefix", e.Name())
		}
		v, err := semver.NewVersion(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", e.Name(), err)
		}
		body, err := files.ReadFile(path.Join(dialect, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Name: e.Name(), Version: v, SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Version.LessThan(out[j].Version)
	})
	for i := 1; i < len(out); i++ {
		if out[i].Version.Equal(out[i-1].Version) {
			return nil, fmt.Errorf("duplicate migration version %s", out[i].Version)
		}
	}
	return out, nil
}
