// Package migrations embeds the SQL schema files.
package migrations

import (
	"embed"
	"io/fs"
	"slices"
	"strings"
)

//go:embed *.sql
var FS embed.FS

// Up returns the forward migration files in apply order.
func Up() ([]string, error) {
	return list(func(name string) bool {
		return strings.HasSuffix(name, ".sql") && !strings.HasSuffix(name, ".down.sql")
	}, false)
}

// Down returns the rollback files in apply order (newest first).
func Down() ([]string, error) {
	return list(func(name string) bool { return strings.HasSuffix(name, ".down.sql") }, true)
}

func list(keep func(string) bool, reverse bool) ([]string, error) {
	entries, err := fs.ReadDir(FS, ".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && keep(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	if reverse {
		slices.Reverse(names)
	}
	return names, nil
}
