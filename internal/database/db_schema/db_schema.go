package db_schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

//go:embed *.sql
var fs embed.FS

// Apply runs every statement of every embedded SQL file, files in name
// order. All statements are idempotent.
func Apply(ctx context.Context, db *sql.DB) error {
	files, err := fs.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read embed dir: %w", err)
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}

		code, err := fs.ReadFile(f.Name())
		if err != nil {
			return err
		}
		for _, stmt := range statements(string(code)) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply %s: %w", f.Name(), err)
			}
		}
		zap.L().Info("schema applied", zap.String("file", f.Name()))
	}
	return nil
}

func statements(code string) []string {
	var out []string
	for _, s := range strings.Split(code, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
