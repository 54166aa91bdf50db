package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/estrella/internal/logging"
)

//go:embed migrations/clickhouse/*.sql
var clickhouseMigrationsFS embed.FS

// RunClickHouseMigrations applies the embedded ClickHouse schema. Every statement is
// idempotent (IF NOT EXISTS), so the files are replayed on each start.
func RunClickHouseMigrations(ctx context.Context, db *ClickHouseDB) error {
	logger := logging.FromContext(ctx)

	files, err := fs.Glob(clickhouseMigrationsFS, "migrations/clickhouse/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list clickhouse migrations: %w", err)
	}
	sort.Strings(files)

	for _, filename := range files {
		content, err := clickhouseMigrationsFS.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		for i, stmt := range splitSQLStatements(string(content)) {
			logger.WithFields(map[string]interface{}{
				"file":      filename,
				"statement": i + 1,
			}).Debugf("Executing: %s", truncate(stmt, 80))

			if err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to execute statement %d in %s: %w", i+1, filename, err)
			}
		}

		logger.WithField("file", filename).Info("Applied clickhouse migration")
	}

	return nil
}

// splitSQLStatements splits SQL content into individual statements,
// skipping comment-only lines and dropping the trailing semicolon
func splitSQLStatements(content string) []string {
	var statements []string
	var currentStmt strings.Builder

	flush := func() {
		stmt := strings.TrimSuffix(strings.TrimSpace(currentStmt.String()), ";")
		if stmt != "" {
			statements = append(statements, stmt)
		}
		currentStmt.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, "--") {
			continue
		}

		currentStmt.WriteString(line)
		currentStmt.WriteString("\n")

		if strings.HasSuffix(trimmedLine, ";") {
			flush()
		}
	}
	flush()

	return statements
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
