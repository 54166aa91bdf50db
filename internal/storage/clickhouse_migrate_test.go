package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSQLStatements(t *testing.T) {
	content := `
-- comment only
CREATE TABLE a (x Int32);

CREATE TABLE b (
    y String
)
ENGINE = Memory;
SELECT 1`

	statements := splitSQLStatements(content)
	assert.Equal(t, []string{
		"CREATE TABLE a (x Int32)",
		"CREATE TABLE b (\n    y String\n)\nENGINE = Memory",
		"SELECT 1",
	}, statements)
}

func TestEmbeddedClickHouseMigrations(t *testing.T) {
	content, err := clickhouseMigrationsFS.ReadFile("migrations/clickhouse/001_create_quota_activity.sql")
	assert.NoError(t, err)

	statements := splitSQLStatements(string(content))
	assert.Len(t, statements, 1)
	assert.Contains(t, statements[0], "quota_activity")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
