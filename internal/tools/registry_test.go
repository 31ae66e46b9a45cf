package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "app", "main.py"),
		[]byte("def handle_pdf():\n    return ingest()\n"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "app", "notes.bin"),
		[]byte("binary"), 0o644))
	return NewRegistry(root, nil, zap.NewNop()), root
}

func decode(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestReadFile(t *testing.T) {
	r, _ := testRegistry(t)
	out := decode(t, r.Execute(context.Background(), "read_file", map[string]interface{}{"path": "app/main.py"}))
	assert.Contains(t, out["content"], "handle_pdf")
	assert.Equal(t, float64(2), out["lines"])
}

func TestReadFileTraversalBlocked(t *testing.T) {
	r, _ := testRegistry(t)
	out := decode(t, r.Execute(context.Background(), "read_file", map[string]interface{}{"path": "../../etc/passwd"}))
	assert.Equal(t, "Path traversal blocked.", out["error"])
}

func TestReadFileExtensionNotAllowed(t *testing.T) {
	r, _ := testRegistry(t)
	out := decode(t, r.Execute(context.Background(), "read_file", map[string]interface{}{"path": "app/notes.bin"}))
	assert.Contains(t, out["error"], "not allowed")
}

func TestListDirectory(t *testing.T) {
	r, _ := testRegistry(t)
	out := decode(t, r.Execute(context.Background(), "list_directory", map[string]interface{}{"path": "."}))
	dirs, ok := out["directories"].([]interface{})
	require.True(t, ok)
	require.Len(t, dirs, 1)
	assert.Equal(t, "app", dirs[0].(map[string]interface{})["name"])
}

func TestSearchCodebase(t *testing.T) {
	r, _ := testRegistry(t)
	out := decode(t, r.Execute(context.Background(), "search_codebase", map[string]interface{}{
		"query": "handle_pdf", "directory": "app",
	}))
	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	hit := results[0].(map[string]interface{})
	assert.Equal(t, filepath.Join("app", "main.py"), hit["path"])
}

func TestQueryDatabaseRejectsWrites(t *testing.T) {
	r, _ := testRegistry(t)
	out := decode(t, r.Execute(context.Background(), "query_database", map[string]interface{}{
		"sql": "DROP TABLE users",
	}))
	assert.Contains(t, out["error"], "Only SELECT")
}

func TestQueryDatabase(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery("SELECT name FROM platforms").WillReturnRows(
		sqlmock.NewRows([]string{"name"}).AddRow("PRIME").AddRow("ALP"))

	r := NewRegistry(t.TempDir(), sqlx.NewDb(mockDB, "sqlmock"), zap.NewNop())
	out := decode(t, r.Execute(context.Background(), "query_database", map[string]interface{}{
		"sql": "SELECT name FROM platforms",
	}))
	assert.Equal(t, float64(2), out["count"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownTool(t *testing.T) {
	r, _ := testRegistry(t)
	out := decode(t, r.Execute(context.Background(), "launch_rocket", nil))
	assert.Contains(t, out["error"], "Unknown tool")
}
