// Package tools implements the fixed tool registry PRIME invokes during
// tool-enabled chat: codebase reads, searches, and read-only SQL.
//
// Execution errors are returned to the model as readable JSON strings,
// never as Go errors. A tool failure is evidence the model must reason
// about, not a pipeline failure.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	maxFileSize = 60_000 // bytes per readable file
	maxSQLRows  = 50
	maxHits     = 10 // files returned per search
	maxHitLines = 6  // line previews per file
)

var allowedExtensions = map[string]bool{
	".py": true, ".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".cfg": true, ".ini": true,
	".md": true, ".txt": true, ".sql": true, ".ps1": true, ".sh": true,
}

// Registry executes tools against a confined project root and a shared
// read-only database handle.
type Registry struct {
	root   string
	db     *sqlx.DB
	logger *zap.Logger
}

// NewRegistry creates a registry rooted at root. db may be nil; the
// query_database tool then reports the database as unavailable.
func NewRegistry(root string, db *sqlx.DB, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	return &Registry{root: abs, db: db, logger: logger}
}

// Execute runs a tool by name and returns the result as a JSON string.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) string {
	var result interface{}
	switch name {
	case "read_file":
		result = r.readFile(stringArg(args, "path", ""))
	case "list_directory":
		result = r.listDirectory(stringArg(args, "path", "."))
	case "search_codebase":
		result = r.searchCodebase(
			stringArg(args, "query", ""),
			stringArg(args, "directory", "app"),
			stringArg(args, "file_extension", ".py"),
		)
	case "query_database":
		result = r.queryDatabase(ctx, stringArg(args, "sql", ""))
	default:
		result = map[string]string{"error": fmt.Sprintf("Unknown tool: %s", name)}
	}

	out, err := json.Marshal(result)
	if err != nil {
		out, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	r.logger.Debug("tool executed",
		zap.String("tool", name),
		zap.Int("result_bytes", len(out)),
	)
	return string(out)
}

// safeResolve joins path onto the project root and rejects traversal
// outside it.
func (r *Registry) safeResolve(path string) (string, bool) {
	full := filepath.Clean(filepath.Join(r.root, path))
	if full != r.root && !strings.HasPrefix(full, r.root+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func (r *Registry) readFile(path string) interface{} {
	full, ok := r.safeResolve(path)
	if !ok {
		return map[string]string{"error": "Path traversal blocked.", "path": path}
	}
	info, err := os.Stat(full)
	if err != nil {
		return map[string]string{"error": fmt.Sprintf("File not found: %s", path), "path": path}
	}
	if info.IsDir() {
		return map[string]string{"error": fmt.Sprintf("%s is a directory. Use list_directory instead.", path), "path": path}
	}
	if !allowedExtensions[filepath.Ext(full)] {
		return map[string]string{"error": fmt.Sprintf("Extension '%s' not allowed.", filepath.Ext(full)), "path": path}
	}
	if info.Size() > maxFileSize {
		return map[string]string{"error": fmt.Sprintf("File too large (%d bytes). Max %d.", info.Size(), maxFileSize), "path": path}
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return map[string]string{"error": err.Error(), "path": path}
	}
	return map[string]interface{}{
		"content": string(content),
		"path":    path,
		"size":    info.Size(),
		"lines":   strings.Count(string(content), "\n") + 1,
	}
}

func (r *Registry) listDirectory(path string) interface{} {
	full, ok := r.safeResolve(path)
	if !ok {
		return map[string]string{"error": "Path traversal blocked."}
	}
	info, err := os.Stat(full)
	if err != nil {
		return map[string]string{"error": fmt.Sprintf("Directory not found: %s", path)}
	}
	if !info.IsDir() {
		return map[string]string{"error": fmt.Sprintf("%s is a file. Use read_file instead.", path)}
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return map[string]string{"error": err.Error()}
	}

	files := []map[string]interface{}{}
	directories := []map[string]interface{}{}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || name == "__pycache__" {
			continue
		}
		rel, _ := filepath.Rel(r.root, filepath.Join(full, name))
		if e.IsDir() {
			directories = append(directories, map[string]interface{}{"name": name, "path": rel})
			continue
		}
		if !allowedExtensions[filepath.Ext(name)] {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, map[string]interface{}{"name": name, "path": rel, "size": fi.Size()})
	}
	return map[string]interface{}{"path": path, "files": files, "directories": directories}
}

type searchHit struct {
	Path       string       `json:"path"`
	MatchCount int          `json:"match_count"`
	Lines      []searchLine `json:"lines"`
}

type searchLine struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
}

func (r *Registry) searchCodebase(query, directory, ext string) interface{} {
	if query == "" {
		return map[string]string{"error": "query is required"}
	}
	full, ok := r.safeResolve(directory)
	if !ok {
		return map[string]string{"error": "Path traversal blocked."}
	}
	if info, err := os.Stat(full); err != nil || !info.IsDir() {
		return map[string]string{"error": fmt.Sprintf("Directory not found: %s", directory)}
	}

	queryLower := strings.ToLower(query)
	var results []searchHit

	var paths []string
	_ = filepath.WalkDir(full, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.Contains(p, "__pycache__") || !strings.HasSuffix(p, ext) {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	sort.Strings(paths)

	for _, p := range paths {
		if len(results) >= maxHits {
			break
		}
		info, err := os.Stat(p)
		if err != nil || info.Size() > maxFileSize {
			continue
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		content := string(raw)
		if !strings.Contains(strings.ToLower(content), queryLower) {
			continue
		}
		var lines []searchLine
		for i, line := range strings.Split(content, "\n") {
			if strings.Contains(strings.ToLower(line), queryLower) {
				lines = append(lines, searchLine{Line: i + 1, Content: strings.TrimSpace(line)})
				if len(lines) >= maxHitLines {
					break
				}
			}
		}
		rel, _ := filepath.Rel(r.root, p)
		results = append(results, searchHit{Path: rel, MatchCount: len(lines), Lines: lines})
	}

	return map[string]interface{}{"query": query, "directory": directory, "results": results}
}

func (r *Registry) queryDatabase(ctx context.Context, sql string) interface{} {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "SELECT") {
		return map[string]string{"error": "Only SELECT queries are allowed. No INSERT, UPDATE, DELETE, DROP, etc."}
	}
	if r.db == nil {
		return map[string]string{"error": "Database is not available."}
	}

	rows, err := r.db.QueryxContext(ctx, sql)
	if err != nil {
		return map[string]string{"error": err.Error()}
	}
	defer rows.Close()

	var out []map[string]interface{}
	count := 0
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return map[string]string{"error": err.Error()}
		}
		count++
		if count <= maxSQLRows {
			for k, v := range row {
				if b, ok := v.([]byte); ok {
					row[k] = string(b)
				}
			}
			out = append(out, row)
		}
	}
	if err := rows.Err(); err != nil {
		return map[string]string{"error": err.Error()}
	}
	return map[string]interface{}{"rows": out, "count": count}
}

func stringArg(args map[string]interface{}, key, def string) string {
	v, ok := args[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return def
	}
	return s
}
