package tools

// Definition is one entry in the OpenAI function-calling tool schema
// sent to the LLM with every tool-enabled request.
type Definition struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function describes a callable tool.
type Function struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

// Parameters is a JSON-schema object describing tool arguments.
type Parameters struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property is one argument in a tool's parameter schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     string `json:"default,omitempty"`
}

// Definitions returns the fixed tool registry schema PRIME can invoke
// autonomously: read_file, list_directory, search_codebase, query_database.
func Definitions() []Definition {
	return []Definition{
		{
			Type: "function",
			Function: Function{
				Name: "read_file",
				Description: "Read the full contents of a file in the codebase. " +
					"Use this when you need to see actual code, config, or any file. " +
					"Always read the file before answering questions about its contents.",
				Parameters: Parameters{
					Type: "object",
					Properties: map[string]Property{
						"path": {
							Type:        "string",
							Description: "Relative path from project root. Example: 'app/main.py'",
						},
					},
					Required: []string{"path"},
				},
			},
		},
		{
			Type: "function",
			Function: Function{
				Name: "list_directory",
				Description: "List all files and subdirectories at a given path in the codebase. " +
					"Use this to explore the project structure before reading specific files.",
				Parameters: Parameters{
					Type: "object",
					Properties: map[string]Property{
						"path": {
							Type:        "string",
							Description: "Relative path to directory. Use '.' for project root.",
							Default:     ".",
						},
					},
					Required: []string{},
				},
			},
		},
		{
			Type: "function",
			Function: Function{
				Name: "search_codebase",
				Description: "Search all files under a directory for a query string. " +
					"Use this to find where a function, class, variable, or pattern is defined or used. " +
					"Returns matching file paths and line previews.",
				Parameters: Parameters{
					Type: "object",
					Properties: map[string]Property{
						"query": {
							Type:        "string",
							Description: "String to search for (function name, class, variable, pattern)",
						},
						"directory": {
							Type:        "string",
							Description: "Directory to search under",
							Default:     "app",
						},
						"file_extension": {
							Type:        "string",
							Description: "File extension filter",
							Default:     ".py",
						},
					},
					Required: []string{"query"},
				},
			},
		},
		{
			Type: "function",
			Function: Function{
				Name: "query_database",
				Description: "Run a read-only SELECT query on the PostgreSQL database. " +
					"Use this to inspect table schemas, row counts, or data. " +
					"Only SELECT statements are permitted.",
				Parameters: Parameters{
					Type: "object",
					Properties: map[string]Property{
						"sql": {
							Type:        "string",
							Description: "A read-only SELECT SQL query",
						},
					},
					Required: []string{"sql"},
				},
			},
		},
	}
}

// Names returns the tool names in registry order.
func Names() []string {
	defs := Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Function.Name
	}
	return names
}
