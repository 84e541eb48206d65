package api

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// Tool names understood by ToolExecutor.
const (
	ToolRead    = "Read"
	ToolWrite   = "Write"
	ToolEdit    = "Edit"
	ToolBash    = "Bash"
	ToolGlob    = "Glob"
	ToolListDir = "ListDir"
)

// param is one input property of a tool schema.
type param struct {
	name     string
	kind     string
	doc      string
	required bool
}

func required(name, kind, doc string) param { return param{name, kind, doc, true} }
func optional(name, kind, doc string) param { return param{name, kind, doc, false} }

func defineTool(name, doc string, params ...param) anthropic.ToolUnionParam {
	props := make(map[string]any, len(params))
	var req []string
	for _, p := range params {
		props[p.name] = map[string]any{"type": p.kind, "description": p.doc}
		if p.required {
			req = append(req, p.name)
		}
	}
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        name,
			Description: anthropic.String(doc),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: props, Required: req},
		},
	}
}

// ToolDefinitions returns the tool schemas offered to a specialist. Paths are
// resolved against the working directory and may not leave it.
func ToolDefinitions() []anthropic.ToolUnionParam {
	const rel = ", relative to the working directory"
	return []anthropic.ToolUnionParam{
		defineTool(ToolRead, "Return a file's contents with 1-based line numbers.",
			required("file_path", "string", "File to read"+rel),
			optional("offset", "integer", "First line to return (1-based)"),
			optional("limit", "integer", "Maximum number of lines to return"),
		),
		defineTool(ToolWrite, "Create or overwrite a file. Missing parent directories are created.",
			required("file_path", "string", "File to write"+rel),
			required("content", "string", "Full new file content"),
		),
		defineTool(ToolEdit, "Replace text in a file. old_string must occur exactly once unless replace_all is set.",
			required("file_path", "string", "File to edit"+rel),
			required("old_string", "string", "Exact text to replace"),
			required("new_string", "string", "Replacement text"),
			optional("replace_all", "boolean", "Replace every occurrence"),
		),
		defineTool(ToolBash, "Run a shell command in the working directory and return its combined output.",
			required("command", "string", "Command line passed to sh -c"),
			optional("timeout", "integer", "Timeout in milliseconds (default 120000)"),
		),
		defineTool(ToolGlob, "Recursively find files whose name matches a pattern.",
			required("pattern", "string", "File name pattern, e.g. '*.go'"),
			optional("path", "string", "Directory to search"+rel+" (default: the working directory)"),
		),
		defineTool(ToolListDir, "List the entries of a directory.",
			required("path", "string", "Directory to list"+rel),
		),
	}
}
