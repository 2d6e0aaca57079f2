package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/memomind/internal/config"
	"github.com/hpungsan/memomind/internal/document"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"notes", "mcqs", "flashcards", "content", "file"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"notes_generate": {
		def:     notesGenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.generate(document.KindNotes) },
	},
	"notes_follow_up": {
		def:     notesFollowUpToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.followUp(document.KindNotes) },
	},
	"mcqs_generate": {
		def:     mcqsGenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.generate(document.KindMCQs) },
	},
	"mcqs_follow_up": {
		def:     mcqsFollowUpToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.followUp(document.KindMCQs) },
	},
	"flashcards_generate": {
		def:     flashcardsGenerateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.generate(document.KindFlashcards) },
	},
	"flashcards_follow_up": {
		def:     flashcardsFollowUpToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.followUp(document.KindFlashcards) },
	},
	"content_save": {
		def:     contentSaveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSave },
	},
	"content_list": {
		def:     contentListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleList },
	},
	"content_load": {
		def:     contentLoadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLoad },
	},
	"content_delete": {
		def:     contentDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDelete },
	},
	"file_upload": {
		def:     fileUploadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpload },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "mcqs_follow_up" → "mcqs").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates an MCP server with the MemoMind tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(h *Handlers, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"memomind",
		version,
		server.WithToolCapabilities(true),
	)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves the tools over stdio. Open pages are closed on exit, which
// releases their PDF references.
func Run(h *Handlers, cfg *config.Config, version string) error {
	err := server.ServeStdio(NewServer(h, cfg, version))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.Close(ctx)
	return err
}
