package mcp

import "github.com/mark3labs/mcp-go/mcp"

var kindProperty = []mcp.PropertyOption{
	mcp.Required(),
	mcp.Enum("notes", "mcqs", "flashcards"),
	mcp.Description("Content type"),
}

func generateToolDef(name, what string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription("Generate "+what+" from an uploaded PDF. Returns the page state; a generated page is kept for follow-ups until the server exits."),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Uploaded item ID (from file_upload)")),
		mcp.WithString("item_name", mcp.Description("Display name of the item, used when saving")),
	)
}

func followUpToolDef(name, what string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription("Revise previously generated "+what+" with a natural-language instruction. The content is replaced wholesale."),
		mcp.WithString("item_id", mcp.Required(), mcp.Description("Item ID passed to the generate tool")),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("What to change, e.g. \"make it shorter\"")),
	)
}

var (
	notesGenerateToolDef      = generateToolDef("notes_generate", "structured notes and a PDF export")
	notesFollowUpToolDef      = followUpToolDef("notes_follow_up", "notes")
	mcqsGenerateToolDef       = generateToolDef("mcqs_generate", "multiple-choice questions")
	mcqsFollowUpToolDef       = followUpToolDef("mcqs_follow_up", "multiple-choice questions")
	flashcardsGenerateToolDef = generateToolDef("flashcards_generate", "flashcards")
	flashcardsFollowUpToolDef = followUpToolDef("flashcards_follow_up", "flashcards")
)

var contentSaveToolDef = mcp.NewTool("content_save",
	mcp.WithDescription("Save content for revision. Without a document, saves the last generated content for the item."),
	mcp.WithString("kind", kindProperty...),
	mcp.WithString("item_id", mcp.Required(), mcp.Description("Item ID")),
	mcp.WithString("item_name", mcp.Description("Item name (defaults to the name given at generation)")),
	mcp.WithObject("document", mcp.Description("Document to save: a note, {questions:[...]} or {flashcards:[...]}")),
)

var contentListToolDef = mcp.NewTool("content_list",
	mcp.WithDescription("List saved content of one type."),
	mcp.WithString("kind", kindProperty...),
	mcp.WithNumber("limit", mcp.Description("Max items to return (default: all)")),
)

var contentLoadToolDef = mcp.NewTool("content_load",
	mcp.WithDescription("Load saved content. Notes may come back as a PDF reference served by the local viewer."),
	mcp.WithString("kind", kindProperty...),
	mcp.WithString("item_id", mcp.Required(), mcp.Description("Item ID")),
)

var contentDeleteToolDef = mcp.NewTool("content_delete",
	mcp.WithDescription("Delete saved content."),
	mcp.WithString("kind", kindProperty...),
	mcp.WithString("item_id", mcp.Required(), mcp.Description("Item ID")),
)

var fileUploadToolDef = mcp.NewTool("file_upload",
	mcp.WithDescription("Upload a local PDF. Returns the item ID used by the generate tools."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path to a .pdf file")),
)
