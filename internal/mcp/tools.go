package mcp

import "github.com/mark3labs/mcp-go/mcp"

var normalizeToolDef = mcp.NewTool("answer_normalize",
	mcp.WithDescription("Repair the markdown of a model-generated answer: heading and list marker spacing, stray \"--\" separators, blank lines between blocks."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Raw answer text"),
	),
)

var renderToolDef = mcp.NewTool("answer_render",
	mcp.WithDescription("Normalize a raw answer and render it. html is the tolerant renderer used for display; commonmark is a strict reference rendering."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Raw answer text"),
	),
	mcp.WithString("format",
		mcp.Description("Output format (default html)"),
		mcp.Enum("html", "text", "commonmark"),
	),
)

var askToolDef = mcp.NewTool("answer_ask",
	mcp.WithDescription("Ask the answer backend a question and return the raw and rendered answer. With question_id the question comes from the library and may be served from cache."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("Question text"),
	),
	mcp.WithString("user_id",
		mcp.Description("User the answer is recorded for (default from config)"),
	),
	mcp.WithString("role",
		mcp.Description("Asker role (default from config)"),
	),
	mcp.WithString("specialization",
		mcp.Description("Asker specialization (default from config)"),
	),
	mcp.WithNumber("question_id",
		mcp.Description("Library question ID"),
	),
)

var suggestToolDef = mcp.NewTool("suggest_questions",
	mcp.WithDescription("Fetch follow-up question suggestions for an answered question. Tries the stream first and falls back to HTTP; never fails, an empty list means no suggestions."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("user_question",
		mcp.Required(),
		mcp.Description("The question that was answered"),
	),
	mcp.WithString("bot_answer",
		mcp.Required(),
		mcp.Description("The answer (truncated before sending)"),
	),
	mcp.WithString("role",
		mcp.Description("Asker role"),
	),
	mcp.WithString("specialization",
		mcp.Description("Asker specialization"),
	),
)

var historyListToolDef = mcp.NewTool("history_list",
	mcp.WithDescription("List a user's answered questions, newest first."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("user_id",
		mcp.Description("User ID (default from config)"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Maximum entries to return (default all)"),
	),
)

var historyClearToolDef = mcp.NewTool("history_clear",
	mcp.WithDescription("Delete a user's history on the backend. Requires confirm=true."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("user_id",
		mcp.Description("User ID (default from config)"),
	),
	mcp.WithBoolean("confirm",
		mcp.Required(),
		mcp.Description("Must be true"),
	),
)
