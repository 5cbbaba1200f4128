package mcp

import "github.com/mark3labs/mcp-go/mcp"

func queryOptions(description string) []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language question about the course material"),
		),
		mcp.WithString("mode",
			mcp.Description("Retrieval mode (default semantic)"),
			mcp.Enum("semantic", "lexical"),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of passages to retrieve (default 5)"),
			mcp.Min(1),
		),
		mcp.WithArray("course",
			mcp.Description("Restrict to these courses"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("lecture",
			mcp.Description("Restrict to these lectures"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("semester",
			mcp.Description("Restrict to these semesters"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("expand",
			mcp.Description("Expand the query into variants before semantic search"),
		),
	}
}

var searchTool = mcp.NewTool("search_course_material",
	queryOptions("Search lecture slides and notes. Returns matching passages with course, lecture, semester and page.")...,
)

var askTool = mcp.NewTool("ask_course_material",
	queryOptions("Answer a question from lecture slides and notes, citing the pages used.")...,
)
