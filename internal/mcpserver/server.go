// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the board document collection as tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/officeboard/panel/internal/bridge"
	"github.com/officeboard/panel/internal/creator"
	"github.com/officeboard/panel/internal/documents"
	"github.com/officeboard/panel/internal/models"
)

// Server wraps the MCP server with document tools.
type Server struct {
	mcp     *server.MCPServer
	docs    *documents.Store
	creator *creator.Creator
	emitter *bridge.Emitter
}

// New creates a new MCP server with all document tools registered.
func New(docs *documents.Store, cr *creator.Creator, em *bridge.Emitter) *Server {
	s := &Server{docs: docs, creator: cr, emitter: em}

	s.mcp = server.NewMCPServer(
		"Officeboard",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List every office document on the board, in server order."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Case-insensitive substring search through document titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("create_document",
		mcp.WithDescription("Create a new office document on the board. "+
			"Supported types: docx, xlsx, pptx."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Document name without extension")),
		mcp.WithString("type", mcp.Required(), mcp.Description("Document type (docx, xlsx or pptx)")),
	), s.createDocument)

	s.mcp.AddTool(mcp.NewTool("open_document",
		mcp.WithDescription("Open a document in the backend editor."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id")),
	), s.openDocument)

	s.mcp.AddTool(mcp.NewTool("delete_document",
		mcp.WithDescription("Delete a document and its backing board item."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id")),
	), s.deleteDocument)

	s.mcp.AddTool(mcp.NewTool("convert_document",
		mcp.WithDescription("Convert a document to PDF and return the download URL."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document id")),
	), s.convertDocument)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(s.docs.Documents(), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(s.docs.Search(query), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fileType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.creator.SetName(name)
	s.creator.SetType(fileType)
	file, err := s.creator.Create(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.creator.Reset()

	if err := s.emitter.DocumentCreated(ctx, *file); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (%s)", file.Name, file.ID)), nil
}

func (s *Server) openDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, ok := s.docs.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err := s.docs.Open(ctx, doc); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("opened: %s", id)), nil
}

func (s *Server) deleteDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, ok := s.docs.Get(id)
	if !ok {
		doc = models.Document{ID: id}
	}
	if err := s.docs.Delete(ctx, doc); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) convertDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, ok := s.docs.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	fileURL, err := s.docs.DownloadPDF(ctx, doc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fileURL), nil
}
