package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/murmurhq/murmur/internal/pipeline"
	"github.com/murmurhq/murmur/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store *storage.Store
}

// NewMCPServer creates an MCP server exposing note capture and action item
// management to local agents.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"murmur",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("murmur — local voice note pipeline: capture notes, track extracted action items."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("capture_note",
			mcp.WithDescription("Capture a text note. It is processed asynchronously: action items, alarms and intents are extracted in the background."),
			mcp.WithString("text", mcp.Description("The note content"), mcp.Required()),
			mcp.WithNumber("user_id", mcp.Description("Owner user id (default 1)")),
		),
		mcpCaptureNote(deps),
	)

	s.AddTool(
		mcp.NewTool("list_action_items",
			mcp.WithDescription("List action items, optionally filtered by status (Pending, Completed, Dismissed) and type."),
			mcp.WithString("status", mcp.Description("Filter by status")),
			mcp.WithString("type", mcp.Description("Filter by item type (Task, Reminder, Shopping, Fact, StudyNote, Habit, Meeting)")),
			mcp.WithNumber("user_id", mcp.Description("Owner user id (default 1)")),
		),
		mcpListActionItems(deps),
	)

	s.AddTool(
		mcp.NewTool("complete_action_item",
			mcp.WithDescription("Mark a pending action item as completed."),
			mcp.WithNumber("id", mcp.Description("Action item id"), mcp.Required()),
			mcp.WithNumber("user_id", mcp.Description("Owner user id (default 1)")),
		),
		mcpCompleteActionItem(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"murmur://notifications",
			"Unread Notifications",
			mcp.WithResourceDescription("Unread notifications (search results and system events)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceNotifications(deps),
	)

	return s
}

func mcpOwner(req mcp.CallToolRequest) int64 {
	id := req.GetInt("user_id", 1)
	if id <= 0 {
		id = 1
	}
	return int64(id)
}

func mcpCaptureNote(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		owner := mcpOwner(req)
		noteID := uuid.New().String()
		if err := deps.Store.CreateNote(storage.Note{
			ID:       noteID,
			OwnerID:  owner,
			Content:  "Processing...",
			Summary:  "Processing...",
			Priority: storage.PriorityLow,
		}); err != nil {
			return mcpError(fmt.Sprintf("failed to save note: %v", err)), nil
		}

		payload, err := json.Marshal(pipeline.NotePayload{
			NoteID:  noteID,
			OwnerID: owner,
			Text:    text,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal job payload: %v", err)), nil
		}
		if err := deps.Store.EnqueueJob(storage.Job{
			ID:          uuid.New().String(),
			Type:        pipeline.JobTypeNoteProcess,
			PayloadJSON: string(payload),
		}); err != nil {
			return mcpError(fmt.Sprintf("saved note but failed to queue processing: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Captured note %s, processing queued", noteID)), nil
	}
}

func mcpListActionItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		itemType := storage.ItemType(req.GetString("type", ""))
		status := storage.ItemStatus(req.GetString("status", ""))

		items, err := deps.Store.ListActionItems(mcpOwner(req), itemType, status)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list items: %v", err)), nil
		}
		if len(items) == 0 {
			return mcpText("[]"), nil
		}

		type itemResult struct {
			ID      int64  `json:"id"`
			Type    string `json:"type"`
			Content string `json:"content"`
			Status  string `json:"status"`
			DueDate string `json:"due_date,omitempty"`
		}

		results := make([]itemResult, len(items))
		for i, it := range items {
			results[i] = itemResult{
				ID:      it.ID,
				Type:    string(it.Type),
				Content: it.Content,
				Status:  string(it.Status),
			}
			if it.DueDate != nil {
				results[i].DueDate = it.DueDate.Format(time.RFC3339)
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal items: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCompleteActionItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		owner := mcpOwner(req)
		item, err := deps.Store.GetActionItem(owner, int64(id))
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNotOwner) {
			return mcpError(fmt.Sprintf("item %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get item: %v", err)), nil
		}
		if item.Status == storage.StatusCompleted {
			return mcpText(fmt.Sprintf("Item %d is already completed", id)), nil
		}

		prev := item.Status
		item.Status = storage.StatusCompleted
		if err := deps.Store.UpdateActionItem(item); err != nil {
			return mcpError(fmt.Sprintf("failed to update item: %v", err)), nil
		}
		if err := deps.Store.AddHistory(storage.History{
			OwnerID:     owner,
			ItemContent: item.Content,
			ItemType:    item.Type,
			Action:      storage.HistoryStatusChanged,
			Details:     fmt.Sprintf("Marked as Completed (prev: %s)", prev),
		}); err != nil {
			return mcpError(fmt.Sprintf("item updated but history failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Completed item %d: %s", id, item.Content)), nil
	}
}

func mcpResourceNotifications(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		notifs, err := deps.Store.ListUnreadNotifications(1)
		if err != nil {
			return nil, fmt.Errorf("failed to list notifications: %w", err)
		}

		type notifSummary struct {
			ID        int64  `json:"id"`
			Type      string `json:"type"`
			Title     string `json:"title"`
			Message   string `json:"message"`
			CreatedAt string `json:"created_at"`
		}

		summaries := make([]notifSummary, len(notifs))
		for i, n := range notifs {
			summaries[i] = notifSummary{
				ID:        n.ID,
				Type:      n.Type,
				Title:     n.Title,
				Message:   n.Message,
				CreatedAt: n.CreatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notifications: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
