package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/murmurhq/murmur/internal/pipeline"
	"github.com/murmurhq/murmur/internal/storage"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return MCPDeps{Store: store}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_CaptureNote(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	handler := mcpCaptureNote(deps)

	result, err := handler(context.Background(), makeCallToolRequest("capture_note", map[string]interface{}{
		"text": "remember to buy milk",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if !strings.Contains(toolText(t, result), "processing queued") {
		t.Errorf("text = %q", toolText(t, result))
	}

	job, err := store.ClaimNextJob([]string{pipeline.JobTypeNoteProcess})
	if err != nil || job == nil {
		t.Fatalf("expected a queued job, got %v, %v", job, err)
	}
	var payload pipeline.NotePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.Text != "remember to buy milk" || payload.OwnerID != 1 {
		t.Errorf("payload = %+v", payload)
	}
}

func TestMCPTool_CaptureNote_RequiresText(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpCaptureNote(deps)

	result, err := handler(context.Background(), makeCallToolRequest("capture_note", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing text")
	}
}

func TestMCPTool_ListActionItems(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	for _, it := range []storage.ActionItem{
		{OwnerID: 1, Type: storage.ItemTask, Content: "file taxes", Status: storage.StatusPending},
		{OwnerID: 1, Type: storage.ItemShopping, Content: "buy milk", Status: storage.StatusCompleted},
		{OwnerID: 2, Type: storage.ItemTask, Content: "other user's", Status: storage.StatusPending},
	} {
		if _, err := store.CreateActionItem(it); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	handler := mcpListActionItems(deps)
	result, err := handler(context.Background(), makeCallToolRequest("list_action_items", map[string]interface{}{
		"status": "Pending",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var items []struct {
		ID      int64  `json:"id"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &items); err != nil {
		t.Fatalf("decoding items: %v", err)
	}
	if len(items) != 1 || items[0].Content != "file taxes" {
		t.Errorf("items = %+v, want only owner 1's pending item", items)
	}
}

func TestMCPTool_CompleteActionItem(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	id, err := store.CreateActionItem(storage.ActionItem{
		OwnerID: 1, Type: storage.ItemTask, Content: "file taxes", Status: storage.StatusPending,
	})
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}

	handler := mcpCompleteActionItem(deps)
	result, err := handler(context.Background(), makeCallToolRequest("complete_action_item", map[string]interface{}{
		"id": float64(id),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	item, err := store.GetActionItem(1, id)
	if err != nil {
		t.Fatalf("loading item: %v", err)
	}
	if item.Status != storage.StatusCompleted {
		t.Errorf("status = %q", item.Status)
	}

	history, err := store.ListHistory(1, 10)
	if err != nil {
		t.Fatalf("listing history: %v", err)
	}
	if len(history) != 1 || history[0].Action != storage.HistoryStatusChanged {
		t.Errorf("history = %+v", history)
	}
}

func TestMCPTool_CompleteActionItem_WrongOwner(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	id, err := store.CreateActionItem(storage.ActionItem{
		OwnerID: 2, Type: storage.ItemTask, Content: "not yours", Status: storage.StatusPending,
	})
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}

	handler := mcpCompleteActionItem(deps)
	result, err := handler(context.Background(), makeCallToolRequest("complete_action_item", map[string]interface{}{
		"id": float64(id),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for another owner's item")
	}

	item, err := store.GetActionItem(2, id)
	if err != nil {
		t.Fatalf("loading item: %v", err)
	}
	if item.Status != storage.StatusPending {
		t.Errorf("status = %q, want untouched Pending", item.Status)
	}
}
