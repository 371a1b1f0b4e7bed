package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/murmurhq/murmur/internal/config"
)

// --- note ---

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Capture and inspect notes",
}

var noteSubmitCmd = &cobra.Command{
	Use:   "submit [text]",
	Short: "Submit a note for processing",
	Long: `Submit a note for processing.

Examples:
  murmur note submit "remind me to call the dentist tomorrow at 3pm"
  murmur note submit --file ./meeting-notes.txt
  murmur note submit --audio ./memo.wav
  murmur note submit "context for the recording" --audio part1.wav --audio part2.wav`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		audio, _ := cmd.Flags().GetStringArray("audio")

		text := strings.Join(args, " ")
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			text = string(data)
		}

		if text == "" && len(audio) == 0 {
			return fmt.Errorf("note text, --file, or --audio is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var result map[string]string
		if len(audio) > 0 {
			resp, err := client.postMultipart(cmd.Context(), "/notes", text, audio)
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
		} else {
			resp, err := client.post(cmd.Context(), "/notes", map[string]any{"text": text})
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
		}

		printSuccess("Queued note %s", result["id"])
		return nil
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent notes",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/notes?limit=%d", limit))
		if err != nil {
			return err
		}

		var notes []struct {
			ID        string
			Summary   string
			Priority  string
			CreatedAt time.Time
		}
		if err := decodeJSON(resp, &notes); err != nil {
			return err
		}

		if len(notes) == 0 {
			fmt.Println("No notes found.")
			return nil
		}

		for _, n := range notes {
			summary := n.Summary
			if len(summary) > 80 {
				summary = summary[:80] + "..."
			}
			fmt.Printf("%s  %s  [%s]  %s\n",
				colorize(colorCyan, n.ID[:8]),
				n.CreatedAt.Local().Format("2006-01-02 15:04"),
				n.Priority,
				summary,
			)
		}
		return nil
	},
}

var noteShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single note as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/notes/"+args[0])
		if err != nil {
			return err
		}

		var note any
		if err := decodeJSON(resp, &note); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(note)
	},
}

func init() {
	noteSubmitCmd.Flags().String("file", "", "read note text from a file")
	noteSubmitCmd.Flags().StringArray("audio", nil, "audio file to attach (repeatable)")
	noteListCmd.Flags().Int("limit", 20, "maximum number of notes to list")
	noteCmd.AddCommand(noteSubmitCmd)
	noteCmd.AddCommand(noteListCmd)
	noteCmd.AddCommand(noteShowCmd)
}

// --- items ---

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage action items",
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List action items",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		itemType, _ := cmd.Flags().GetString("type")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/items"
		params := []string{}
		if status != "" {
			params = append(params, "status="+status)
		}
		if itemType != "" {
			params = append(params, "type="+itemType)
		}
		if len(params) > 0 {
			path += "?" + strings.Join(params, "&")
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var items []struct {
			ID      int64
			Type    string
			Content string
			Status  string
			DueDate *time.Time
		}
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}

		if len(items) == 0 {
			fmt.Println("No items found.")
			return nil
		}

		for _, it := range items {
			due := ""
			if it.DueDate != nil {
				due = "  due " + it.DueDate.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("%s  [%s/%s]  %s%s\n",
				colorize(colorCyan, fmt.Sprintf("%4d", it.ID)),
				it.Type, it.Status, it.Content, due,
			)
		}
		return nil
	},
}

var itemsAddCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Create an action item",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType, _ := cmd.Flags().GetString("type")
		due, _ := cmd.Flags().GetString("due")

		body := map[string]any{
			"content": strings.Join(args, " "),
			"type":    itemType,
		}
		if due != "" {
			parsed, err := time.ParseInLocation("2006-01-02 15:04", due, time.Local)
			if err != nil {
				return fmt.Errorf("invalid --due, want \"2006-01-02 15:04\": %w", err)
			}
			body["due_date"] = parsed.UTC().Format(time.RFC3339)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/items", body)
		if err != nil {
			return err
		}

		var created struct {
			ID      int64
			AlarmID *int64
		}
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		if created.AlarmID != nil {
			printSuccess("Created item %d (alarm %d)", created.ID, *created.AlarmID)
		} else {
			printSuccess("Created item %d", created.ID)
		}
		return nil
	},
}

var itemsCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark an action item completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/items/"+args[0], map[string]any{
			"status": "Completed",
		})
		if err != nil {
			return err
		}

		var item struct {
			ID      int64
			Content string
		}
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}

		printSuccess("Completed item %d: %s", item.ID, item.Content)
		return nil
	},
}

var itemsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent action item changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/items/history?limit=%d", limit))
		if err != nil {
			return err
		}

		var history []struct {
			Action      string
			ItemContent string
			Details     string
			CreatedAt   time.Time
		}
		if err := decodeJSON(resp, &history); err != nil {
			return err
		}

		if len(history) == 0 {
			fmt.Println("No history found.")
			return nil
		}

		for _, h := range history {
			fmt.Printf("%s  %s  %s",
				h.CreatedAt.Local().Format("2006-01-02 15:04"),
				colorize(colorBold, h.Action),
				h.ItemContent,
			)
			if h.Details != "" {
				fmt.Printf("  (%s)", h.Details)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	itemsListCmd.Flags().String("status", "", "filter by status (Pending, Completed, Dismissed)")
	itemsListCmd.Flags().String("type", "", "filter by type (Task, Reminder, Shopping, ...)")
	itemsAddCmd.Flags().String("type", "Task", "item type")
	itemsAddCmd.Flags().String("due", "", "due date, local time, \"2006-01-02 15:04\"")
	itemsHistoryCmd.Flags().Int("limit", 50, "maximum number of history rows")
	itemsCmd.AddCommand(itemsListCmd)
	itemsCmd.AddCommand(itemsAddCmd)
	itemsCmd.AddCommand(itemsCompleteCmd)
	itemsCmd.AddCommand(itemsHistoryCmd)
}

// --- alarms ---

var alarmsCmd = &cobra.Command{
	Use:   "alarms",
	Short: "List configured alarms",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/alarms")
		if err != nil {
			return err
		}

		var alarms []struct {
			ID     int64
			Time   string
			Label  string
			Active bool
		}
		if err := decodeJSON(resp, &alarms); err != nil {
			return err
		}

		if len(alarms) == 0 {
			fmt.Println("No alarms found.")
			return nil
		}

		for _, a := range alarms {
			state := "active"
			if !a.Active {
				state = "inactive"
			}
			fmt.Printf("%s  %s  %s  [%s]\n",
				colorize(colorCyan, fmt.Sprintf("%4d", a.ID)),
				colorize(colorBold, a.Time),
				a.Label, state,
			)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
