package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/tg-assistant/internal/app/assistant"
	"github.com/PabloGalante/tg-assistant/internal/app/tools"
	"github.com/PabloGalante/tg-assistant/internal/domain"
)

var errCallFailed = errors.New("assistant service call failed, see log for details")

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// gatewayClient loads config for admin commands, which need no Telegram token.
func gatewayClient() (*assistant.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateGateway(); err != nil {
		return nil, err
	}
	return newAssistantClient(cfg)
}

// withClient adapts a command body that needs an assistant client.
func withClient(fn func(cmd *cobra.Command, args []string, c *assistant.Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := gatewayClient()
		if err != nil {
			return err
		}
		return fn(cmd, args, c)
	}
}

func printResult[T any](cmd *cobra.Command, v T, ok bool) error {
	if !ok {
		return errCallFailed
	}
	return printJSON(cmd.OutOrStdout(), v)
}

// ─────────────────────────────────────────
// assistants
// ─────────────────────────────────────────

func newAssistantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assistants",
		Short: "Manage assistants",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List assistants",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			return printJSON(cmd.OutOrStdout(), c.ListAssistants(cmd.Context()))
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <assistant-id>",
		Short: "Show one assistant",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			a, ok := c.RetrieveAssistant(cmd.Context(), domain.AssistantID(args[0]))
			return printResult(cmd, a, ok)
		}),
	})

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an assistant",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			spec, err := assistantSpecFromFlags(cmd)
			if err != nil {
				return err
			}
			a, ok := c.CreateAssistant(cmd.Context(), spec)
			return printResult(cmd, a, ok)
		}),
	}
	addAssistantFlags(create)
	cmd.AddCommand(create)

	update := &cobra.Command{
		Use:   "update <assistant-id>",
		Short: "Update an assistant",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			spec, err := assistantSpecFromFlags(cmd)
			if err != nil {
				return err
			}
			a, ok := c.UpdateAssistant(cmd.Context(), domain.AssistantID(args[0]), spec)
			return printResult(cmd, a, ok)
		}),
	}
	addAssistantFlags(update)
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <assistant-id>",
		Short: "Delete an assistant",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			if !c.DeleteAssistant(cmd.Context(), domain.AssistantID(args[0])) {
				return errCallFailed
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return err
		}),
	})

	return cmd
}

func addAssistantFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Assistant name.")
	cmd.Flags().String("model", "", "Model, e.g. gpt-4o.")
	cmd.Flags().String("instructions", "", "System instructions.")
	cmd.Flags().StringArray("tool", nil, "Tool to enable (repeatable): code_interpreter, retrieval, file_search, function.")
}

func assistantSpecFromFlags(cmd *cobra.Command) (domain.AssistantSpec, error) {
	name, _ := cmd.Flags().GetString("name")
	model, _ := cmd.Flags().GetString("model")
	instructions, _ := cmd.Flags().GetString("instructions")
	names, _ := cmd.Flags().GetStringArray("tool")

	toolset, err := tools.Parse(names)
	if err != nil {
		return domain.AssistantSpec{}, err
	}
	return domain.AssistantSpec{
		Name:         name,
		Model:        model,
		Instructions: instructions,
		Tools:        toolset,
	}, nil
}

// ─────────────────────────────────────────
// threads
// ─────────────────────────────────────────

func newThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Inspect conversation threads",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create an empty thread",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			id, ok := c.CreateThread(cmd.Context())
			return printResult(cmd, map[string]string{"thread_id": string(id)}, ok)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <thread-id>",
		Short: "Show one thread",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			t, ok := c.RetrieveThread(cmd.Context(), domain.ThreadID(args[0]))
			return printResult(cmd, t, ok)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a thread",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			if !c.DeleteThread(cmd.Context(), domain.ThreadID(args[0])) {
				return errCallFailed
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return err
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "messages <thread-id>",
		Short: "List the messages of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			msgs := c.ListMessages(cmd.Context(), domain.ThreadID(args[0]))
			out := make([]messageView, 0, len(msgs))
			for _, m := range msgs {
				out = append(out, messageView{
					ID:        string(m.ID),
					Role:      string(m.Role),
					Text:      assistant.ExtractText(m.Content),
					CreatedAt: m.CreatedAt.String(),
				})
			}
			return printJSON(cmd.OutOrStdout(), out)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "runs <thread-id>",
		Short: "List the runs of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			return printJSON(cmd.OutOrStdout(), c.ListRuns(cmd.Context(), domain.ThreadID(args[0])))
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps <thread-id> <run-id>",
		Short: "List the steps of a run",
		Args:  cobra.ExactArgs(2),
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			steps := c.GetRunSteps(cmd.Context(), domain.ThreadID(args[0]), domain.RunID(args[1]))
			return printJSON(cmd.OutOrStdout(), steps)
		}),
	})

	return cmd
}

type messageView struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// ─────────────────────────────────────────
// files
// ─────────────────────────────────────────

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage files available to the assistant",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List uploaded files",
		Args:  cobra.NoArgs,
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			purpose, _ := cmd.Flags().GetString("purpose")
			return printJSON(cmd.OutOrStdout(), c.ListFiles(cmd.Context(), purpose))
		}),
	}
	list.Flags().String("purpose", "", "Only files with this purpose.")
	cmd.AddCommand(list)

	upload := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a file",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			purpose, _ := cmd.Flags().GetString("purpose")
			f, ok := c.UploadFile(cmd.Context(), args[0], purpose)
			return printResult(cmd, f, ok)
		}),
	}
	upload.Flags().String("purpose", "assistants", "File purpose.")
	cmd.AddCommand(upload)

	cmd.AddCommand(&cobra.Command{
		Use:   "get <file-id>",
		Short: "Show one file",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			f, ok := c.RetrieveFile(cmd.Context(), domain.FileID(args[0]))
			return printResult(cmd, f, ok)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <file-id>",
		Short: "Delete a file",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(func(cmd *cobra.Command, args []string, c *assistant.Client) error {
			if !c.DeleteFile(cmd.Context(), domain.FileID(args[0])) {
				return errCallFailed
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return err
		}),
	})

	return cmd
}

// ─────────────────────────────────────────
// sessions
// ─────────────────────────────────────────

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored user → thread bindings",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List bindings, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), toSessionViews(entries))
		},
	}
	list.Flags().Int("limit", 50, "Maximum number of bindings to show (0 for all).")
	cmd.AddCommand(list)

	return cmd
}

type sessionView struct {
	UserID    int64  `json:"user_id"`
	ThreadID  string `json:"thread_id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toSessionViews(entries []domain.SessionEntry) []sessionView {
	out := make([]sessionView, 0, len(entries))
	for _, e := range entries {
		out = append(out, sessionView{
			UserID:    int64(e.UserID),
			ThreadID:  string(e.ThreadID),
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			UpdatedAt: e.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}
