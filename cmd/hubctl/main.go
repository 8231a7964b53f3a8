// Command hubctl is a thin RPC client for hubd: each subcommand issues one
// request and prints the reply.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/agenthub/hub/internal/rpc"
)

var (
	hubDir     string
	socketPath string
	account    string
	tokenPath  string
)

var rootCmd = &cobra.Command{
	Use:   "hubctl",
	Short: "Talk to a running hubd daemon over its RPC socket",
}

func init() {
	home, _ := os.UserHomeDir()
	defaultHubDir := filepath.Join(home, ".hub")
	rootCmd.PersistentFlags().StringVar(&hubDir, "hub-dir", defaultHubDir, "hubd's hub directory")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Override the daemon socket path (default: <hub-dir>/hub.sock)")
	rootCmd.PersistentFlags().StringVar(&account, "account", os.Getenv("HUB_ACCOUNT"), "Account name to authenticate as")
	rootCmd.PersistentFlags().StringVar(&tokenPath, "token-file", "", "Path to this account's token file (default: <hub-dir>/tokens/<account>.token)")

	rootCmd.AddCommand(pingCmd, healthCmd, sendMessageCmd, readMessagesCmd,
		updateTaskStatusCmd, handoffTaskCmd, handoffAcceptCmd,
		suggestAssigneeCmd, searchKnowledgeCmd, indexNoteCmd)
}

func resolveSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	return filepath.Join(hubDir, "hub.sock")
}

func readToken() (string, error) {
	path := tokenPath
	if path == "" {
		path = filepath.Join(hubDir, "tokens", account+".token")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hubctl: read token %s: %w", path, err)
	}
	return string(data), nil
}

func dial() (*rpc.Client, error) {
	if account == "" {
		return nil, fmt.Errorf("hubctl: --account is required")
	}
	token, err := readToken()
	if err != nil {
		return nil, err
	}
	return rpc.Dial(resolveSocketPath(), account, token, 5*time.Second)
}

func call(typ string, data map[string]interface{}) error {
	client, err := dial()
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := client.Call(typ, data)
	if err != nil {
		return err
	}
	if reply.Error != "" {
		return fmt.Errorf("hubctl: %s: %s", reply.Type, reply.Error)
	}
	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping the daemon",
	RunE:  func(cmd *cobra.Command, args []string) error { return call(rpc.TypePing, nil) },
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Fetch daemon health and metrics",
	RunE:  func(cmd *cobra.Command, args []string) error { return call(rpc.TypeHealthCheck, nil) },
}

var sendMessageCmd = &cobra.Command{
	Use:   "send-message <to> <body>",
	Short: "Send a message to another account's mailbox",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(rpc.TypeSendMessage, map[string]interface{}{"to": args[0], "body": args[1]})
	},
}

var readMessagesCmd = &cobra.Command{
	Use:   "read-messages",
	Short: "Read and mark-read this account's unread messages",
	RunE:  func(cmd *cobra.Command, args []string) error { return call(rpc.TypeReadMessages, nil) },
}

var updateTaskStatusCmd = &cobra.Command{
	Use:   "update-task-status <taskId> <verb>",
	Short: "Apply a state transition to a task (start|submit_review|accept|reject)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(rpc.TypeUpdateTaskStatus, map[string]interface{}{"taskId": args[0], "verb": args[1], "assignee": account})
	},
}

var handoffTaskCmd = &cobra.Command{
	Use:   "handoff-task <taskId> <to> <content>",
	Short: "Record a handoff to another account",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(rpc.TypeHandoffTask, map[string]interface{}{"taskId": args[0], "from": account, "to": args[1], "content": args[2]})
	},
}

var handoffAcceptCmd = &cobra.Command{
	Use:   "handoff-accept <taskId>",
	Short: "Begin auto-acceptance for a task's most recent handoff",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(rpc.TypeHandoffAccept, map[string]interface{}{"taskId": args[0]})
	},
}

var suggestAssigneeCmd = &cobra.Command{
	Use:   "suggest-assignee [skills...]",
	Short: "Rank candidate assignees by capability fit",
	RunE: func(cmd *cobra.Command, args []string) error {
		skills := make([]interface{}, len(args))
		for i, s := range args {
			skills[i] = s
		}
		return call(rpc.TypeSuggestAssignee, map[string]interface{}{"skills": skills})
	},
}

var searchKnowledgeCmd = &cobra.Command{
	Use:   "search-knowledge <query>",
	Short: "Search the in-memory knowledge index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(rpc.TypeSearchKnowledge, map[string]interface{}{"query": args[0]})
	},
}

var indexNoteCmd = &cobra.Command{
	Use:   "index-note <title> <content>",
	Short: "Add a note to the knowledge index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call(rpc.TypeIndexNote, map[string]interface{}{"title": args[0], "content": args[1]})
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
