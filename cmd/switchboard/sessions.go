package switchboard

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/switchboard-dev/switchboard/pkg/config"
	"github.com/switchboard-dev/switchboard/pkg/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect stored sessions",
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session with its full event log",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its events",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func openSessions() (*session.Service, func(), error) {
	cfg := config.Current()
	sessionStore, err := session.NewStore(cfg.Store.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session store: %w", err)
	}
	return session.NewService(sessionStore), func() { _ = sessionStore.Close() }, nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	sessions, closeStore, err := openSessions()
	if err != nil {
		return err
	}
	defer closeStore()

	appName := config.Current().Agent.Name
	id := args[0]
	sess, err := sessions.GetSession(context.Background(), appName, id, id, nil)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if sess == nil {
		return fmt.Errorf("session %q not found", id)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sess)
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	sessions, closeStore, err := openSessions()
	if err != nil {
		return err
	}
	defer closeStore()

	appName := config.Current().Agent.Name
	id := args[0]
	if err := sessions.DeleteSession(context.Background(), appName, id, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	fmt.Printf("session %s deleted\n", id)
	return nil
}
