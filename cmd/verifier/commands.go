package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/altafino/inbox-verifier/internal/models"
	"github.com/spf13/cobra"
)

var (
	verifyMarker    string
	verifyCreatedAt string
	verifyAccountID string

	sampleAccountID string
	sampleFolder    string
	sampleLimit     int
)

func init() {
	verifyCmd.Flags().StringVar(&verifyMarker, "marker", "", "unique marker embedded in the test email (required)")
	verifyCmd.Flags().StringVar(&verifyCreatedAt, "created-at", "", "test creation time, RFC3339 (narrows the search window)")
	verifyCmd.Flags().StringVar(&verifyAccountID, "account", "", "verify a single account instead of all")
	verifyCmd.MarkFlagRequired("marker")

	sampleCmd.Flags().StringVar(&sampleAccountID, "account", "", "account ID (required)")
	sampleCmd.Flags().StringVar(&sampleFolder, "folder", "", "folder name (required)")
	sampleCmd.Flags().IntVar(&sampleLimit, "limit", 10, "messages to sample")
	sampleCmd.MarkFlagRequired("account")
	sampleCmd.MarkFlagRequired("folder")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Search accounts for a marked test email and report placement",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		var createdAt *time.Time
		if verifyCreatedAt != "" {
			t, err := time.Parse(time.RFC3339, verifyCreatedAt)
			if err != nil {
				return fmt.Errorf("invalid --created-at: %w", err)
			}
			createdAt = &t
		}

		accts := rt.Accounts
		if verifyAccountID != "" {
			account, err := rt.Account(verifyAccountID)
			if err != nil {
				return err
			}
			accts = []*models.MailboxAccount{account}
		}

		results := rt.Verifier.VerifyAll(cmd.Context(), accts, verifyMarker, createdAt)
		return printJSON(results)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [account-id]",
	Short: "Test account connections and persist their status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		if len(args) == 1 {
			account, err := rt.Account(args[0])
			if err != nil {
				return err
			}
			return printJSON(rt.Verifier.CheckConnection(cmd.Context(), account))
		}
		return printJSON(rt.Verifier.CheckAllConnections(cmd.Context(), rt.Accounts))
	},
}

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "List recent messages of one folder for mapping setup",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		account, err := rt.Account(sampleAccountID)
		if err != nil {
			return err
		}

		adapter, err := rt.Adapter(account)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(rt.Config.Engine.OperationTimeout)*time.Second)
		defer cancel()

		return printJSON(adapter.FetchFolderMessages(ctx, sampleFolder, sampleLimit))
	},
}
