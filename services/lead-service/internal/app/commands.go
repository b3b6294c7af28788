package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stoik/inboxiq/services/lead-service/internal/db"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run lead detection once for a user",
	Long:  "Scans the user's unlinked active threads and creates or links leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuidFlag(cmd, "user-id")
		if err != nil {
			return err
		}
		userEmail, _ := cmd.Flags().GetString("user-email")

		return withPipeline(func(ctx context.Context, p *pipeline) error {
			result, err := p.detector.Detect(ctx, userID, userEmail)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

var recencyCmd = &cobra.Command{
	Use:   "recency",
	Short: "Compute days since last contact for a lead",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuidFlag(cmd, "user-id")
		if err != nil {
			return err
		}
		leadID, err := uuidFlag(cmd, "lead-id")
		if err != nil {
			return err
		}
		save, _ := cmd.Flags().GetBool("save")

		return withPipeline(func(ctx context.Context, p *pipeline) error {
			get := p.recency.Get
			if save {
				get = p.recency.Refresh
			}
			r, err := get(ctx, userID, leadID)
			if err != nil {
				return err
			}
			return printJSON(r)
		})
	},
}

var followUpCmd = &cobra.Command{
	Use:   "followup",
	Short: "Draft a follow-up email for a lead",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuidFlag(cmd, "user-id")
		if err != nil {
			return err
		}
		leadID, err := uuidFlag(cmd, "lead-id")
		if err != nil {
			return err
		}

		return withPipeline(func(ctx context.Context, p *pipeline) error {
			draft, err := p.followUp.Generate(ctx, userID, leadID)
			if err != nil {
				return err
			}
			return printJSON(draft)
		})
	},
}

// withPipeline opens the shared pool for one command and closes it after
func withPipeline(fn func(ctx context.Context, p *pipeline) error) error {
	ctx := context.Background()

	if err := db.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	return fn(ctx, newPipeline())
}

func uuidFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	detectCmd.Flags().String("user-id", "", "Owning user ID")
	detectCmd.Flags().String("user-email", "", "The user's own email address, used to skip internal mail")
	detectCmd.MarkFlagRequired("user-id")
	detectCmd.MarkFlagRequired("user-email")

	recencyCmd.Flags().String("user-id", "", "Owning user ID")
	recencyCmd.Flags().String("lead-id", "", "Lead ID")
	recencyCmd.Flags().Bool("save", false, "Persist the result onto the lead")
	recencyCmd.MarkFlagRequired("user-id")
	recencyCmd.MarkFlagRequired("lead-id")

	followUpCmd.Flags().String("user-id", "", "Owning user ID")
	followUpCmd.Flags().String("lead-id", "", "Lead ID")
	followUpCmd.MarkFlagRequired("user-id")
	followUpCmd.MarkFlagRequired("lead-id")

	rootCmd.AddCommand(detectCmd, recencyCmd, followUpCmd)
}
