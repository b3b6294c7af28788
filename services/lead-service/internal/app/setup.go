package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stoik/inboxiq/services/lead-service/internal/db"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Setup database and optionally seed a demo thread",
	Long:  "Creates the lead pipeline tables and, with --seed, inserts an unanswered external thread for development/testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		// Initialize database
		if err := db.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		// Run migrations
		fmt.Println("Running migrations...")
		if err := db.Migrate(ctx); err != nil {
			return err
		}

		seed, _ := cmd.Flags().GetBool("seed")
		if !seed {
			fmt.Println("✓ Database setup complete.")
			return nil
		}

		fmt.Println("Inserting demo thread...")
		testUserID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
		threadID := uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
		emailID := uuid.MustParse("00000000-0000-0000-0000-0000000000b1")
		receivedAt := time.Now().Add(-5 * 24 * time.Hour)

		insertThreadSQL := `
			INSERT INTO email_threads (id, user_id, subject, gmail_thread_id, status, updated_at)
			VALUES ($1, $2, $3, $4, 'active', NOW())
			ON CONFLICT (id) DO NOTHING
		`
		if _, err := db.Pool.Exec(ctx, insertThreadSQL, threadID, testUserID, "Pricing for 50 seats", "demo-thread-1"); err != nil {
			return fmt.Errorf("failed to insert demo thread: %w", err)
		}

		insertEmailSQL := `
			INSERT INTO emails (id, user_id, thread_id, direction, from_email, to_email, subject, snippet, status, received_at, created_at)
			VALUES ($1, $2, $3, 'inbound', $4, $5, $6, $7, 'received', $8, $8)
			ON CONFLICT (id) DO NOTHING
		`
		if _, err := db.Pool.Exec(ctx, insertEmailSQL, emailID, testUserID, threadID,
			"bob.jones@other.com", "me@acme.com", "Pricing for 50 seats",
			"Hi, could you send over pricing for 50 seats?", receivedAt,
		); err != nil {
			return fmt.Errorf("failed to insert demo email: %w", err)
		}

		fmt.Printf("✓ Database setup complete. Demo user: %s (me@acme.com)\n", testUserID)
		return nil
	},
}

func init() {
	setupCmd.Flags().Bool("seed", false, "Insert a demo thread for user 00000000-0000-0000-0000-000000000001")
	rootCmd.AddCommand(setupCmd)
}
