package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/coord/internal/db"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the coord database",
		Long:  `Initialize the coord database at ~/.coord/coord.db with the required schema.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := db.GetDBPath()
			if err != nil {
				return fmt.Errorf("failed to get database path: %w", err)
			}

			fmt.Printf("Initializing coord database at %s\n", dbPath)

			conn, err := db.GetDB()
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}

			fmt.Println("✓ Database initialized successfully")

			if seed {
				if err := db.SeedFixtures(conn); err != nil {
					return fmt.Errorf("failed to seed fixtures: %w", err)
				}
				fmt.Println("✓ Seeded demo persona fleet")
			}

			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  coord instance create reviewer-1 --role security-reviewer")
			fmt.Println("  coord serve")

			return nil
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "seed a demo persona fleet")
	return cmd
}
