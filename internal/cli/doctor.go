package cli

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/coord/internal/adapters/filesystem"
	"github.com/example/coord/internal/config"
	"github.com/example/coord/internal/db"
)

// CheckResult represents the outcome of a single check
type CheckResult struct {
	Name    string
	Status  string // "✓", "⚠", "✗"
	Details string // Only shown if Status != "✓"
}

// DoctorCmd returns the doctor command for environment validation
func DoctorCmd() *cobra.Command {
	var quiet bool
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate the coordination core environment",
		Long: `Environment health check for coord.

Validates:
- Config file parses and passes validation
- SQLite database opens and answers a ping
- Responsibility matrix loads

Examples:
  coord doctor              # Run full health check
  coord doctor --quiet      # Exit code only (0=healthy, 1=issues)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := []CheckResult{}
			hasErrors := false

			cfg, configResult := checkConfig(configPath)
			results = append(results, configResult)
			results = append(results, checkDatabase(cfg))
			results = append(results, checkRaciMatrix(cfg))

			for _, r := range results {
				if r.Status == "✗" {
					hasErrors = true
					break
				}
			}

			if !quiet {
				fmt.Println()
				fmt.Println("Check              Status")
				fmt.Println("─────────────────────────")
				for _, r := range results {
					fmt.Printf("%-18s %s\n", r.Name, r.Status)
				}
				fmt.Println()

				hasDetails := false
				for _, r := range results {
					if r.Status != "✓" && r.Details != "" {
						if !hasDetails {
							fmt.Println("Details:")
							hasDetails = true
						}
						fmt.Printf("\n%s:\n%s\n", r.Name, r.Details)
					}
				}

				if hasErrors {
					fmt.Println("\n⚠ Issues found.")
				} else {
					fmt.Println("All checks passed.")
				}
			}

			if hasErrors {
				return fmt.Errorf("environment validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "exit code only, no output")
	cmd.Flags().StringVar(&configPath, "config", "", "config file to validate")
	return cmd
}

func checkConfig(path string) (*config.Config, CheckResult) {
	if path == "" {
		defaultPath, err := config.DefaultConfigPath()
		if err != nil {
			return nil, CheckResult{Name: "Config", Status: "✗", Details: err.Error()}
		}
		path = defaultPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, CheckResult{Name: "Config", Status: "✗", Details: err.Error()}
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return cfg, CheckResult{Name: "Config", Status: "⚠", Details: fmt.Sprintf("%s missing, using defaults", path)}
	}
	return cfg, CheckResult{Name: "Config", Status: "✓"}
}

func checkDatabase(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Database", Status: "✗", Details: "skipped: config failed"}
	}

	database, err := openForCheck(cfg)
	if err != nil {
		return CheckResult{Name: "Database", Status: "✗", Details: err.Error()}
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		return CheckResult{Name: "Database", Status: "✗", Details: err.Error()}
	}
	return CheckResult{Name: "Database", Status: "✓"}
}

func checkRaciMatrix(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "RACI matrix", Status: "✗", Details: "skipped: config failed"}
	}
	if cfg.RaciFile == "" {
		return CheckResult{Name: "RACI matrix", Status: "⚠", Details: "no raci_file configured; every resolution will miss"}
	}

	provider, err := filesystem.NewRaciProvider(cfg.RaciFile)
	if err != nil {
		return CheckResult{Name: "RACI matrix", Status: "✗", Details: err.Error()}
	}
	if provider.Len() == 0 {
		return CheckResult{Name: "RACI matrix", Status: "⚠", Details: "matrix loaded but contains no definitions"}
	}
	return CheckResult{Name: "RACI matrix", Status: "✓"}
}

func openForCheck(cfg *config.Config) (*sql.DB, error) {
	if cfg.Database.Path != "" {
		return db.Open(cfg.Database.Path)
	}
	return db.GetDB()
}
