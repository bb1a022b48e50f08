package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/auth"
	"github.com/PortNumber53/readflash/backend/internal/config"
	"github.com/PortNumber53/readflash/backend/internal/logger"
	"github.com/PortNumber53/readflash/backend/internal/migrations"
	"github.com/PortNumber53/readflash/backend/internal/models"
)

var (
	logLevel   string
	tokenUser  string
	tokenEmail string
	tokenTTL   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "dbtool",
	Short:         "Database maintenance for the readflash backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return upCmd.RunE(cmd, args)
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *sql.DB, log *zap.Logger) error {
			return migrations.Up(db, log)
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default 1 step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			steps = n
		}
		return withDB(func(db *sql.DB, log *zap.Logger) error {
			if err := migrations.Down(db, steps); err != nil {
				return err
			}
			log.Info("rolled back migrations", zap.Int("steps", steps))
			return nil
		})
	},
}

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Clear a dirty migration state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *sql.DB, log *zap.Logger) error {
			log.Info("attempting to fix dirty database")
			if err := migrations.FixDirtyDatabase(db); err != nil {
				return err
			}
			log.Info("database fixed")
			return nil
		})
	},
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Record a schema version without running migrations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number: %s", args[0])
		}
		return withDB(func(db *sql.DB, log *zap.Logger) error {
			if err := migrations.ForceVersion(db, uint(v)); err != nil {
				return err
			}
			log.Info("database version forced", zap.Uint64("version", v))
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *sql.DB, _ *zap.Logger) error {
			v, dirty, err := migrations.Version(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
			return nil
		})
	},
}

// tokenCmd mints a bearer token signed with AUTH_JWT_SECRET for local testing.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDatabase()
		if err != nil {
			return err
		}
		userID := uuid.New()
		if tokenUser != "" {
			if userID, err = uuid.Parse(tokenUser); err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
		}
		token, err := auth.NewVerifier(cfg.JWTSecret).Issue(models.Identity{UserID: userID, Email: tokenEmail}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (random when empty)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "dev@example.com", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")

	rootCmd.AddCommand(upCmd, downCmd, fixCmd, forceCmd, statusCmd, tokenCmd)
}

func withDB(fn func(db *sql.DB, log *zap.Logger) error) error {
	cfg, err := config.LoadDatabase()
	if err != nil {
		return err
	}
	log, err := logger.New(logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info("database configured", logger.DSNFields("primary", cfg.DatabaseURL)...)

	return fn(db, log)
}

func main() {
	// Load environment variables
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dbtool: %v\n", err)
		os.Exit(1)
	}
}
