// Command vaxctl runs operational tasks against the VaxSync database:
// derivation passes, catalog and population seeding, and token minting.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vaxsync/vaxsync-backend/internal/app"
	"github.com/vaxsync/vaxsync-backend/internal/config"
	"github.com/vaxsync/vaxsync-backend/internal/database"
	"github.com/vaxsync/vaxsync-backend/internal/logger"
	"github.com/vaxsync/vaxsync-backend/internal/model"
	"github.com/vaxsync/vaxsync-backend/internal/service"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "vaxctl",
		Short:         "VaxSync operations CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(deriveCmd())
	rootCmd.AddCommand(recomputeCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// session is an open connection to the backing stores.
type session struct {
	app   *app.App
	log   zerolog.Logger
	close func()
}

func connect(ctx context.Context) (*session, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat).With().Str("component", "vaxctl").Logger()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	a, err := app.New(cfg, pool, rdb, log)
	if err != nil {
		rdb.Close()
		pool.Close()
		return nil, err
	}
	return &session{
		app: a,
		log: log,
		close: func() {
			rdb.Close()
			pool.Close()
		},
	}, nil
}

func deriveCmd() *cobra.Command {
	var force, yes bool
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive required doses and compliance flags for every student",
		Long: "Runs a derivation pass. Without --force the pass is skipped when " +
			"required doses already exist; --force drops them and recomputes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if force && !yes {
				ok, err := confirm("This deletes every derived required dose and recomputes them. Continue?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}

			s, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.app.Services.Derivation.Run(cmd.Context(), service.RunOptions{Force: force})
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Println("Required doses already derived; use --force to recompute.")
				return nil
			}
			return printJSON(res)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "drop derived rows and recompute everything")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func recomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <student-id>...",
		Short: "Recompute required doses for specific students",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, 0, len(args))
			for _, a := range args {
				id, err := uuid.Parse(a)
				if err != nil {
					return fmt.Errorf("invalid student id %q: %w", a, err)
				}
				ids = append(ids, id)
			}

			s, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.app.Services.Derivation.RecomputeStudents(cmd.Context(), ids)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
}

func seedCmd() *cobra.Command {
	var opts service.SeedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with a synthetic student population",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			start := time.Now()
			res, err := s.app.Services.Seed.SeedPopulation(cmd.Context(), opts)
			if err != nil {
				return err
			}
			s.log.Info().Dur("elapsed", time.Since(start)).Msg("Seed finished")
			return printJSON(res)
		},
	}
	cmd.Flags().IntVar(&opts.Students, "students", 10000, "target student population")
	cmd.Flags().IntVar(&opts.Schools, "schools", 10, "number of schools")
	cmd.Flags().IntVar(&opts.BatchSize, "batch", 1000, "rows per bulk insert")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "generator seed (0 = time based)")
	return cmd
}

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the vaccine catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Upsert the reference vaccines and schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			res, err := s.app.Services.Catalog.SeedCatalog(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		role       string
		schoolCode string
		subject    string
		ttl        time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a staff access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			auth := service.NewAuthService(cfg)

			var school *model.School
			if schoolCode != "" {
				s, err := connect(cmd.Context())
				if err != nil {
					return err
				}
				defer s.close()

				school, err = s.app.Services.School.GetByCode(cmd.Context(), schoolCode)
				if err != nil {
					return fmt.Errorf("school %q: %w", schoolCode, err)
				}
			}

			tok, err := auth.GenerateStaffToken(subject, model.Role(role), school, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(model.RoleAdmin), "Admin, SchoolNurse or Viewer")
	cmd.Flags().StringVar(&schoolCode, "school", "", "school code (required for SchoolNurse)")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, e.g. staff e-mail")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default JWT_EXPIRY_HOURS)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// confirm asks a yes/no question on an interactive terminal. Non-interactive
// input must pass --yes instead.
func confirm(question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.New("refusing to run without a terminal; pass --yes")
	}
	fmt.Printf("%s [y/N]: ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
