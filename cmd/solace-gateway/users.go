// ABOUTME: Operator commands for accounts: useradd creates a user, token mints a bearer token
// ABOUTME: Both open the configured SQLite store directly

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/solace-gateway/internal/auth"
	"github.com/2389/solace-gateway/internal/store"
)

func newUserAddCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create a user account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			username = strings.TrimSpace(username)
			if username == "" {
				return errors.New("--username is required")
			}
			if len(username) > 100 {
				return errors.New("username exceeds maximum length of 100 characters")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}

			s, err := store.NewSQLiteStore(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer s.Close()

			user := &store.User{Username: username, PasswordHash: hash}
			if err := s.CreateUser(cmd.Context(), user); err != nil {
				if errors.Is(err, store.ErrDuplicateUser) {
					return fmt.Errorf("user %q already exists", username)
				}
				return fmt.Errorf("creating user: %w", err)
			}

			color.New(color.FgGreen).Printf("  ✓ Created user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "password (hashed with bcrypt)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var username, password string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		Long: `Mint an HS256 bearer token for an existing user.

With --password the credentials are checked first, the way a sign-in would.
Without it the operator vouches for the user.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			s, err := store.NewSQLiteStore(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer s.Close()

			// Token minting logs nothing worth showing on a terminal.
			validator := auth.NewValidator([]byte(cfg.Auth.JWTSecret), s, ttl, slog.New(slog.DiscardHandler))

			var token string
			if password != "" {
				token, err = validator.SignIn(cmd.Context(), username, password)
				if errors.Is(err, auth.ErrBadCredentials) {
					return errors.New("invalid username or password")
				}
			} else {
				if _, err = s.GetUserByUsername(cmd.Context(), username); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return fmt.Errorf("user %q does not exist", username)
					}
					return fmt.Errorf("looking up user: %w", err)
				}
				token, err = validator.Generate(username, ttl)
			}
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}

			color.New(color.FgHiBlack).Printf("expires %s\n", time.Now().Add(ttl).UTC().Format(time.RFC3339))
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "user to mint the token for")
	cmd.Flags().StringVar(&password, "password", "", "verify this password before minting")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
