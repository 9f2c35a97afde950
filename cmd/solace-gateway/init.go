// ABOUTME: The init command writes a starter config with a random JWT secret
// ABOUTME: Also creates the data directory that holds the SQLite database

package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const configTemplate = `# solace-gateway configuration
# Generated by solace-gateway init

server:
  http_addr: %q

database:
  path: %q

auth:
  jwt_secret: %q
  token_ttl: "24h"

pipeline:
  # "echo" answers locally; "openai" calls any OpenAI-compatible endpoint.
  provider: "echo"
  # base_url: "https://api.openai.com"
  # api_key: "${OPENAI_API_KEY}"
  # model: "gpt-4o-mini"
  # system_prompt: "You are a calm, supportive listener."
  timeout: "60s"

session:
  thinking_message: "Listening carefully..."
  stream_replies: true
  render_markdown: true
  max_message_bytes: 65536

logging:
  level: "info"
  format: "text"
`

func newInitCmd() *cobra.Command {
	var httpAddr string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("checking config file: %w", err)
			}

			secretBytes := make([]byte, 32)
			if _, err := rand.Read(secretBytes); err != nil {
				return fmt.Errorf("generating JWT secret: %w", err)
			}
			secret := base64.StdEncoding.EncodeToString(secretBytes)

			dataPath := getDataPath()
			dbPath := filepath.Join(dataPath, "gateway.db")

			if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			if err := os.MkdirAll(dataPath, 0755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}

			content := fmt.Sprintf(configTemplate, httpAddr, dbPath, secret)
			if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
				return fmt.Errorf("writing config file: %w", err)
			}

			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)

			green.Printf("  ✓ Created config: %s\n", configPath)
			green.Printf("  ✓ Data directory: %s\n", dataPath)
			fmt.Println()
			yellow.Println("  Next:")
			fmt.Println("    solace-gateway useradd --username NAME --password PASS")
			fmt.Println("    solace-gateway serve")
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", "localhost:8000", "address the HTTP server listens on")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
