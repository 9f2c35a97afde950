// ABOUTME: The serve command: loads config, prints startup info and runs the gateway
// ABOUTME: Returns once a signal cancels the context and shutdown finishes

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/solace-gateway/internal/gateway"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cyan := color.New(color.FgCyan)
			gray := color.New(color.FgHiBlack)
			green := color.New(color.FgGreen)

			cyan.Print(banner)
			gray.Printf("    version: %s\n\n", version)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)

			green.Print("    ▶ ")
			fmt.Printf("Config:    %s\n", configPath)
			green.Print("    ▶ ")
			fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
			green.Print("    ▶ ")
			fmt.Printf("Database:  %s\n", cfg.Database.Path)
			green.Print("    ▶ ")
			fmt.Printf("Pipeline:  %s", cfg.Pipeline.Provider)
			if cfg.Pipeline.Model != "" {
				gray.Printf(" (%s)", cfg.Pipeline.Model)
			}
			fmt.Println()
			fmt.Println()

			logger.Info("starting solace-gateway",
				"config", configPath,
				"http_addr", cfg.Server.HTTPAddr,
				"provider", cfg.Pipeline.Provider,
			)

			gw, err := gateway.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating gateway: %w", err)
			}
			return gw.Run(cmd.Context())
		},
	}
}
