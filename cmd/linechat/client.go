package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/linechat/internal/client"
	"github.com/vovakirdan/linechat/internal/config"
	"github.com/vovakirdan/linechat/internal/log"
)

func newClientCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "client",
		Short: "Join a chat server from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := root.logLevel
			if level == "" {
				level = "error"
			}
			logger := log.New(log.Options{Level: level})

			cfg, _, err := config.LoadReadOnly(logger, root.configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(config.Config{Addr: root.addr})

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "[CLIENT] Connecting to server at %s...\n", cfg.Addr)

			c, err := client.Dial(cmd.Context(), cfg.Addr, client.Options{
				In:             os.Stdin,
				Out:            out,
				ReadBufferSize: cfg.ReadBufferSize,
				Logger:         logger,
			})
			if err != nil {
				if errors.Is(err, syscall.ECONNREFUSED) {
					fmt.Fprintf(out, "[ERROR] Could not connect to server at %s\n", cfg.Addr)
					fmt.Fprintln(out, "[ERROR] Make sure the server is running and try again.")
				}
				return err
			}
			fmt.Fprintln(out, "[CLIENT] Connected successfully!")

			defer fmt.Fprintln(out, "[CLIENT] Disconnected. Goodbye!")

			if _, err := c.Handshake(cmd.Context()); err != nil {
				fmt.Fprintf(out, "[ERROR] Client error: %v\n", err)
				return err
			}
			err = c.Run(cmd.Context())
			fmt.Fprintln(out, "[CLIENT] Closing connection...")
			return err
		},
	}
}
