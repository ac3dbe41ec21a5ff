package main

import (
	"github.com/spf13/cobra"

	"github.com/vovakirdan/linechat/internal/app"
	"github.com/vovakirdan/linechat/internal/config"
	"github.com/vovakirdan/linechat/internal/log"
)

func newServerCommand(root *rootOptions) *cobra.Command {
	var statusAddr string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := log.New(log.Options{Level: root.logLevel})

			cfg, path, err := config.Load(bootLogger, root.configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(config.Config{
				Addr:       root.addr,
				StatusAddr: statusAddr,
				Log:        log.Options{Level: root.logLevel},
			})

			logger := log.New(cfg.Log)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting linechat server")

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			if err := application.Run(cmd.Context()); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "HTTP status address, empty disables it")
	return cmd
}
