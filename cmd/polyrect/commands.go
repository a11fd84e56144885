// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/polyrect/cmd/polyrect/config"
	"github.com/AleutianAI/polyrect/pkg/logging"
	"github.com/AleutianAI/polyrect/pkg/ux"
)

// skipConfigAnnotation marks commands that run without loading the
// configuration file.
const skipConfigAnnotation = "polyrect/skip-config"

// cliState is shared by the commands of one root command tree.
type cliState struct {
	configPath string
	logLevel   string
	logFormat  string
	outputMode string

	cfg    config.PolyrectConfig
	logger *logging.Logger
}

// printer returns a ux.Printer for the command's stdout honouring --output.
func (s *cliState) printer(cmd *cobra.Command) *ux.Printer {
	return ux.NewPrinter(cmd.OutOrStdout(), ux.ParseMode(s.outputMode))
}

func newRootCmd() *cobra.Command {
	state := &cliState{}

	rootCmd := &cobra.Command{
		Use:   "polyrect",
		Short: "Find the largest rectangle inside a rectilinear polygon",
		Long: `polyrect searches every rectangle spanned by two polygon vertices for the
largest one lying entirely inside the polygon. "serve" runs the search
behind a websocket visualizer, "solve" runs it headless.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if state.logger == nil {
				return nil
			}
			return state.logger.Close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&state.configPath, "config", "",
		"Path to the YAML configuration (default "+config.DefaultPath+" when present)")
	rootCmd.PersistentFlags().StringVar(&state.logLevel, "log-level", "",
		"Log level: debug, info, warn or error (overrides logging.level)")
	rootCmd.PersistentFlags().StringVar(&state.logFormat, "log-format", "",
		"Log format: json or text (overrides logging.format)")
	rootCmd.PersistentFlags().StringVar(&state.outputMode, "output", "auto",
		"Result output: auto, styled or plain")

	rootCmd.AddCommand(newServeCmd(state))
	rootCmd.AddCommand(newSolveCmd(state))
	rootCmd.AddCommand(newConfigCmd(state))
	return rootCmd
}

// setup loads the configuration and installs the default logger.
func (s *cliState) setup(cmd *cobra.Command) error {
	if cmd.Annotations[skipConfigAnnotation] == "true" {
		s.cfg = config.DefaultConfig()
	} else {
		cfg, err := config.Load(s.configPath)
		if err != nil {
			return err
		}
		s.cfg = cfg
	}

	levelName := s.cfg.Logging.Level
	if s.logLevel != "" {
		levelName = s.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return err
	}
	formatName := s.cfg.Logging.Format
	if s.logFormat != "" {
		formatName = s.logFormat
	}
	format, err := logging.ParseFormat(formatName)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:   level,
		Format:  format,
		Output:  cmd.ErrOrStderr(),
		LogDir:  s.cfg.Logging.Dir,
		Service: cmd.Name(),
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	s.logger = logger
	slog.SetDefault(logger.Slog())
	return nil
}
