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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/polyrect/pkg/ux"
	"github.com/AleutianAI/polyrect/services/geometry"
	"github.com/AleutianAI/polyrect/services/search"
)

const progressWidth = 20

type solveFlags struct {
	part    int
	workers int
	input   string
}

// solveResult is what solve prints.
type solveResult struct {
	part     int
	area     uint64
	found    bool
	checked  uint64
	total    uint64
	workers  int
	duration time.Duration
}

func newSolveCmd(state *cliState) *cobra.Command {
	flags := &solveFlags{}
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Print the answer for the input without the visualizer",
		Long: `Part 1 prints the largest rectangle spanned by any two points.
Part 2 prints the largest such rectangle lying inside the polygon, searched
sequentially (--workers 0) or by the parallel engine with no throttle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.part != 1 && flags.part != 2 {
				return fmt.Errorf("invalid --part %d: must be 1 or 2", flags.part)
			}
			if flags.workers < 0 {
				return fmt.Errorf("invalid --workers %d: must not be negative", flags.workers)
			}
			_, points, err := loadInput(inputPath(state.cfg.Search.InputPath, flags.input))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			res, err := solve(ctx, state, points, flags)
			if err != nil {
				return err
			}
			printSolve(state.printer(cmd), res)
			return nil
		},
	}
	cmd.Flags().IntVar(&flags.part, "part", 2, "Puzzle part: 1 or 2")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "Parallel workers for part 2; 0 searches sequentially")
	cmd.Flags().StringVar(&flags.input, "input", "", "Input file of x,y points (overrides search.input_path)")
	return cmd
}

func solve(ctx context.Context, state *cliState, points []geometry.Point, flags *solveFlags) (solveResult, error) {
	start := time.Now()
	res := solveResult{part: flags.part, workers: flags.workers}

	if flags.part == 1 {
		res.area = geometry.MaxPairArea(points)
		res.found = true
		res.duration = time.Since(start)
		return res, nil
	}

	polygon := geometry.NewPolygon(points)
	res.total = uint64(len(points) * (len(points) - 1) / 2)
	if flags.workers == 0 {
		sol, err := search.Solve(ctx, polygon, geometry.GenerateCandidates(points))
		if err != nil {
			return res, fmt.Errorf("sequential solve: %w", err)
		}
		res.area, res.found, res.checked = sol.Candidate.Area, sol.Found, sol.Checked
		res.duration = time.Since(start)
		return res, nil
	}

	engineCfg := state.cfg.Search.EngineConfig()
	if engineCfg.MaxWorkers < flags.workers {
		engineCfg.MaxWorkers = flags.workers
	}
	engine := search.New(polygon, points, engineCfg)
	defer engine.Close()

	slog.Info("parallel solve started", "num_workers", flags.workers, "vertices", len(points))
	done, err := engine.Run(ctx, search.StartParams{SpeedUS: 0, NumCores: flags.workers})
	if err != nil {
		return res, fmt.Errorf("parallel solve: %w", err)
	}
	res.area, res.found, res.checked = done.Result, done.Result > 0, done.CheckedCount
	res.duration = done.Duration
	return res, nil
}

func printSolve(p *ux.Printer, res solveResult) {
	area := strconv.FormatUint(res.area, 10)
	if !res.found {
		p.Warning("no rectangle lies inside the polygon")
	}
	fields := []ux.Field{
		{Label: "part", Value: strconv.Itoa(res.part)},
		{Label: "area", Value: area},
	}
	if res.part == 2 {
		mode := "sequential"
		if res.workers > 0 {
			mode = strconv.Itoa(res.workers) + " workers"
		}
		fields = append(fields,
			ux.Field{Label: "checked", Value: p.ProgressBar(res.checked, res.total, progressWidth)},
			ux.Field{Label: "mode", Value: mode},
		)
	}
	fields = append(fields, ux.Field{Label: "duration", Value: res.duration.Round(time.Microsecond).String()})
	p.Summary("polyrect", fields)
}
