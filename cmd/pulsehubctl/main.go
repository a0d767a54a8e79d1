// SPDX-License-Identifier: MIT

// Command pulsehubctl is the operator tooling for the profile engine.
//
//	pulsehubctl reaper:status      print reaper status as JSON
//	pulsehubctl reaper:run-manual  execute one tick under the manual lease
//	pulsehubctl counter:reset      rebuild counter and expiry index from a
//	                               primary-store scan
//
// Exit codes: 0 success, 2 lease contention, 3 store unavailable,
// 4 cancelled.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pulsehub/pulsehub/internal/config"
	"github.com/pulsehub/pulsehub/internal/index"
	"github.com/pulsehub/pulsehub/internal/log"
	"github.com/pulsehub/pulsehub/internal/reaper"
	"github.com/pulsehub/pulsehub/internal/store"
)

const (
	exitOK          = 0
	exitUsage       = 1
	exitLeaseHeld   = 2
	exitUnavailable = 3
	exitCancelled   = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		return exitUsage
	}
	command := flag.Arg(0)

	log.Configure(log.Config{Service: "pulsehubctl", Output: os.Stderr})
	logger := log.Base()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hot, err := store.New(store.Config{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		OpTimeout: cfg.OpTimeout,
	}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "store unavailable:", err)
		return exitUnavailable
	}
	defer hot.Close()

	indices := index.NewMaintainer(hot, cfg.DefaultTTL, logger)
	rpr := reaper.New(hot, reaper.Config{
		BatchSize:        cfg.BatchSize,
		MaxIterations:    cfg.MaxIterations,
		LockExpireTime:   cfg.LockExpireTime,
		MaxExecutionTime: cfg.MaxExecutionTime,
	}, nil, logger)

	switch command {
	case "reaper:status":
		return reaperStatus(ctx, rpr, indices, cfg)
	case "reaper:run-manual":
		return reaperRunManual(ctx, rpr)
	case "counter:reset":
		return counterReset(ctx, rpr)
	default:
		usage()
		return exitUsage
	}
}

func reaperStatus(ctx context.Context, rpr *reaper.Reaper, indices *index.Maintainer, cfg config.Config) int {
	scheduler, err := reaper.NewScheduler(rpr, indices, cfg.ScheduleCron, log.Base())
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid schedule:", err)
		return exitUsage
	}
	status, err := scheduler.Status(ctx)
	if err != nil {
		return reportError(ctx, err)
	}
	return printJSON(status)
}

func reaperRunManual(ctx context.Context, rpr *reaper.Reaper) int {
	summary, err := rpr.RunManual(ctx)
	if err != nil {
		if errors.Is(err, reaper.ErrLeaseHeld) {
			fmt.Fprintln(os.Stderr, "lease contention: another reaper is running")
			return exitLeaseHeld
		}
		return reportError(ctx, err)
	}
	return printJSON(map[string]any{
		"task_id":          summary.TaskID,
		"total_expired":    summary.TotalExpired,
		"total_candidates": summary.TotalCandidates,
		"iterations":       summary.Iterations,
		"duration_ms":      summary.Duration.Milliseconds(),
	})
}

func counterReset(ctx context.Context, rpr *reaper.Reaper) int {
	total, err := rpr.RebuildCounter(ctx)
	if err != nil {
		return reportError(ctx, err)
	}
	return printJSON(map[string]int64{"total_users": total})
}

func reportError(ctx context.Context, err error) int {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "cancelled")
		return exitCancelled
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	return exitUnavailable
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "encode:", err)
		return exitUsage
	}
	return exitOK
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: pulsehubctl <command>

commands:
  reaper:status      print reaper status as JSON
  reaper:run-manual  execute one reaper tick under the manual lease
  counter:reset      rebuild the user counter and expiry index
`)
}
