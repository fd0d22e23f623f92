// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/metis-ai/metis/pkg/config"
	"github.com/metis-ai/metis/pkg/feedback"
)

type historyResult struct {
	Count   int               `json:"count"`
	Records []feedback.Record `json:"records"`
}

type historyLister interface {
	List(ctx context.Context, filter feedback.Filter) ([]feedback.Record, error)
}

// runHistory lists recorded run outcomes from the feedback store.
func runHistory(ctx context.Context, global globalFlags, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum records to list")
	outcome := fs.String("outcome", "", "Filter by outcome: success, partial, failed")
	since := fs.Duration("since", 0, "Only records newer than this age (e.g. 24h)")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	cfg, _, err := loadConfig(global)
	if err != nil {
		fatal(err)
	}

	filter, err := historyFilter(*limit, *outcome, *since)
	if err != nil {
		fatal(err)
	}

	store, closeStore, err := openHistoryStore(cfg)
	if err != nil {
		fatal(err)
	}
	defer closeStore()

	records, err := store.List(ctx, filter)
	if err != nil {
		fatal(err)
	}

	if global.JSON {
		printJSON(historyResult{Count: len(records), Records: records})
		return
	}

	printHistory(records)
}

// openHistoryStore opens the configured feedback store for reading. Only
// the sqlite driver keeps history across processes.
func openHistoryStore(cfg *config.Config) (historyLister, func(), error) {
	if strings.ToLower(cfg.Feedback.Driver) != "sqlite" {
		return nil, nil, fmt.Errorf("feedback driver %q keeps no queryable history; set feedback.driver: sqlite", cfg.Feedback.Driver)
	}
	db, err := sql.Open("sqlite", cfg.Feedback.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open feedback database: %w", err)
	}
	sink, err := feedback.NewSQLiteSink(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return sink, func() { db.Close() }, nil
}

func historyFilter(limit int, outcome string, since time.Duration) (feedback.Filter, error) {
	filter := feedback.Filter{Limit: limit}
	switch strings.ToLower(outcome) {
	case "":
	case feedback.OutcomeSuccess, feedback.OutcomePartial, feedback.OutcomeFailed:
		filter.Outcome = strings.ToLower(outcome)
	default:
		return feedback.Filter{}, fmt.Errorf("unknown outcome %q; use success, partial, or failed", outcome)
	}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}
	return filter, nil
}

func printHistory(records []feedback.Record) {
	if len(records) == 0 {
		fmt.Println("No feedback records.")
		return
	}

	fmt.Printf("Run history: %d records (oldest first)\n", len(records))
	for i, rec := range records {
		prefix := "├──"
		if i == len(records)-1 {
			prefix = "└──"
		}
		line := fmt.Sprintf("%s %s %s: %s",
			prefix, rec.Timestamp.Format(time.RFC3339), rec.Outcome, truncateString(rec.Query, 60))
		if len(rec.SkillsInvoked) > 0 {
			line += " [" + strings.Join(rec.SkillsInvoked, ", ") + "]"
		}
		fmt.Println(line)
	}
}
