/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/confplanner/internal/auth"
	"github.com/friendsincode/confplanner/internal/catalog"
	"github.com/friendsincode/confplanner/internal/db"
	"github.com/friendsincode/confplanner/internal/models"
	"github.com/friendsincode/confplanner/internal/planner"
)

var (
	conflictsUser string
	conflictsJSON bool
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Show overlapping talks in a user's schedule",
	Long: `List every pair of saved talks whose time ranges overlap.

Examples:
  confplanner conflicts --user ada@example.com
  confplanner conflicts --user ada@example.com --json
`,
	RunE: runConflicts,
}

func init() {
	conflictsCmd.Flags().StringVarP(&conflictsUser, "user", "u", "", "Email of the user whose schedule to check")
	conflictsCmd.Flags().BoolVar(&conflictsJSON, "json", false, "Print the schedule as JSON")
	_ = conflictsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(conflictsCmd)
}

func runConflicts(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close(database)

	ctx := cmd.Context()
	user, err := auth.NewService(database, nil, logger).UserByEmail(ctx, conflictsUser)
	if errors.Is(err, auth.ErrUserNotFound) {
		return fmt.Errorf("no user with email %q", conflictsUser)
	}
	if err != nil {
		return err
	}

	cat := catalog.NewService(database, nil, logger)
	sched, err := planner.NewService(database, cat, nil, logger).GetUserSchedule(ctx, user.ID)
	if err != nil {
		return err
	}

	if conflictsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sched)
	}
	return printConflicts(cmd.OutOrStdout(), user, sched, cfg.Location())
}

func printConflicts(w io.Writer, user *models.User, sched *planner.Schedule, loc *time.Location) error {
	fmt.Fprintf(w, "%s <%s>: %d saved talks\n", user.Name, user.Email, len(sched.Entries))
	if !sched.HasConflicts() {
		fmt.Fprintln(w, planner.ConflictMessage(0))
		return nil
	}
	fmt.Fprintln(w, planner.ConflictMessage(len(sched.Conflicts)))
	fmt.Fprintln(w)

	talks := make(map[string]models.Talk, len(sched.Entries))
	for _, e := range sched.Entries {
		talks[e.Talk.ID] = e.Talk
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TALK\tTIME\tOVERLAPS\tTIME")
	for _, p := range sched.Conflicts {
		a, b := talks[p.A], talks[p.B]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Title, timeRange(a, loc), b.Title, timeRange(b, loc))
	}
	return tw.Flush()
}

func timeRange(t models.Talk, loc *time.Location) string {
	return t.StartsAt.In(loc).Format("3:04 PM") + " - " + t.EndsAt.In(loc).Format("3:04 PM")
}
