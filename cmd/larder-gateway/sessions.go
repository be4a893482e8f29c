// ABOUTME: sessions subcommand: reads stored descriptors straight from the configured backend
// ABOUTME: Prints each channel's bookkeeping and whether its next connection would resume

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/2389/larder-gateway/internal/config"
	"github.com/2389/larder-gateway/internal/gateway"
	"github.com/2389/larder-gateway/internal/session"
	"github.com/2389/larder-gateway/internal/store"
)

func newSessionsCommand() *cobra.Command {
	var forget bool
	cmd := &cobra.Command{
		Use:   "sessions [channel]",
		Short: "List stored channel sessions and their resume decision",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			s, err := gateway.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			policy := session.Policy{
				IdleThreshold: cfg.Sessions.IdleThreshold,
				MinMessages:   cfg.Sessions.MinMessages,
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				if forget {
					return errors.New("--forget needs a channel")
				}
				return listSessions(cmd.Context(), out, s, policy, time.Now())
			}
			if forget {
				if err := s.DeleteSession(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("deleting session: %w", err)
				}
				fmt.Fprintf(out, "forgot %s\n", args[0])
				return nil
			}
			return showSession(cmd.Context(), out, s, policy, args[0], time.Now())
		},
	}
	cmd.Flags().BoolVar(&forget, "forget", false, "delete the stored session for the channel")
	return cmd
}

func toDescriptor(s *store.Session) *session.Descriptor {
	return &session.Descriptor{
		SessionID:        s.SessionID,
		LastMessageTime:  s.LastMessageTime,
		UserMessageCount: s.UserMessageCount,
	}
}

func nextAction(policy session.Policy, d *session.Descriptor, now time.Time) string {
	if policy.ShouldCreateNew(d, now) {
		return "new"
	}
	return "resume"
}

func decision(policy session.Policy, d *session.Descriptor, now time.Time) string {
	if next := nextAction(policy, d, now); next == "resume" {
		return color.GreenString(next)
	}
	return color.YellowString("new")
}

func listSessions(ctx context.Context, out io.Writer, s store.SessionStore, policy session.Policy, now time.Time) error {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no stored sessions")
		return nil
	}

	tbl := table.New("CHANNEL", "SESSION", "MESSAGES", "IDLE", "NEXT").
		WithWriter(out).
		WithPadding(2).
		WithHeaderFormatter(color.New(color.Underline).SprintfFunc()).
		WithFirstColumnFormatter(color.New(color.Bold).SprintfFunc())
	for _, cs := range sessions {
		d := toDescriptor(cs.Session)
		tbl.AddRow(
			cs.Channel,
			orDash(d.SessionID),
			d.UserMessageCount,
			now.Sub(d.LastMessageTime).Round(time.Second),
			nextAction(policy, d, now),
		)
	}
	tbl.Print()
	return nil
}

func showSession(ctx context.Context, out io.Writer, s store.SessionStore, policy session.Policy, channel string, now time.Time) error {
	stored, err := s.GetSession(ctx, channel)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintf(out, "%s: no stored session, next connection starts %s\n", channel, decision(policy, nil, now))
		return nil
	case errors.Is(err, store.ErrCorruptRecord):
		fmt.Fprintf(out, "%s: stored record is unreadable and will be treated as absent\n", channel)
		return nil
	case err != nil:
		return fmt.Errorf("reading session: %w", err)
	}

	d := toDescriptor(stored)
	fmt.Fprintf(out, "channel:       %s\n", channel)
	fmt.Fprintf(out, "session:       %s\n", orDash(d.SessionID))
	fmt.Fprintf(out, "messages:      %d\n", d.UserMessageCount)
	fmt.Fprintf(out, "last message:  %s (%s ago)\n", d.LastMessageTime.Format(time.RFC3339), now.Sub(d.LastMessageTime).Round(time.Second))
	fmt.Fprintf(out, "next:          %s\n", decision(policy, d, now))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
