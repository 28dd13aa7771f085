package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-console/internal/calendar"
)

// NewDeadlineCommand groups offline deadline calculations.
func NewDeadlineCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadline",
		Short: "Compute business deadlines from an office calendar file",
	}
	cmd.AddCommand(newDeadlineComputeCommand(rootOpts))
	cmd.AddCommand(newDeadlineAdjustCommand(rootOpts))
	return cmd
}

type deadlineFlags struct {
	file        string
	office      string
	hoursPerDay float64
}

func (f *deadlineFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "offices YAML file")
	cmd.Flags().StringVar(&f.office, "office", "", "office id")
	cmd.Flags().Float64Var(&f.hoursPerDay, "hours-per-day", calendar.DefaultHoursPerDay, "business hours in one business day")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("office")
}

func (f *deadlineFlags) calculator() (*calendar.Calculator, error) {
	offices, err := LoadOffices(f.file)
	if err != nil {
		return nil, err
	}
	return calendar.NewCalculator(offices, calendar.WithHoursPerDay(f.hoursPerDay)), nil
}

func newDeadlineComputeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags     deadlineFlags
		submitted string
		hours     float64
	)
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute the deadline N business hours after submission",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := time.Parse(time.RFC3339, submitted)
			if err != nil {
				return fmt.Errorf("--submitted: %w", err)
			}
			calc, err := flags.calculator()
			if err != nil {
				return err
			}
			res, err := calc.ComputeDeadline(calendar.DeadlineRequest{SubmittedAt: at, RequiredBusinessHours: hours, OfficeID: flags.office})
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			renderResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&submitted, "submitted", "", "submission time (RFC3339)")
	cmd.Flags().Float64Var(&hours, "hours", 0, "required business hours")
	_ = cmd.MarkFlagRequired("submitted")
	return cmd
}

func newDeadlineAdjustCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags     deadlineFlags
		candidate string
	)
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Move a candidate deadline off closed days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := time.Parse(time.RFC3339, candidate)
			if err != nil {
				return fmt.Errorf("--at: %w", err)
			}
			calc, err := flags.calculator()
			if err != nil {
				return err
			}
			adj, err := calc.AdjustDeadline(at, flags.office)
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), adj)
			}
			w := cmd.OutOrStdout()
			field(w, "office", flags.office)
			field(w, "candidate", at.Format(time.RFC3339))
			renderAdjustment(w, adj)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&candidate, "at", "", "candidate deadline (RFC3339)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func renderResult(w io.Writer, res calendar.DeadlineResult) {
	field(w, "office", res.OfficeID)
	field(w, "submitted", res.SubmittedAt.Format(time.RFC3339))
	field(w, "business days", res.BusinessDays)
	field(w, "original deadline", res.OriginalDeadline.Format(time.RFC3339))
	renderAdjustment(w, res.Adjustment)
}

func renderAdjustment(w io.Writer, adj calendar.Adjustment) {
	field(w, "adjusted deadline", adj.AdjustedDeadline.Format(time.RFC3339))
	field(w, "outcome", adj.Outcome())
	field(w, "extension days", adj.ExtensionDays)
	if adj.Reason != "" {
		field(w, "reason", adj.Reason)
	}
	if len(adj.FallbackOffices) > 0 {
		field(w, "fallback offices", joinList(adj.FallbackOffices))
	}
}
