package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/recordstore/internal/apperr"
	"github.com/roach88/recordstore/internal/smartcode"
)

// CodeReport describes one validated smart code.
type CodeReport struct {
	Code    string `json:"code"`
	Valid   bool   `json:"valid"`
	Error   string `json:"error,omitempty"`
	Family  string `json:"family,omitempty"`
	Module  string `json:"module,omitempty"`
	Version int    `json:"version,omitempty"`
}

// MatchReport describes one code tested against a pattern.
type MatchReport struct {
	Pattern string `json:"pattern"`
	Code    string `json:"code"`
	Match   bool   `json:"match"`
}

// NewSmartCodeCommand creates the smartcode command group.
func NewSmartCodeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smartcode",
		Short: "Validate and match smart codes",
	}
	cmd.AddCommand(newSmartCodeValidateCommand(rootOpts))
	cmd.AddCommand(newSmartCodeMatchCommand(rootOpts))
	return cmd
}

func newSmartCodeValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <code>...",
		Short: "Validate smart codes",
		Long: `Check that each code has the shape PREFIX.SEGMENT.SEGMENT[...].vN.

Exit codes:
  0 - All codes valid
  1 - One or more codes invalid

Examples:
  recordstore smartcode validate HERA.SALON.SVC.HAIRCUT.v1
  recordstore smartcode validate HERA.SALON.POS.SALE.V3 salon.sale --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmartCodeValidate(opts, cmd, args)
		},
	}
}

func runSmartCodeValidate(opts *RootOptions, cmd *cobra.Command, codes []string) error {
	out := opts.formatter(cmd)

	reports := make([]CodeReport, 0, len(codes))
	invalid := 0
	for _, raw := range codes {
		code, err := smartcode.Parse(raw)
		if err != nil {
			invalid++
			reports = append(reports, CodeReport{Code: raw, Error: apperr.As(err).Message})
			out.Text("✗ %s: %s", raw, apperr.As(err).Message)
			continue
		}
		reports = append(reports, CodeReport{
			Code:    raw,
			Valid:   true,
			Family:  code.Family(),
			Module:  code.Module(),
			Version: code.Version,
		})
		out.Text("✓ %s (family %s, version %d)", raw, code.Family(), code.Version)
	}

	resp := CLIResponse{Status: "ok", Data: reports}
	if invalid > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    "E_INVALID_CODE",
			Message: fmt.Sprintf("%d invalid smart code(s)", invalid),
		}
	}
	if err := out.Report(resp); err != nil {
		return err
	}
	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid smart code(s)", invalid))
	}
	return nil
}

func newSmartCodeMatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "match <pattern> <code>...",
		Short: "Match smart codes against a glob pattern",
		Long: `Match codes against a dot-separated glob: * matches one segment,
** matches any number of segments. Matching is case-insensitive.

Exit codes:
  0 - Every code matched
  1 - One or more codes did not match
  2 - Invalid pattern

Examples:
  recordstore smartcode match "HERA.SALON.*.*.v1" HERA.SALON.SVC.HAIRCUT.v1
  recordstore smartcode match "HERA.**" HERA.JEWELRY.POS.SALE.V3`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmartCodeMatch(opts, cmd, args[0], args[1:])
		},
	}
}

func runSmartCodeMatch(opts *RootOptions, cmd *cobra.Command, pattern string, codes []string) error {
	if !smartcode.ValidPattern(pattern) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid pattern %q", pattern))
	}
	out := opts.formatter(cmd)

	reports := make([]MatchReport, 0, len(codes))
	missed := 0
	for _, code := range codes {
		ok := smartcode.Match(pattern, code)
		if !ok {
			missed++
		}
		reports = append(reports, MatchReport{Pattern: pattern, Code: code, Match: ok})
		if ok {
			out.Text("✓ %s", code)
		} else {
			out.Text("✗ %s", code)
		}
	}

	resp := CLIResponse{Status: "ok", Data: reports}
	if missed > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    "E_NO_MATCH",
			Message: fmt.Sprintf("%d code(s) did not match %s", missed, pattern),
		}
	}
	if err := out.Report(resp); err != nil {
		return err
	}
	if missed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d code(s) did not match %s", missed, pattern))
	}
	return nil
}
