package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// LookupCmd resolves callsigns against the dataset and the log.
func LookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup CALL...",
		Short: "Show the DXCC entity of each callsign and the bands it was worked on",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmds, err := offlineCommands(cmd)
			if err != nil {
				return err
			}
			for _, call := range args {
				info, err := cmds.GetDXCCInfo(DXCCInfoRequest{Call: call})
				if err != nil {
					return err
				}
				printDXCCInfo(cmd.OutOrStdout(), info)
			}
			return nil
		},
	}
}

// WorkedCmd reports whether callsigns are in the log.
func WorkedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worked CALL...",
		Short: "Check whether callsigns are in the contact log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmds, err := offlineCommands(cmd)
			if err != nil {
				return err
			}
			for _, call := range args {
				resp, err := cmds.IsWorked(IsWorkedRequest{Call: call})
				if err != nil {
					return err
				}
				mark := color.New(color.FgYellow).Sprint("not worked")
				if resp.Worked {
					mark = color.New(color.FgGreen).Sprint("worked")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", resp.Call, mark)
			}
			return nil
		},
	}
}

// LogQSOCmd appends a contact to the log.
func LogQSOCmd() *cobra.Command {
	var req LogQSORequest
	cmd := &cobra.Command{
		Use:   "log-qso CALL",
		Short: "Record a contact in the ADIF log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmds, err := offlineCommands(cmd)
			if err != nil {
				return err
			}
			req.Call = args[0]
			resp, err := cmds.LogQSO(req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case resp.AlreadyWorked:
				fmt.Fprintf(out, "%s already worked\n", resp.Call)
			case resp.Warning != "":
				fmt.Fprintf(out, "%s %s: %s\n", resp.Call, color.New(color.FgYellow).Sprint("not saved"), resp.Warning)
			default:
				fmt.Fprintf(out, "%s %s\n", resp.Call, color.New(color.FgGreen).Sprint("logged"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Band, "band", "", "Band, e.g. 20m")
	cmd.Flags().StringVar(&req.Mode, "mode", "FT8", "Mode")
	cmd.Flags().StringVar(&req.Grid, "grid", "", "Grid locator of the other station")
	return cmd
}

// UnworkedCmd reports the entities not yet in the log and can write them out
// as a whitelist file.
func UnworkedCmd() *cobra.Command {
	var (
		req    UnworkedRequest
		output string
	)
	cmd := &cobra.Command{
		Use:   "unworked",
		Short: "List DXCC entities not yet worked, overall and per band",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmds, err := offlineCommands(cmd)
			if err != nil {
				return err
			}
			req.Whitelist = output != ""
			resp, err := cmds.Unworked(req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output == "-" {
				_, err := io.WriteString(out, resp.Whitelist)
				return err
			}
			printUnworked(out, resp)
			if output != "" {
				if err := os.WriteFile(output, []byte(resp.Whitelist), 0o644); err != nil {
					return fmt.Errorf("failed to write whitelist: %w", err)
				}
				fmt.Fprintf(out, "whitelist with %d unworked entities written to %s\n", len(resp.Unworked), output)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&req.Bands, "band", nil, "Bands to report (default: every band in the log)")
	cmd.Flags().StringVar(&req.Mode, "mode", "strict", "Mode of the generated whitelist (strict or priority)")
	cmd.Flags().StringVarP(&output, "whitelist", "w", "", "Write a whitelist of the unworked entities to this file (- for stdout)")
	return cmd
}

func printUnworked(out io.Writer, resp UnworkedResponse) {
	fmt.Fprintf(out, "worked %d of %d DXCC entities\n", resp.Worked, resp.Total)
	for _, bp := range resp.Bands {
		fmt.Fprintf(out, "  %-6s %4d worked %4d to go\n", bp.Band, bp.Worked, len(bp.Unworked))
	}
	if len(resp.Unworked) == 0 {
		return
	}
	fmt.Fprintln(out, color.New(color.FgYellow).Sprintf("never worked (%d):", len(resp.Unworked)))
	for _, e := range resp.Unworked {
		fmt.Fprintf(out, "  %-5s %s\n", e.ID, e.Name)
	}
}

func offlineCommands(cmd *cobra.Command) (*Commands, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	app := NewApp(cfg)
	app.commands.hostStats = false
	return app.commands, nil
}

func printDXCCInfo(out io.Writer, info DXCCInfoResponse) {
	if !info.Known {
		fmt.Fprintf(out, "%-12s %s\n", info.Call, color.New(color.FgRed).Sprint("unknown entity"))
		return
	}
	line := fmt.Sprintf("%-12s %s (%s)", info.Call, info.Entity.Name, info.Entity.ID)
	if info.Entity.Continent != "" {
		line += " " + info.Entity.Continent
	}
	if info.Whitelisted {
		line += " " + color.New(color.FgHiMagenta).Sprint("[whitelist]")
	}
	fmt.Fprintln(out, line)

	worked := color.New(color.FgYellow).Sprint("new one")
	if len(info.WorkedBands) > 0 {
		worked = "worked on " + strings.Join(info.WorkedBands, ", ")
	}
	if info.Worked {
		worked += color.New(color.FgGreen).Sprint(" (this call in log)")
	}
	fmt.Fprintf(out, "%-12s %s\n", "", worked)
}
