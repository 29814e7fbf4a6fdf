package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/raniellyferreira/memberlists/client"
)

func newClientCommand() *cobra.Command {
	var (
		server  string
		timeout time.Duration
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "client <command> [args...]",
		Short: "Send one request to a memberlistd server",
		Long: "Send one request to a memberlistd server and print the response.\n\nCommands:\n  " +
			strings.Join(client.Usages(), "\n  "),
		Example: `
  memberlistd client totals
  memberlistd client list 1
  memberlistd client --server db1:9246 join 2 Ada Lovelace
`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			request, err := client.BuildRequest(args)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			c := client.New(server, client.WithTimeout(timeout))
			response, err := c.Do(cmd.Context(), request)
			if err != nil {
				return fmt.Errorf("Error: %s: %w", server, err)
			}
			out := cmd.OutOrStdout()
			_, err = fmt.Fprintln(out, paint(response, useColor(out, noColor)))
			return err
		},
	}

	flags := cmd.Flags()
	flags.SetInterspersed(false)
	flags.StringVar(&server, "server", client.DefaultAddr, "server address")
	flags.DurationVar(&timeout, "timeout", client.DefaultTimeout, "time allowed for the whole request")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

// useColor reports whether out is a terminal that should get colors
func useColor(out io.Writer, disabled bool) bool {
	if disabled || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// paint highlights the status word of a response
func paint(response string, enabled bool) string {
	if !enabled {
		return response
	}
	head, rest, found := strings.Cut(response, " ")
	if !found {
		return response
	}
	switch head {
	case "Success.":
		head = color.GreenString(head)
	case "Failed.":
		head = color.YellowString(head)
	case "Error:":
		head = color.RedString(head)
	default:
		return response
	}
	return head + " " + rest
}
