package main

import (
	"github.com/aretw0/citylink/internal/cli"
	"github.com/spf13/cobra"
)

var hostCmd = &cobra.Command{
	Use:   "host [code]",
	Short: "Host a trading session",
	Long:  `Hosts a session under code, or under a random numeric code when none is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code := ""
		if len(args) > 0 {
			code = args[0]
		}
		return withApp(cmd, func(app *cli.App) error {
			return cli.RunHost(cmd.Context(), app, code, cmd.OutOrStdout())
		})
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <code>",
	Short: "Join a session hosted by someone else",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.RunJoin(cmd.Context(), app, args[0], cmd.OutOrStdout())
		})
	},
}

var leaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "Leave the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.RunLeave(cmd.Context(), app, cmd.OutOrStdout())
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the session, resources and offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			format = cli.FormatJSON
		}
		return withApp(cmd, func(app *cli.App) error {
			return cli.RunStatus(app, format, cmd.OutOrStdout())
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the session and redraw on every change",
	Long: `Follows the bound session. Trades accepted by the partner are applied
as soon as the change arrives. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.RunWatch(cmd.Context(), app, cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(hostCmd, joinCmd, leaveCmd, statusCmd, watchCmd)

	statusCmd.Flags().String("format", cli.FormatText, "Output format: text, json or markdown")
	statusCmd.Flags().Bool("json", false, "Shorthand for --format json")
}
