package main

import (
	"github.com/aretw0/citylink/internal/cli"
	"github.com/spf13/cobra"
)

var offerCmd = &cobra.Command{
	Use:   "offer",
	Short: "Send and settle trade offers",
}

var offerSendCmd = &cobra.Command{
	Use:     "send --give key=amount --receive key=amount",
	Short:   "Offer the partner a trade",
	Example: "  citylink offer send --give wood=100 --receive stone=50",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		give, _ := cmd.Flags().GetString("give")
		receive, _ := cmd.Flags().GetString("receive")
		return withApp(cmd, func(app *cli.App) error {
			return cli.RunSendOffer(cmd.Context(), app, give, receive, cmd.OutOrStdout())
		})
	},
}

var offerAcceptCmd = &cobra.Command{
	Use:   "accept <offer-id>",
	Short: "Accept an incoming offer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.RunSettleOffer(cmd.Context(), app, args[0], true)
		})
	},
}

var offerRejectCmd = &cobra.Command{
	Use:   "reject <offer-id>",
	Short: "Reject an incoming offer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.RunSettleOffer(cmd.Context(), app, args[0], false)
		})
	},
}

var offerLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List incoming and sent offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(app *cli.App) error {
			return cli.RunListOffers(app, cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.AddCommand(offerCmd)
	offerCmd.AddCommand(offerSendCmd, offerAcceptCmd, offerRejectCmd, offerLsCmd)

	offerSendCmd.Flags().String("give", "", "Resource and amount to give, e.g. wood=100")
	offerSendCmd.Flags().String("receive", "", "Resource and amount to receive, e.g. stone=50")
	_ = offerSendCmd.MarkFlagRequired("give")
	_ = offerSendCmd.MarkFlagRequired("receive")
}
