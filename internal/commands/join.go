package commands

import (
	"context"

	"github.com/spf13/cobra"

	tbnet "TileBoard/internal/net"
	"TileBoard/internal/printer"
)

var joinCmd = &cobra.Command{
	Use:   "join <tileboard://host:port/canvas>",
	Short: "Open a canvas shared by another host",
	Args:  cobra.ExactArgs(1),
	RunE:  runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	addr, canvasID, err := tbnet.ParseShareLink(args[0])
	if err != nil {
		return printer.Error("Invalid share link", err.Error(), nil)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	printer.Step("Joining %s on %s", canvasID, addr)
	return session{
		baseURL:   httpBase(addr),
		canvasID:  canvasID,
		shareLink: args[0],
		cfg:       cfg,
	}.run(context.Background())
}
