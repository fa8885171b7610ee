package commands

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	tbnet "TileBoard/internal/net"
	"TileBoard/internal/printer"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List hosts on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		printer.Step("Looking for hosts for %s", discoverTimeout)
		found := 0
		err := tbnet.Browse(discoverTimeout, func(h tbnet.Host) {
			found++
			printer.Success("%s at %s (%s)", h.Name, h.Addr, strings.Join(h.Canvases, ", "))
			for _, c := range h.Canvases {
				printer.Link("  ", tbnet.ShareLink(h.Addr, c))
			}
		})
		if err != nil {
			return printer.Error("Discovery failed", err.Error(), nil)
		}
		if found == 0 {
			printer.Warning("No hosts found")
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVarP(&discoverTimeout, "timeout", "t", 3*time.Second, "How long to listen for hosts")
	rootCmd.AddCommand(discoverCmd)
}
