// Package commands is the tileboard command line.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"TileBoard/internal/config"
	tbnet "TileBoard/internal/net"
	"TileBoard/internal/printer"
)

var (
	configPath string
	username   string
)

var rootCmd = &cobra.Command{
	Use:   "tileboard [tileboard://host:port/canvas]",
	Short: "Shared tile grid for the local network",
	Long: `TileBoard is a realtime multi-user tile grid. One machine hosts a
canvas and hands out a tileboard:// link; everyone who opens the link
sees the same tiles, who is online and which tile each person is editing.

Opening a tileboard:// link directly is the same as "tileboard join".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 && strings.HasPrefix(args[0], tbnet.Scheme) {
			return runJoin(cmd, args)
		}
		return cmd.Help()
	},
}

// Execute runs the command line. Errors are printed by the printer package.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil && !printer.Printed(err) {
		printer.Error("Error", err.Error(), nil)
	}
	return err
}

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file, reloaded when it changes")
	rootCmd.PersistentFlags().StringVarP(&username, "name", "n", defaultUsername(), "Name shown to other participants")
}

func defaultUsername() string {
	for _, env := range []string{"TILEBOARD_NAME", "USER", "USERNAME"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return "guest"
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error("Invalid configuration", err.Error(), map[string]string{"file": configPath})
	}
	return cfg, nil
}

func httpBase(addr string) string {
	return fmt.Sprintf("http://%s", addr)
}
