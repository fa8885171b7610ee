package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"TileBoard/internal/export"
	tbnet "TileBoard/internal/net"
	"TileBoard/internal/printer"
	"TileBoard/internal/state"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <tileboard://host:port/canvas>",
	Short: "Save a whole canvas as PDF or PNG",
	Long: `Fetch every tile of a canvas from its host and write the full grid to a
file. The format follows the file extension (.pdf or .png).

Examples:
  tileboard export tileboard://10.0.0.2:8888/default -o board.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "board.pdf", "Output file (.pdf or .png)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	addr, canvasID, err := tbnet.ParseShareLink(args[0])
	if err != nil {
		return printer.Error("Invalid share link", err.Error(), nil)
	}
	ext := strings.ToLower(filepath.Ext(exportOut))
	if ext != ".pdf" && ext != ".png" {
		return printer.Error("Unsupported output format", "Use a .pdf or .png file name.", map[string]string{"output": exportOut})
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	api := tbnet.NewAPIClient(httpBase(addr), state.NewSessionID(), nil)
	printer.Step("Fetching %s from %s", canvasID, addr)
	tiles, err := api.FetchTiles(ctx, canvasID)
	if err != nil {
		return printer.Error("Cannot fetch tiles", err.Error(), map[string]string{"host": addr, "canvas": canvasID})
	}

	p, release, err := export.Snapshot(cfg, tiles)
	if err != nil {
		return err
	}
	defer release()

	w, h := float64(cfg.GridWidth), float64(cfg.GridHeight)
	if ext == ".pdf" {
		err = export.PDFFile(exportOut, p, w, h, canvasID)
	} else {
		err = writePNG(exportOut, func(f *os.File) error { return export.PNG(f, p, w, h) })
	}
	if err != nil {
		return printer.Error("Export failed", err.Error(), map[string]string{"output": exportOut})
	}
	printer.Success("Wrote %d tiles to %s", p.Stats().TilesDrawn, exportOut)
	return nil
}

func writePNG(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
