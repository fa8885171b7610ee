package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"

	tbnet "TileBoard/internal/net"
	"TileBoard/internal/printer"
	"TileBoard/internal/redisstore"
)

var hostOpts struct {
	port      int
	redisURL  string
	namespace string
	canvas    string
	headless  bool
	noMDNS    bool
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Serve a canvas to the local network",
	Long: `Serve a canvas over HTTP and websockets and open it locally.

Tiles and edit locks live in Redis. Without --redis an in-process Redis is
started and the canvas is lost when the host exits. Several hosts pointed at
the same Redis and namespace share their canvases.

Examples:
  # Host the default canvas with an in-process Redis
  tileboard host

  # Host a canvas without a window, backed by a shared Redis
  tileboard host --canvas design --redis redis://10.0.0.5:6379/0 --headless`,
	RunE: runHost,
}

func init() {
	hostCmd.Flags().IntVarP(&hostOpts.port, "port", "p", 8888, "HTTP port")
	hostCmd.Flags().StringVar(&hostOpts.redisURL, "redis", "", "Redis URL (default: in-process Redis)")
	hostCmd.Flags().StringVar(&hostOpts.namespace, "namespace", "local", "Redis key namespace")
	hostCmd.Flags().StringVar(&hostOpts.canvas, "canvas", "default", "Canvas to open and advertise")
	hostCmd.Flags().BoolVar(&hostOpts.headless, "headless", false, "Serve without opening a window")
	hostCmd.Flags().BoolVar(&hostOpts.noMDNS, "no-mdns", false, "Do not advertise on the local network")
	rootCmd.AddCommand(hostCmd)
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisURL := hostOpts.redisURL
	if redisURL == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return printer.Error("Failed to start in-process Redis", err.Error(), nil)
		}
		defer mr.Close()
		redisURL = "redis://" + mr.Addr()
		printer.Warning("Using in-process Redis; tiles are lost when the host exits")
	}

	store, err := redisstore.Open(ctx, redisURL, hostOpts.namespace, cfg.LockTTL)
	if err != nil {
		return printer.Error("Cannot reach Redis", err.Error(), map[string]string{"url": redisURL})
	}
	defer store.Close()

	hub := tbnet.NewHub(store)
	defer hub.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", hostOpts.port),
		Handler:           tbnet.NewServer(store, hub).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("[Host] Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Host] Shutdown failed: %v", err)
		}
	}()

	if !hostOpts.noMDNS {
		adv, err := tbnet.Advertise(hostOpts.port, []string{hostOpts.canvas})
		if err != nil {
			printer.Warning("Not advertising on the local network: %v", err)
		} else {
			defer adv.Shutdown()
		}
	}

	share := tbnet.ShareLink(tbnet.HostPort(tbnet.OutgoingIP(), hostOpts.port), hostOpts.canvas)
	printer.Success("Hosting canvas %s", hostOpts.canvas)
	printer.Link("Share:", share)

	if hostOpts.headless {
		select {
		case <-ctx.Done():
			printer.Step("Shutting down")
			return nil
		case err, ok := <-serveErr:
			if !ok {
				return nil
			}
			return printer.Error("Host stopped", err.Error(), map[string]string{"addr": srv.Addr})
		}
	}

	select {
	case err := <-serveErr:
		if err != nil {
			return printer.Error("Cannot listen", err.Error(), map[string]string{"addr": srv.Addr})
		}
	case <-time.After(200 * time.Millisecond):
	}
	return session{
		baseURL:   httpBase(tbnet.HostPort("127.0.0.1", hostOpts.port)),
		canvasID:  hostOpts.canvas,
		shareLink: share,
		cfg:       cfg,
	}.run(ctx)
}
