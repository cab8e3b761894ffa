// b003flash flashes a raw .bin image onto a B003 bootloader device, or serves
// the flashing API over HTTP.
//
// Usage:
//
//	b003flash [-config file] [-simulate] [-yes] <file.bin | URL>
//	b003flash [-config file] [-simulate] serve
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/moffa90/go-b003flash/bootloader"
	"github.com/moffa90/go-b003flash/image"
	"github.com/moffa90/go-b003flash/internal/config"
	"github.com/moffa90/go-b003flash/internal/logging"
	"github.com/moffa90/go-b003flash/internal/server"
	"github.com/moffa90/go-b003flash/internal/simdriver"
	"github.com/moffa90/go-b003flash/protocol"
)

// errNoDriver is returned when no hardware transport is linked in.
var errNoDriver = errors.New("no USB driver is built into this binary; run with -simulate or link a protocol.Driver")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("b003flash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "b003flash.yaml", "path to YAML configuration")
	simulate := fs.Bool("simulate", false, "use the in-process simulated device")
	yes := fs.Bool("yes", false, "accept untrusted remote images without prompting")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: b003flash [-config file] [-simulate] [-yes] <file.bin | URL>")
		fmt.Fprintln(stderr, "       b003flash [-config file] [-simulate] serve")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if *simulate {
		cfg.Simulate = true
	}

	logger := logging.New(stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	drv, err := newDriver(cfg)
	if err != nil {
		logger.Error("Failed to initialize driver", "error", err)
		return 1
	}

	if fs.Arg(0) == "serve" {
		if err := serve(cfg, drv, logger); err != nil {
			logger.Error("Server failed", "error", err)
			return 1
		}
		return 0
	}

	return flashOnce(cfg, drv, logger, fs.Arg(0), *yes, stdin, stdout)
}

func newDriver(cfg *config.Config) (protocol.Driver, error) {
	if cfg.Simulate {
		return simdriver.New(cfg.Simulator), nil
	}
	return nil, errNoDriver
}

// sourceFor picks the image source for a command-line argument. An http(s)
// argument must pass the remote filter; anything else is a local path.
func sourceFor(arg string, client *http.Client) (image.Source, error) {
	lower := strings.ToLower(arg)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		remote, err := image.ParseRemote(arg, image.WithHTTPClient(client))
		if err != nil {
			return nil, err
		}
		return remote, nil
	}
	return image.FromFile(arg), nil
}

// confirmer returns the gate applied before an untrusted remote image is
// flashed. Without -yes the operator must answer on an interactive terminal.
func confirmer(yes bool, stdin io.Reader, stdout io.Writer) bootloader.RemoteConfirm {
	return func(url, warning string) bool {
		fmt.Fprintf(stdout, "%s\n  %s\n", warning, url)
		if yes {
			return true
		}
		if f, ok := stdin.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
			fmt.Fprintln(stdout, "not a terminal; pass -yes to accept")
			return false
		}
		fmt.Fprint(stdout, "Flash this image? [y/N] ")
		line, _ := bufio.NewReader(stdin).ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func flashOnce(cfg *config.Config, drv protocol.Driver, logger *slog.Logger, arg string, yes bool, stdin io.Reader, stdout io.Writer) int {
	src, err := sourceFor(arg, &http.Client{Timeout: cfg.FetchTimeout})
	if err != nil {
		fmt.Fprintf(stdout, "error: %v\n", err)
		return 1
	}

	f := bootloader.New(drv,
		bootloader.WithLogger(logging.Adapter{L: logger}),
		bootloader.WithDeviceIDs(cfg.VendorID, cfg.ProductID),
		bootloader.WithRemoteConfirm(confirmer(yes, stdin, stdout)),
		bootloader.WithStatusCallback(func(st bootloader.Status) {
			fmt.Fprintf(stdout, "[%6s] %s\n", st.ElapsedTime.Round(time.Millisecond), st.Message)
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := f.Flash(ctx, src)
	if err != nil {
		var ferr *bootloader.FlashError
		if errors.As(err, &ferr) {
			if r := ferr.Remediation(); r != "" {
				fmt.Fprintf(stdout, "\n%s\n", r)
			}
		} else {
			fmt.Fprintf(stdout, "error: %v\n", err)
		}
		return 1
	}

	fmt.Fprintf(stdout, "Flashed %s (%s, checksum 0x%04X) in %s\n",
		res.Source,
		humanize.Bytes(uint64(res.BytesWritten)),
		res.Checksum,
		res.ElapsedTime.Round(time.Millisecond),
	)
	return 0
}

func serve(cfg *config.Config, drv protocol.Driver, logger *slog.Logger) error {
	s := server.New(server.Options{
		Driver:         drv,
		Logger:         logger,
		HTTPClient:     &http.Client{Timeout: cfg.FetchTimeout},
		AllowedOrigins: cfg.AllowedOrigins,
		VendorID:       cfg.VendorID,
		ProductID:      cfg.ProductID,
	})

	// WebSocket streams stay open, so there is no write timeout.
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", srv.Addr, "simulate", cfg.Simulate)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	stop()

	logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("Server stopped successfully")
	return nil
}
