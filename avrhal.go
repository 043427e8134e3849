package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"lautenbacher.net/avrhal/config"
	"lautenbacher.net/avrhal/logging"
	"lautenbacher.net/avrhal/monitor"
	"lautenbacher.net/avrhal/platform"
	"lautenbacher.net/avrhal/session"
)

const (
	flagConfig  = "config"
	flagDebug   = "debug"
	flagMessage = "message"
	flagAPI     = "api"

	defaultMessage = "HELLO"

	// Editors write a file in several steps.
	reloadSettle = 200 * time.Millisecond
)

type App struct {
	cfile       string
	debug       bool
	conf        *config.Config
	ossignal    chan os.Signal
	newPlatform func(*config.Config) (platform.Platform, error)
	out         io.Writer
}

func NewApp(cfile string, ossignal chan os.Signal) *App {
	return &App{
		cfile:       cfile,
		ossignal:    ossignal,
		newPlatform: platform.New,
		out:         os.Stdout,
	}
}

// load reads the configuration and sets up logging for it. On error the
// previous configuration and logger stay in place.
func (a *App) load(bufferOutput bool) error {
	conf, err := config.ReadConfig(a.cfile)
	if err != nil {
		return err
	}
	if a.debug {
		conf.Logging.Level = "DEBUG"
	}
	if err := logging.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to close log:", err)
	}
	if err := logging.Init(bufferOutput, conf.Logging); err != nil {
		return fmt.Errorf("can't open log file: %w", err)
	}
	a.conf = conf
	return nil
}

type operation func(ctx context.Context, plat platform.Platform, s *session.Session) error

// oneShot starts the platform, runs op and stops the platform again.
func (a *App) oneShot(ctx context.Context, op operation) (err error) {
	plat, err := a.newPlatform(a.conf)
	if err != nil {
		return err
	}
	if err := plat.Start(); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, plat.Stop())
	}()
	return op(ctx, plat, session.New(plat.Transceiver(), a.conf.Bus.Timeout))
}

func (a *App) send(msg string) operation {
	return func(ctx context.Context, _ platform.Platform, s *session.Session) error {
		return s.Send(ctx, []byte(msg))
	}
}

func (a *App) receive(ctx context.Context, _ platform.Platform, s *session.Session) error {
	got, err := s.Receive(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%s\n", got)
	return err
}

func (a *App) echo(msg string) operation {
	return func(ctx context.Context, plat platform.Platform, s *session.Session) error {
		got, err := s.Echo(ctx, plat.Role(), []byte(msg))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(a.out, "%s\n", got)
		return err
	}
}

// runMonitor shows the monitor until a quit signal arrives. A SIGHUP or a
// change of the config file restarts platform and monitor with the
// configuration read anew.
func (a *App) runMonitor(msg string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}
	defer watcher.Close()
	// Watch the directory, editors replace the file.
	if err := watcher.Add(filepath.Dir(a.cfile)); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	for {
		plat, err := a.newPlatform(a.conf)
		if err != nil {
			return err
		}
		if err := plat.Start(); err != nil {
			return err
		}
		mon := monitor.New(plat, a.conf, msg, a.ossignal)
		mon.Start()

		reload := a.waitForEvent(watcher)

		mon.Stop()
		if err := plat.Stop(); err != nil {
			slog.Error("Platform stopped with errors", "error", err)
		}
		if !reload {
			return nil
		}
		if err := a.load(true); err != nil {
			slog.Error("Keeping previous configuration", "error", err)
		} else {
			slog.Info("Configuration reloaded", "file", a.cfile)
		}
	}
}

// waitForEvent blocks until a signal or a config change. It reports whether
// to reload.
func (a *App) waitForEvent(watcher *fsnotify.Watcher) bool {
	for {
		select {
		case sig := <-a.ossignal:
			if sig == syscall.SIGHUP {
				slog.Info("Reload requested")
				return true
			}
			slog.Info("Received signal, shutting down", "signal", sig)
			return false
		case ev, ok := <-watcher.Events:
			if !ok {
				return false
			}
			if a.isConfigChange(ev) {
				slog.Info("Config file changed", "op", ev.Op)
				settle(watcher)
				return true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return false
			}
			slog.Warn("Config watcher failed", "error", err)
		}
	}
}

func (a *App) isConfigChange(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(a.cfile) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)
}

// settle swallows further events until the file was quiet for a while.
func settle(watcher *fsnotify.Watcher) {
	timer := time.NewTimer(reloadSettle)
	defer timer.Stop()
	for {
		select {
		case <-watcher.Events:
			timer.Reset(reloadSettle)
		case <-timer.C:
			return
		}
	}
}

// serveAPI serves the config API on addr until the returned function is
// called.
func (a *App) serveAPI(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/api/config", config.ConfigHandler(a.cfile))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("Serving config API", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Config API failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Config API shutdown", "error", err)
		}
	}
}

func newCLIApp(ossignal chan os.Signal) *cli.App {
	var a *App

	messageFlag := &cli.StringFlag{
		Name:    flagMessage,
		Aliases: []string{"m"},
		Value:   defaultMessage,
		Usage:   "message to send, without the terminating '#'",
	}
	oneShot := func(op func(c *cli.Context) operation) cli.ActionFunc {
		return func(c *cli.Context) error {
			if err := a.load(false); err != nil {
				return err
			}
			defer logging.Close()
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.oneShot(ctx, op(c))
		}
	}

	return &cli.App{
		Name:  "avrhal",
		Usage: "drive the AVR SPI bus and external interrupts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   config.CONFILE,
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "log at debug level",
			},
		},
		Before: func(c *cli.Context) error {
			a = NewApp(c.String(flagConfig), ossignal)
			a.debug = c.Bool(flagDebug)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "send",
				Usage: "send one message",
				Flags: []cli.Flag{messageFlag},
				Action: oneShot(func(c *cli.Context) operation {
					return a.send(c.String(flagMessage))
				}),
			},
			{
				Name:  "receive",
				Usage: "receive one message and print it",
				Action: oneShot(func(*cli.Context) operation {
					return a.receive
				}),
			},
			{
				Name:  "echo",
				Usage: "send a message and print the answer; as slave answer what comes in",
				Flags: []cli.Flag{messageFlag},
				Action: oneShot(func(c *cli.Context) operation {
					return a.echo(c.String(flagMessage))
				}),
			},
			{
				Name:  "monitor",
				Usage: "show traffic, registers and interrupts in the terminal",
				Flags: []cli.Flag{
					messageFlag,
					&cli.StringFlag{
						Name:  flagAPI,
						Usage: "serve /api/config on `ADDR`, e.g. :8080",
					},
				},
				Action: func(c *cli.Context) error {
					if err := a.load(true); err != nil {
						return err
					}
					defer logging.Close()
					if addr := c.String(flagAPI); addr != "" {
						defer a.serveAPI(addr)()
					}
					return a.runMonitor(c.String(flagMessage))
				},
			},
		},
	}
}

func main() {
	ossignal := make(chan os.Signal, 1)
	signal.Notify(ossignal, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	if err := newCLIApp(ossignal).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "avrhal:", err)
		os.Exit(1)
	}
}
