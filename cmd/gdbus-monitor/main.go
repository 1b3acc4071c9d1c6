// Command gdbus-monitor either watches signals on a bus (mirroring
// the real gdbus-monitor(1)) or, with -serve, stands up a peer-to-peer
// bus.Server and prints a one-line log for every connection it
// accepts — a demo harness for spec.md §8 scenario 5. Example glue,
// not CORE engineering (spec.md §1).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"

	"github.com/gdbus-go/gdbus/buildinfo"
	"github.com/gdbus-go/gdbus/bus"
	"github.com/gdbus-go/gdbus/config"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	system := flag.Bool("system", false, "use the system bus instead of the session bus")
	peer := flag.String("peer", "", "connect directly to this D-Bus address instead of a bus daemon")
	serve := flag.String("serve", "", "instead of monitoring, listen as a peer-to-peer Server on this D-Bus address")
	iface := flag.String("interface", "", "filter signals to this interface")
	member := flag.String("member", "", "filter signals to this member")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(buildinfo.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.Default()
	if p, err := config.FindConfig(*configPath); err == nil {
		if loaded, err := config.Load(p); err == nil {
			cfg = loaded
		}
	}
	if *peer == "" {
		*peer = cfg.Peer
	}
	if *serve == "" {
		*serve = cfg.Listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve != "" {
		runServe(*serve, logger)
		<-ctx.Done()
		return
	}

	runMonitor(ctx, *system, *peer, *iface, *member, logger)
}

func runServe(addr string, logger *slog.Logger) {
	srv, err := bus.Listen(addr, func(conn *bus.Connection) {
		cred := conn.PeerCredentials()
		logger.Info("peer connected", "addr", addr, "pid", credPID(cred), "uid", credUID(cred))
	}, bus.Options{Logger: logger})
	if err != nil {
		logger.Error("listen", "address", addr, "error", err)
		os.Exit(1)
	}
	logger.Info("serving peer-to-peer connections", "address", srv.Addr().String(), "guid", srv.GUID())
}

func credPID(c *bus.PeerCredentials) any {
	if c == nil {
		return "unknown"
	}
	return c.PID
}

func credUID(c *bus.PeerCredentials) any {
	if c == nil {
		return "unknown"
	}
	return c.UID
}

func runMonitor(ctx context.Context, system bool, peerAddr, iface, member string, logger *slog.Logger) {
	opts := bus.Options{Logger: logger}
	var conn *bus.Connection
	var err error
	if peerAddr != "" {
		conn, err = bus.DialPeer(ctx, peerAddr, opts)
	} else {
		busType := bus.Session
		if system {
			busType = bus.System
		}
		conn, err = bus.BusGet(ctx, busType, opts)
	}
	if err != nil {
		logger.Error("connect", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	rule := bus.MatchRule{Interface: iface, Member: member}
	_, err = conn.SignalSubscribe(rule, func(sender string, path dbus.ObjectPath, iface, member string, body []any) {
		fmt.Printf("%s: %s.%s %v\n", path, iface, member, body)
	}, nil)
	if err != nil {
		logger.Error("subscribe", "error", err)
		os.Exit(1)
	}

	logger.Info("monitoring", "interface", iface, "member", member)
	<-ctx.Done()
}
