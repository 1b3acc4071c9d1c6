package bus

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// PeerCredentials is the SO_PEERCRED-derived identity of a unix-domain
// peer connection's remote endpoint, retrieved by Server on accept.
type PeerCredentials struct {
	PID int32
	UID uint32
	GID uint32
}

// Server is the peer-to-peer listener spec.md §2/§9 describes:
// "Server, a peer-to-peer listener producing connections without a
// bus daemon." It accepts raw transport connections, runs the minimal
// server side of the D-Bus SASL handshake, and hands each resulting
// *Connection to OnConnection.
type Server struct {
	ln     net.Listener
	guid   string
	opts   Options
	onConn func(*Connection)
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	conns  map[*Connection]struct{}
}

// Listen starts a Server on address (a single D-Bus address clause —
// spec.md §6's "unix:path=..." or "unix:abstract=..." or
// "tcp:host=...,port=..." forms). onConnection is invoked once per
// accepted peer, on its own goroutine, after the connection reaches
// StateOpen; use it to RegisterObject/RegisterSubtree against the
// freshly accepted Connection.
func Listen(address string, onConnection func(*Connection), opts Options) (*Server, error) {
	entries, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	entry := entries[0]

	var ln net.Listener
	switch entry.Transport {
	case "unix":
		switch {
		case entry.Params["path"] != "":
			ln, err = net.Listen("unix", entry.Params["path"])
		case entry.Params["abstract"] != "":
			ln, err = listenAbstractUnix(entry.Params["abstract"])
		default:
			return nil, fmt.Errorf("%w: unix server address needs path= or abstract=", ErrBadAddress)
		}
	case "tcp":
		ln, err = net.Listen("tcp", net.JoinHostPort(entry.Params["host"], entry.Params["port"]))
	default:
		return nil, fmt.Errorf("%w: unsupported server transport %q", ErrBadAddress, entry.Transport)
	}
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		ln:     ln,
		guid:   newServerGUID(),
		opts:   opts,
		onConn: onConnection,
		logger: opts.Logger,
		conns:  make(map[*Connection]struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// GUID returns the server's D-Bus GUID, the 32-hex-digit identifier
// this process hands every peer during the "OK <guid>" auth reply.
func (s *Server) GUID() string { return s.guid }

func newServerGUID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

func (s *Server) acceptLoop() {
	for {
		netConn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handleAccept(netConn)
	}
}

func (s *Server) handleAccept(netConn net.Conn) {
	if err := serverAuthHandshake(netConn, s.guid); err != nil {
		s.logger.Debug("peer auth handshake failed", "error", err)
		netConn.Close()
		return
	}
	cred := peerCredentials(netConn)

	dbusConn, err := dbus.NewConn(netConn)
	if err != nil {
		s.logger.Debug("peer transport setup failed", "error", err)
		netConn.Close()
		return
	}

	c := newConnection(Session, true, s.opts)
	c.peer = true
	c.attachAccepted(dbusConn, cred)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	watchCh := c.Subscribe(1)
	go func() {
		for ev := range watchCh {
			if ev.State != StateClosed {
				continue
			}
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
			c.UnsubscribeLifecycle(watchCh)
			return
		}
	}()

	if s.onConn != nil {
		s.onConn(c)
	}
}

// Close stops accepting new connections and closes every connection
// this Server has accepted so far.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[*Connection]struct{})
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return s.ln.Close()
}

// serverAuthHandshake runs the minimal server role of the textual
// D-Bus SASL exchange: a leading credential NUL byte, one or more
// "AUTH ..." lines (answered unconditionally with "OK <guid>" — this
// module has no authentication/transport-negotiation scope per
// spec.md §1 Non-goals, so every mechanism the client offers
// succeeds), an optional unix-fd-passing negotiation, and "BEGIN"
// which switches the connection to the binary message protocol.
// Reads happen one byte at a time deliberately: the first byte after
// "BEGIN\r\n" is already a binary D-Bus message, and a buffered reader
// here would strand it unrecoverably in its own buffer instead of
// handing it to dbus.NewConn.
func serverAuthHandshake(conn net.Conn, guid string) error {
	var lead [1]byte
	if _, err := io.ReadFull(conn, lead[:]); err != nil {
		return err
	}
	if lead[0] != 0 {
		return fmt.Errorf("bus: expected leading NUL credential byte, got %#x", lead[0])
	}

	for {
		line, err := readAuthLine(conn)
		if err != nil {
			return err
		}
		switch {
		case strings.HasPrefix(line, "AUTH"):
			if _, err := io.WriteString(conn, "OK "+guid+"\r\n"); err != nil {
				return err
			}
		case strings.HasPrefix(line, "NEGOTIATE_UNIX_FD"):
			if _, err := io.WriteString(conn, "AGREE_UNIX_FD\r\n"); err != nil {
				return err
			}
		case line == "BEGIN":
			return nil
		case line == "":
			continue
		default:
			if _, err := io.WriteString(conn, "ERROR\r\n"); err != nil {
				return err
			}
		}
	}
}

func readAuthLine(conn net.Conn) (string, error) {
	var buf []byte
	var b [1]byte
	for {
		if _, err := io.ReadFull(conn, b[:]); err != nil {
			return "", err
		}
		if b[0] == '\n' {
			return strings.TrimSuffix(string(buf), "\r"), nil
		}
		buf = append(buf, b[0])
	}
}

// listenAbstractUnix binds a unix stream socket in Linux's abstract
// namespace (spec.md §6 address syntax: unix "abstract=" parameter),
// which net.Listen cannot express directly — there is no filesystem
// path to unlink, and the name is conventionally prefixed with a NUL
// byte at the syscall level rather than the leading "@" the address
// string uses.
func listenAbstractUnix(name string) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	sa := &unix.SockaddrUnix{Name: "\x00" + name}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, localError(KindAddressInUse, "bind abstract socket %q: %v", name, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, err
	}

	f := os.NewFile(uintptr(fd), "unix-abstract:"+name)
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	return ln, nil
}

// peerCredentials retrieves the connecting process's identity via
// SO_PEERCRED, available only for unix-domain sockets.
func peerCredentials(conn net.Conn) *PeerCredentials {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return nil
	}
	var cred *PeerCredentials
	_ = raw.Control(func(fd uintptr) {
		u, err := unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
		if err != nil {
			return
		}
		cred = &PeerCredentials{PID: u.Pid, UID: u.Uid, GID: u.Gid}
	})
	return cred
}
