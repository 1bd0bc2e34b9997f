package netio

import (
	"net"
	"strconv"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/mariamtelly/kvserver/internal/command"
	"github.com/mariamtelly/kvserver/internal/metrics"
	"github.com/mariamtelly/kvserver/internal/store"
	"github.com/mariamtelly/kvserver/internal/wire"
)

// defaultReadChunk is how much is read off a socket per readability event
// when the caller does not override it.
const defaultReadChunk = 64 * 1024

// Connection is a single peer's socket plus its framing state machine: an
// fd, ingress/egress buffers, and three boolean intents that drive the
// epoll interest mask. Once wantClose is set it is never cleared.
type Connection struct {
	fd int
	id uuid.UUID

	ingress, egress Buffer
	scratch         []byte

	wantRead  bool
	wantWrite bool
	wantClose bool

	logger log.Logger
}

func newConnection(fd int, readChunk int, logger log.Logger) *Connection {
	id := uuid.New()
	return &Connection{
		fd:        fd,
		id:        id,
		scratch:   make([]byte, readChunk),
		wantRead:  true,
		wantClose: false,
		logger:    log.With(logger, "conn", id.String()),
	}
}

// handleReadable services one readability event: read one chunk (up to
// len(scratch) bytes) from the socket into ingress, then decode and dispatch
// every complete frame pipelined in it.
func (c *Connection) handleReadable(s *store.Store, m *metrics.Metrics) {
	n, err := unix.Read(c.fd, c.scratch)
	switch {
	case err == unix.EAGAIN:
		return
	case err != nil:
		level.Warn(c.logger).Log("msg", "read error", "err", err)
		c.wantClose = true
		return
	case n == 0:
		if c.ingress.Len() > 0 {
			level.Warn(c.logger).Log("msg", "unexpected EOF with pending input")
		}
		c.wantClose = true
		return
	}
	m.BytesRead.Add(float64(n))
	c.ingress.Append(c.scratch[:n])

	for {
		args, consumed, derr := wire.Decode(c.ingress.Bytes())
		if derr == wire.ErrIncomplete {
			break
		}
		if derr != nil {
			level.Warn(c.logger).Log("msg", "protocol error, closing connection", "err", derr)
			c.wantClose = true
			return
		}
		c.ingress.Consume(consumed)

		if len(args) > 0 {
			m.CommandsTotal.WithLabelValues(string(args[0])).Inc()
			if len(args) == 3 && string(args[0]) == "range" {
				level.Debug(c.logger).Log("msg", "range scan", "cursor", command.RangeCursorHash(args[1], args[2]))
			}
		}
		resp := command.Dispatch(s, args)
		c.egress.Append(wire.EncodeFrame(resp))
	}

	if c.egress.Len() > 0 {
		c.wantRead = false
		c.wantWrite = true
		c.tryWrite(m)
	}
}

// handleWritable drains as much of egress as the socket will currently
// accept.
func (c *Connection) handleWritable(m *metrics.Metrics) {
	c.tryWrite(m)
}

func (c *Connection) tryWrite(m *metrics.Metrics) {
	for c.egress.Len() > 0 {
		n, err := unix.Write(c.fd, c.egress.Bytes())
		if err == unix.EAGAIN {
			return
		}
		if err != nil {
			level.Warn(c.logger).Log("msg", "write error", "err", err)
			c.wantClose = true
			return
		}
		m.BytesWritten.Add(float64(n))
		c.egress.Consume(n)
	}
	c.wantRead = true
	c.wantWrite = false
}

func (c *Connection) interestMask() uint32 {
	var mask uint32 = unix.EPOLLERR
	if c.wantRead {
		mask |= unix.EPOLLIN
	}
	if c.wantWrite {
		mask |= unix.EPOLLOUT
	}
	return mask
}

// Engine is the single-threaded event loop: it owns the listening socket,
// the epoll instance, and the fd→Connection table, and is the sole
// goroutine ever allowed to call into Store.
type Engine struct {
	listenFD int
	epfd     int
	wakeFD   int // eventfd used to interrupt a blocked epoll_wait on Stop

	conns map[int]*Connection

	store     *store.Store
	metrics   *metrics.Metrics
	logger    log.Logger
	readChunk int

	mu      sync.Mutex
	stopped bool
}

// NewEngine binds addr (TCP over IPv4, SO_REUSEADDR) and prepares the
// epoll instance. It does not start accepting connections until Run is
// called. readChunk is the number of bytes read off a socket per
// readability event; callers pass 0 to accept defaultReadChunk.
func NewEngine(addr string, readChunk int, s *store.Store, m *metrics.Metrics, logger log.Logger) (*Engine, error) {
	if readChunk <= 0 {
		readChunk = defaultReadChunk
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, err
	}

	listenFD, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(listenFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(listenFD)
		return nil, err
	}
	var sa unix.SockaddrInet4
	if tcpAddr.IP != nil {
		copy(sa.Addr[:], tcpAddr.IP.To4())
	}
	sa.Port = tcpAddr.Port
	if err := unix.Bind(listenFD, &sa); err != nil {
		unix.Close(listenFD)
		return nil, err
	}
	if err := unix.Listen(listenFD, unix.SOMAXCONN); err != nil {
		unix.Close(listenFD)
		return nil, err
	}
	if err := unix.SetNonblock(listenFD, true); err != nil {
		unix.Close(listenFD)
		return nil, err
	}

	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		unix.Close(listenFD)
		return nil, err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, listenFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(listenFD),
	}); err != nil {
		unix.Close(listenFD)
		unix.Close(epfd)
		return nil, err
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(listenFD)
		unix.Close(epfd)
		return nil, err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFD),
	}); err != nil {
		unix.Close(listenFD)
		unix.Close(epfd)
		unix.Close(wakeFD)
		return nil, err
	}

	return &Engine{
		listenFD:  listenFD,
		epfd:      epfd,
		wakeFD:    wakeFD,
		conns:     make(map[int]*Connection),
		store:     s,
		metrics:   m,
		logger:    logger,
		readChunk: readChunk,
	}, nil
}

// Run drives the event loop until Stop is called: build readiness interest
// every tick, block indefinitely, retry on EINTR, then service every
// reported fd.
func (e *Engine) Run() error {
	events := make([]unix.EpollEvent, 64)
	for {
		e.syncInterest()

		n, err := unix.EpollWait(e.epfd, events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}

		// Service the listener before any peer fd.
		for i := 0; i < n; i++ {
			if int(events[i].Fd) == e.listenFD {
				e.acceptAll()
			}
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch {
			case fd == e.wakeFD:
				e.mu.Lock()
				stopped := e.stopped
				e.mu.Unlock()
				if stopped {
					e.teardownAll()
					return nil
				}
			case fd == e.listenFD:
				// handled above
			default:
				e.service(fd, events[i].Events)
			}
		}
	}
}

// syncInterest re-registers every connection's epoll interest mask so a
// Read-triggered flip to want_write (or back) takes effect on the next
// wait. Connections marked want_close are torn down here instead.
func (e *Engine) syncInterest() {
	for fd, c := range e.conns {
		if c.wantClose {
			e.closeConn(fd)
			continue
		}
		unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
			Events: c.interestMask(),
			Fd:     int32(fd),
		})
	}
}

func (e *Engine) acceptAll() {
	for {
		fd, _, err := unix.Accept(e.listenFD)
		if err == unix.EAGAIN {
			return
		}
		if err != nil {
			level.Warn(e.logger).Log("msg", "accept error", "err", err)
			return
		}
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
			continue
		}
		conn := newConnection(fd, e.readChunk, e.logger)
		e.conns[fd] = conn
		e.metrics.ConnectionsAccepted.Inc()
		unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
			Events: conn.interestMask(),
			Fd:     int32(fd),
		})
	}
}

func (e *Engine) service(fd int, events uint32) {
	c, ok := e.conns[fd]
	if !ok {
		return
	}
	if events&unix.EPOLLERR != 0 {
		c.wantClose = true
	}
	if events&unix.EPOLLIN != 0 {
		c.handleReadable(e.store, e.metrics)
	}
	if !c.wantClose && events&unix.EPOLLOUT != 0 {
		c.handleWritable(e.metrics)
	}
	if c.wantClose {
		e.closeConn(fd)
	}
}

func (e *Engine) closeConn(fd int) {
	if _, ok := e.conns[fd]; !ok {
		return
	}
	unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	unix.Close(fd)
	delete(e.conns, fd)
	e.metrics.ConnectionsClosed.Inc()
}

func (e *Engine) teardownAll() {
	for fd := range e.conns {
		e.closeConn(fd)
	}
	unix.Close(e.listenFD)
	unix.Close(e.wakeFD)
	unix.Close(e.epfd)
}

// listenAddr reports the address the listening socket is actually bound to,
// resolving the ephemeral port the kernel picks for addr ":0". Tests use it;
// production callers already know their configured address.
func (e *Engine) listenAddr() string {
	sa, err := unix.Getsockname(e.listenFD)
	if err != nil {
		return ""
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return ""
	}
}

// Stop interrupts a blocked Run and tears down every live connection plus
// the listener. It is safe to call from any goroutine.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	var one [8]byte
	one[0] = 1
	unix.Write(e.wakeFD, one[:])
}
