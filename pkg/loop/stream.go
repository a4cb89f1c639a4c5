//go:build unix

package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sys/unix"

	"github.com/srg/ttyio/internal/groutine"
)

// ErrorCallback is invoked when a critical error terminates a stream's
// read or write loop. Called from a background goroutine; implementations
// must be thread-safe. The stream is degraded afterwards and should be
// closed.
type ErrorCallback func(err error)

// ReadCallback is invoked when input arrives on the descriptor (background
// goroutine). Implementations must be thread-safe and must not retain the
// data slice.
type ReadCallback func(data []byte)

// StreamOptions tunes a ConsoleStream. Zero values take defaults.
type StreamOptions struct {
	ReadCap       int            // input ring capacity in bytes
	WriteCap      int            // output ring capacity in bytes
	PollTimeoutMs int            // poll timeout; bounds shutdown latency
	Logger        *logrus.Logger // optional logger (nil = no-op logger)
	OnError       ErrorCallback  // optional callback for critical loop failures
}

const (
	// DefaultPollTimeoutMs bounds how long the background loops wait for
	// I/O readiness before rechecking cancellation.
	DefaultPollTimeoutMs = 50

	// DefaultBufferCap is the ring capacity used when an option is zero.
	DefaultBufferCap = 4096

	ioChunkSize = 4096
)

// noopLogger is shared by streams created without a logger.
var noopLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// Stats carries instantaneous stream counters for monitoring and
// backpressure decisions.
type Stats struct {
	ReadQueueLen  int32
	ReadQueueCap  int32
	WriteQueueLen int32
	WriteQueueCap int32

	DroppedReadCount  uint64 // bytes dropped on input ring overflow
	DroppedWriteCount uint64 // bytes dropped on output ring overflow
	ReadBytesTotal    uint64
	WriteBytesTotal   uint64
}

// ConsoleStream is a non-blocking, ring-buffered stream over an inherited
// console descriptor. Unlike a PTY pair, the descriptor is borrowed, not
// owned: Close stops the background loops and puts the descriptor back
// into blocking mode, but never closes it, since fds 0..2 are shared with
// the rest of the process.
//
// A stream opened with readable=false runs no read loop at all; writes are
// always serviced.
type ConsoleStream struct {
	logger   *logrus.Logger
	fd       int
	readable bool

	onError        ErrorCallback
	readErrorOnce  sync.Once
	writeErrorOnce sync.Once
	pollTimeoutMs  int

	readBuf  *ringbuffer.RingBuffer
	writeBuf *ringbuffer.RingBuffer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// readCb holds a ReadCallback or nil, nothing else.
	readCb      atomic.Value
	readNotify  chan struct{}
	writeNotify chan struct{}

	closed uint32 // atomic boolean

	droppedRead  uint64
	droppedWrite uint64
	readBytes    uint64
	writeBytes   uint64
}

// NewConsoleStream wraps fd and starts the background loops. The
// descriptor is switched to non-blocking mode for the stream's lifetime.
func NewConsoleStream(fd int, readable bool, opts *StreamOptions) (*ConsoleStream, error) {
	if opts == nil {
		opts = &StreamOptions{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger
	}
	readCap := opts.ReadCap
	if readCap == 0 {
		readCap = DefaultBufferCap
	}
	writeCap := opts.WriteCap
	if writeCap == 0 {
		writeCap = DefaultBufferCap
	}
	pollTimeout := opts.PollTimeoutMs
	if pollTimeout == 0 {
		pollTimeout = DefaultPollTimeoutMs
	}

	if err := syscall.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("set fd %d non-blocking: %w", fd, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &ConsoleStream{
		logger:        logger,
		fd:            fd,
		readable:      readable,
		onError:       opts.OnError,
		pollTimeoutMs: pollTimeout,
		readBuf:       ringbuffer.New(readCap),
		writeBuf:      ringbuffer.New(writeCap),
		ctx:           ctx,
		cancel:        cancel,
		readNotify:    make(chan struct{}, 1), // buffered so the signals never block
		writeNotify:   make(chan struct{}, 1),
	}

	s.wg.Add(1)
	groutine.Go(ctx, "console-write-loop", func(context.Context) {
		s.writeLoop()
	})

	if readable {
		s.wg.Add(2)
		groutine.Go(ctx, "console-read-loop", func(context.Context) {
			s.readLoop()
		})
		groutine.Go(ctx, "console-read-dispatcher", func(context.Context) {
			s.dispatchLoop()
		})
	}

	return s, nil
}

// Fd returns the wrapped descriptor.
func (s *ConsoleStream) Fd() int { return s.fd }

// Readable reports whether the stream services reads.
func (s *ConsoleStream) Readable() bool { return s.readable }

func (s *ConsoleStream) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("readLoop panicked (recovered): %v", r)
		}
		s.wg.Done()
	}()

	pollFd := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	buf := make([]byte, ioChunkSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		nReady, err := unix.Poll(pollFd, s.pollTimeoutMs)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			s.logger.Warnf("readLoop poll error: %v", err)
			continue
		}
		if nReady == 0 {
			continue // timeout, recheck cancellation
		}

		n, err := unix.Read(s.fd, buf)

		if n > 0 {
			written, writeErr := s.readBuf.Write(buf[:n])
			if writeErr != nil && !errors.Is(writeErr, ringbuffer.ErrIsFull) {
				s.logger.Warnf("readLoop buffer error: %v", writeErr)
				continue
			}
			if written < n {
				dropped := n - written
				atomic.AddUint64(&s.droppedRead, uint64(dropped))
				s.logger.Warnf("input ring overflow: dropped %d of %d bytes from fd %d",
					dropped, n, s.fd)
			}
			atomic.AddUint64(&s.readBytes, uint64(written))

			if written > 0 && s.readCb.Load() != nil {
				select {
				case s.readNotify <- struct{}{}:
				default:
					// signal already pending
				}
			}
		}

		if n == 0 && err == nil {
			// EOF on the descriptor, e.g. the controlling terminal hung up.
			s.logger.Debug("readLoop exiting: EOF")
			return
		}

		if err != nil {
			switch {
			case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
				continue
			case errors.Is(err, syscall.EINTR):
				continue
			case errors.Is(err, syscall.EBADF), errors.Is(err, syscall.EIO):
				s.logger.Debugf("readLoop exiting: %v", err)
				return
			default:
				s.logger.Warnf("readLoop exiting on error: %v", err)
				if s.onError != nil {
					s.readErrorOnce.Do(func() {
						s.onError(fmt.Errorf("read loop critical error: %w", err))
					})
				}
				return
			}
		}
	}
}

func (s *ConsoleStream) writeLoop() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("writeLoop panicked (recovered): %v", r)
		}
		s.wg.Done()
	}()

	pollFd := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLOUT}}
	buf := make([]byte, ioChunkSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if s.writeBuf.IsEmpty() {
			// Nothing queued. Polling POLLOUT here would return instantly
			// on an idle descriptor and spin; wait for a Write signal
			// instead, capped by the poll timeout so cancellation is still
			// noticed promptly.
			select {
			case <-s.ctx.Done():
				return
			case <-s.writeNotify:
			case <-time.After(time.Duration(s.pollTimeoutMs) * time.Millisecond):
			}
			continue
		}

		n, err := s.writeBuf.TryRead(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			s.logger.Warnf("writeLoop buffer error: %v", err)
			continue
		}
		if n == 0 {
			continue
		}

		offset := 0
		for offset < n {
			written, err := unix.Write(s.fd, buf[offset:n])
			if written > 0 {
				offset += written
				atomic.AddUint64(&s.writeBytes, uint64(written))
			}
			if err != nil {
				switch {
				case errors.Is(err, syscall.EINTR):
					continue
				case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EWOULDBLOCK):
					if _, pollErr := unix.Poll(pollFd, s.pollTimeoutMs); pollErr != nil && !errors.Is(pollErr, syscall.EINTR) {
						s.logger.Warnf("writeLoop poll error: %v", pollErr)
					}
					continue
				case errors.Is(err, syscall.EBADF), errors.Is(err, syscall.EIO):
					s.logger.Debugf("writeLoop exiting: %v", err)
					return
				default:
					s.logger.Warnf("writeLoop exiting on error: %v", err)
					if s.onError != nil {
						s.writeErrorOnce.Do(func() {
							s.onError(fmt.Errorf("write loop critical error: %w", err))
						})
					}
					return
				}
			}
		}
	}
}

func (s *ConsoleStream) dispatchLoop() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("dispatcher panicked (recovered): %v", r)
		}
		s.wg.Done()
	}()

	buf := make([]byte, ioChunkSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.readNotify:
			for {
				select {
				case <-s.ctx.Done():
					return
				default:
				}

				cbIface := s.readCb.Load()
				if cbIface == nil {
					break
				}
				cb, ok := cbIface.(ReadCallback)
				if !ok || cb == nil {
					break
				}

				n, err := s.readBuf.TryRead(buf)
				if n == 0 || errors.Is(err, ringbuffer.ErrIsEmpty) {
					break
				}

				chunk := make([]byte, n)
				copy(chunk, buf[:n])

				// A panicking callback is unregistered so it cannot kill
				// the dispatcher over and over.
				func() {
					defer func() {
						if r := recover(); r != nil {
							s.logger.Errorf("read callback panicked: %v", r)
							s.readCb.Store((ReadCallback)(nil))
							if s.onError != nil {
								s.readErrorOnce.Do(func() {
									s.onError(fmt.Errorf("read callback panic: %v", r))
								})
							}
						}
					}()
					cb(chunk)
				}()
			}
		}
	}
}

// Read drains up to len(p) bytes of buffered input. Non-blocking:
//
//   - (n, nil), n > 0: n bytes read
//   - (0, syscall.EAGAIN): no input currently buffered
//   - (0, os.ErrClosed): stream closed
//   - (0, nil): only when len(p) == 0
func (s *ConsoleStream) Read(p []byte) (int, error) {
	if atomic.LoadUint32(&s.closed) == 1 {
		return 0, os.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := s.readBuf.TryRead(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0, err
	}
	if n == 0 {
		return 0, syscall.EAGAIN
	}
	return n, nil
}

// Write queues p for background transmission. Non-blocking: the return
// count is how many bytes were queued, which may be short when the output
// ring is full. Queued does not mean transmitted; Stats reports progress.
func (s *ConsoleStream) Write(p []byte) (int, error) {
	if atomic.LoadUint32(&s.closed) == 1 {
		return 0, os.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	written, err := s.writeBuf.Write(p)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return 0, err
	}
	if written < len(p) {
		dropped := len(p) - written
		atomic.AddUint64(&s.droppedWrite, uint64(dropped))
		s.logger.Warnf("output ring overflow: dropped %d of %d bytes for fd %d",
			dropped, len(p), s.fd)
	}

	if written > 0 {
		select {
		case s.writeNotify <- struct{}{}:
		default:
			// signal already pending
		}
	}
	return written, nil
}

// SetReadCallback registers cb for asynchronous input delivery, or
// unregisters it when nil. The callback runs on a background goroutine;
// buffered input triggers an immediate notification.
func (s *ConsoleStream) SetReadCallback(cb ReadCallback) {
	if atomic.LoadUint32(&s.closed) == 1 {
		return
	}

	s.readCb.Store(cb)

	select {
	case s.readNotify <- struct{}{}:
	default:
		// notification already pending; the dispatcher reloads the
		// callback on every iteration
	}
}

// Stats returns instantaneous counters.
func (s *ConsoleStream) Stats() Stats {
	return Stats{
		ReadQueueLen:      int32(s.readBuf.Length()),
		ReadQueueCap:      int32(s.readBuf.Capacity()),
		WriteQueueLen:     int32(s.writeBuf.Length()),
		WriteQueueCap:     int32(s.writeBuf.Capacity()),
		DroppedReadCount:  atomic.LoadUint64(&s.droppedRead),
		DroppedWriteCount: atomic.LoadUint64(&s.droppedWrite),
		ReadBytesTotal:    atomic.LoadUint64(&s.readBytes),
		WriteBytesTotal:   atomic.LoadUint64(&s.writeBytes),
	}
}

// Close stops the background loops and restores the descriptor to blocking
// mode. Idempotent. The descriptor itself stays open: it belongs to the
// process, not to the stream.
func (s *ConsoleStream) Close() error {
	if !atomic.CompareAndSwapUint32(&s.closed, 0, 1) {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	groutine.Go(context.Background(), "console-wait-close", func(context.Context) {
		s.wg.Wait()
		close(done)
	})

	// Loops notice cancellation within one poll timeout; leave generous
	// slack for slow systems.
	timeout := time.Duration(s.pollTimeoutMs)*time.Millisecond*3 + time.Second
	if timeout < 5*time.Second {
		timeout = 5 * time.Second
	}

	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Errorf("Close timed out after %v waiting for stream goroutines on fd %d; "+
			"they self-terminate within one poll timeout", timeout, s.fd)
	}

	if err := syscall.SetNonblock(s.fd, false); err != nil {
		s.logger.Warnf("restore blocking mode for fd %d: %v", s.fd, err)
	}
	return nil
}
