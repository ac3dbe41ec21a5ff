// Package client implements the terminal side of the chat: handshake, then a receiver
// goroutine printing broadcasts while the sender loop forwards local input lines.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	inputPrompt           = "You: "
	defaultReadBufferSize = 1024
	bannerRule            = "=================================================="
)

var errInvalidUTF8 = errors.New("invalid utf-8 data from server")

var quitKeywords = map[string]struct{}{
	"quit": {},
	"exit": {},
	"q":    {},
}

// Options configures a Client.
type Options struct {
	In             io.Reader
	Out            io.Writer
	ReadBufferSize int
	Logger         *zerolog.Logger
}

// Client is one chat participant connected to a server.
type Client struct {
	conn    net.Conn
	out     io.Writer
	outMu   sync.Mutex
	bufSize int
	log     *zerolog.Logger

	in        io.Reader
	lines     chan string
	linesOnce sync.Once

	running atomic.Bool
}

// Dial connects to addr and wraps the connection.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, opts), nil
}

// New wraps an established connection.
func New(conn net.Conn, opts Options) *Client {
	c := &Client{
		conn:    conn,
		out:     opts.Out,
		in:      opts.In,
		bufSize: opts.ReadBufferSize,
		log:     opts.Logger,
	}
	if c.out == nil {
		c.out = io.Discard
	}
	if c.in == nil {
		c.in = strings.NewReader("")
	}
	if c.bufSize <= 0 {
		c.bufSize = defaultReadBufferSize
	}
	if c.log == nil {
		nop := zerolog.Nop()
		c.log = &nop
	}
	return c
}

// Running reports whether both loops are still supposed to run.
func (c *Client) Running() bool {
	return c.running.Load()
}

// Handshake reads the server prompt, answers with a username taken from local input
// and reads the welcome line. Each server message is assumed to fit in one read.
func (c *Client) Handshake(ctx context.Context) (string, error) {
	buf := make([]byte, c.bufSize)

	prompt, err := c.readChunk(buf)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	c.printf("%s", prompt)

	line, err := c.readLine(ctx)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read username: %w", err)
	}
	name := strings.TrimSpace(line)
	// An empty write never reaches the server, so a blank name travels as a bare newline
	// and the server substitutes a guest name.
	payload := name
	if payload == "" {
		payload = "\n"
	}
	if _, err := io.WriteString(c.conn, payload); err != nil {
		return "", fmt.Errorf("send username: %w", err)
	}

	welcome, err := c.readChunk(buf)
	if err != nil {
		return "", fmt.Errorf("read welcome: %w", err)
	}
	c.printf("%s\n", welcome)

	c.printf("%s\nChat room joined! Type your messages below.\nType 'quit', 'exit', or 'q' to leave the chat.\n%s\n",
		bannerRule, bannerRule)
	return welcome, nil
}

// Run starts the receiver goroutine and runs the sender loop until either side stops.
// The connection is closed on return, which also releases a receiver parked in Read.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.running.Store(true)

	received := make(chan struct{})
	go func() {
		defer close(received)
		defer cancel()
		c.receive()
	}()

	err := c.send(ctx)

	c.running.Store(false)
	if closeErr := c.conn.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		c.log.Debug().Err(closeErr).Msg("close connection")
	}
	<-received
	return err
}

func (c *Client) receive() {
	buf := make([]byte, c.bufSize)
	for c.running.Load() {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.display(buf[:n])
		}
		if err != nil {
			if c.running.Swap(false) {
				c.reportReadError(err)
			}
			return
		}
	}
}

func (c *Client) display(raw []byte) {
	if !utf8.Valid(raw) {
		c.printf("\n[ERROR] Received invalid data from server.\n")
		return
	}
	msg := strings.TrimRight(string(raw), "\n")
	c.printf("\r%s\n%s", msg, inputPrompt)
}

func (c *Client) reportReadError(err error) {
	switch {
	case errors.Is(err, io.EOF):
		c.printf("\n[CLIENT] Connection to server lost.\n")
	case errors.Is(err, syscall.ECONNRESET):
		c.printf("\n[CLIENT] Server closed the connection.\n")
	case errors.Is(err, syscall.ECONNABORTED):
		c.printf("\n[CLIENT] Connection aborted.\n")
	default:
		c.printf("\n[ERROR] Socket error: %v\n", err)
	}
	c.log.Debug().Err(err).Msg("receiver stopped")
}

func (c *Client) send(ctx context.Context) error {
	for c.running.Load() {
		c.printf("%s", inputPrompt)

		line, err := c.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				if c.running.Load() {
					c.printf("\n[CLIENT] Disconnecting from chat...\n")
				}
				return nil
			}
			return err
		}

		if IsQuitCommand(line) {
			c.printf("[CLIENT] Disconnecting from chat...\n")
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		if _, err := io.WriteString(c.conn, line); err != nil {
			c.printf("[CLIENT] Failed to send message: %v\n", err)
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// IsQuitCommand reports whether line asks to leave the chat.
func IsQuitCommand(line string) bool {
	_, ok := quitKeywords[strings.ToLower(strings.TrimSpace(line))]
	return ok
}

// readLine returns the next local input line, io.EOF once input is exhausted,
// or the context error when ctx is done first.
func (c *Client) readLine(ctx context.Context) (string, error) {
	c.linesOnce.Do(func() {
		c.lines = make(chan string)
		go func() {
			defer close(c.lines)
			scanner := bufio.NewScanner(c.in)
			for scanner.Scan() {
				c.lines <- scanner.Text()
			}
		}()
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func (c *Client) readChunk(buf []byte) (string, error) {
	n, err := c.conn.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return "", err
	}
	if !utf8.Valid(buf[:n]) {
		return "", errInvalidUTF8
	}
	return string(buf[:n]), nil
}

func (c *Client) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
