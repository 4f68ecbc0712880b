// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package line

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/Thermoquad/hwpbus/pkg/hwp"
)

// Connection is a byte stream to a capture probe
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed probe connection
var ErrConnectionClosed = errors.New("probe connection closed")

// WebSocketConnection exposes the binary messages of a websocket as a byte stream
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
	pongs     chan string
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}

		// Pulse records only travel in binary messages
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// Ping sends a ping control message and waits for its pong. Pongs are only
// seen while another goroutine is reading from the connection.
func (w *WebSocketConnection) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	id := strconv.FormatInt(start.UnixNano(), 16)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = start.Add(10 * time.Second)
	}
	if err := w.conn.WriteControl(websocket.PingMessage, []byte(id), deadline); err != nil {
		return 0, fmt.Errorf("failed to send ping: %w", err)
	}

	for {
		select {
		case got := <-w.pongs:
			if got == id {
				return time.Since(start), nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func newWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	w := &WebSocketConnection{conn: conn, pongs: make(chan string, 1)}
	conn.SetPongHandler(func(appData string) error {
		select {
		case w.pongs <- appData:
		default:
		}
		return nil
	})
	return w
}

// OpenSerialConnection opens a probe on a serial port
func OpenSerialConnection(portName string, baudRate int) (*SerialConnection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a probe behind a websocket with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (*WebSocketConnection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connection failed: %w", err)
	}

	return newWebSocketConnection(conn), nil
}

// ProbeLine is a line observed and driven through a capture probe.
// The probe streams completed pulses; ProbeLine replays them as edges.
type ProbeLine struct {
	conn Connection
	log  log.FieldLogger

	mu       sync.Mutex
	level    bool
	watching bool
	err      error

	writeMu sync.Mutex
	done    chan struct{}
}

// NewProbeLine creates a line over conn. A nil logger uses the standard logger.
func NewProbeLine(conn Connection, logger log.FieldLogger) *ProbeLine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ProbeLine{
		conn:  conn,
		log:   logger,
		level: true,
		done:  make(chan struct{}),
	}
}

// Watch starts reading pulse records and calls handler for each transition
func (p *ProbeLine) Watch(handler func(level bool, at time.Time)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watching {
		return errors.New("probe line already watched")
	}
	p.watching = true
	go p.readLoop(handler)
	return nil
}

func (p *ProbeLine) readLoop(handler func(bool, time.Time)) {
	defer close(p.done)

	reader := hwp.NewPulseReader(p.conn)
	var at time.Time
	for {
		pulse, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
				err = ErrConnectionClosed
				p.log.Info("probe connection closed")
			} else {
				p.log.WithError(err).Error("probe read failed")
			}
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			return
		}

		// The first record anchors the timeline at its leading edge
		if at.IsZero() {
			at = time.Now().Add(-pulse.Duration)
			handler(pulse.Level, at)
		}
		at = at.Add(pulse.Duration)

		p.mu.Lock()
		p.level = !pulse.Level
		p.mu.Unlock()
		handler(!pulse.Level, at)
	}
}

// Level returns the level after the last reported pulse
func (p *ProbeLine) Level() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level, p.err
}

// Drive sends a drive request and waits while the probe replays it
func (p *ProbeLine) Drive(ctx context.Context, pulses []hwp.Pulse) error {
	data, err := hwp.MarshalDriveRequest(pulses)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	_, err = p.conn.Write(data)
	p.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send drive request: %w", err)
	}

	timer := time.NewTimer(hwp.TotalDuration(pulses))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the probe stream ends
func (p *ProbeLine) Done() <-chan struct{} {
	return p.done
}

// Err returns why the probe stream ended
func (p *ProbeLine) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *ProbeLine) Close() error {
	return p.conn.Close()
}
