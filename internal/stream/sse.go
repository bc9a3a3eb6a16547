package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// SSETransport dials Server-Sent Events streams on the POS backend. Each
// channel is one long-lived GET to /api/v1/streams/{channel}; every `data:`
// block is one frame.
type SSETransport struct {
	// BaseURL is the backend root, without a trailing slash.
	BaseURL string

	// TerminalID is sent as the X-Terminal-ID header so the backend can
	// scope the stream.
	TerminalID string

	// Client defaults to http.DefaultClient. It must not carry a timeout;
	// the stream is open-ended.
	Client *http.Client
}

// Dial opens the channel's event stream. The returned Conn's frames end when
// the server closes the response body or Close cancels the request.
func (t *SSETransport) Dial(ctx context.Context, channel string) (Conn, error) {
	ctx, cancel := context.WithCancel(ctx)

	url := fmt.Sprintf("%s/api/v1/streams/%s", t.BaseURL, channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if t.TerminalID != "" {
		req.Header.Set("X-Terminal-ID", t.TerminalID)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream: dial %s: %w", channel, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream: dial %s: unexpected status %d", channel, resp.StatusCode)
	}

	c := &sseConn{
		cancel: cancel,
		frames: make(chan []byte),
	}
	go c.read(resp.Body)
	return c, nil
}

type sseConn struct {
	cancel context.CancelFunc
	frames chan []byte

	mu     sync.Mutex
	err    error
	closed bool
}

func (c *sseConn) Frames() <-chan []byte { return c.frames }

func (c *sseConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.err
}

func (c *sseConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	return nil
}

// read parses the SSE wire format: `data:` lines accumulate, a blank line
// delivers the accumulated frame. event/id/retry fields and comments are
// ignored; the envelope carries its own type.
func (c *sseConn) read(body io.ReadCloser) {
	defer close(c.frames)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 {
				c.frames <- []byte(strings.Join(data, "\n"))
				data = nil
			}
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(value, " "))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := scanner.Err(); err != nil {
		c.err = err
		return
	}
	// An event stream never ends on its own; a clean EOF still means the
	// server dropped us.
	c.err = io.ErrUnexpectedEOF
}
