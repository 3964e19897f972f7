package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/hackgods/patient-intake/internal/realtime"
)

// Subscription is a live change feed for one table.
type Subscription struct {
	conn   *websocket.Conn
	once   sync.Once
	closed atomic.Bool
	done   chan struct{}
	err    error
}

// Subscribe opens the change feed for table and calls fn for every change,
// in arrival order, from a single goroutine. Changes read after Close are
// dropped.
func (c *Client) Subscribe(ctx context.Context, table string, fn func(realtime.ChangeEvent)) (*Subscription, error) {
	wsURL, err := c.realtimeURL(table)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("subscribe %s: %w", table, decodeAPIError(resp))
		}
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	sub := &Subscription{conn: conn, done: make(chan struct{})}
	go sub.read(c, fn)
	return sub, nil
}

func (c *Client) realtimeURL(table string) (string, error) {
	u, err := url.Parse(c.baseURL + "/realtime")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"topic": {table}}.Encode()
	return u.String(), nil
}

func (s *Subscription) read(c *Client, fn func(realtime.ChangeEvent)) {
	defer close(s.done)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				s.err = err
				c.log.Warn().Err(err).Msg("change feed closed")
			}
			return
		}

		ev, err := realtime.DecodeChange(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("skipping change")
			continue
		}
		if s.closed.Load() {
			return
		}
		fn(ev)
	}
}

// Close tears the subscription down. Calling it more than once is safe.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Done is closed when the feed stops delivering, either after Close or
// because the connection dropped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the feed stopped when it was not closed by the caller.
// It is only meaningful after Done is closed.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}
