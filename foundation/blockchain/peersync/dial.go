package peersync

import (
	"fmt"
	"time"
)

// dial starts a loop that keeps an outbound connection to the host open.
func (s *Sync) dial(host string) {
	if host == "" || host == s.host {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isShutdown() {
		return
	}

	if _, exists := s.dialing[host]; exists {
		return
	}
	s.dialing[host] = struct{}{}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.maintain(host)
	}()
}

// maintain connects to the host and runs the connection until it closes,
// then redials with exponential backoff until shutdown.
func (s *Sync) maintain(host string) {
	s.evHandler("peersync: maintain: started: host[%s]", host)
	defer s.evHandler("peersync: maintain: completed: host[%s]", host)

	defer func() {
		s.mu.Lock()
		delete(s.dialing, host)
		s.mu.Unlock()
	}()

	backoff := minBackoff
	for {
		if s.isShutdown() {
			return
		}

		c, err := s.connect(host)
		switch {
		case err != nil:
			s.evHandler("peersync: maintain: host[%s]: WARNING: %s", host, err)

		default:
			backoff = minBackoff
			c.run()
		}

		s.evHandler("peersync: maintain: host[%s]: redial in %v", host, backoff)

		t := time.NewTimer(backoff)
		select {
		case <-t.C:
		case <-s.shut:
			t.Stop()
			return
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// connect opens the websocket to the host.
func (s *Sync) connect(host string) (*conn, error) {
	url := fmt.Sprintf("ws://%s%s", host, Path)

	ws, _, err := s.dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	c := newConn(s, ws, host)
	s.evHandler("peersync: connect: conn[%s]: host[%s]", c.id, host)

	return c, nil
}
