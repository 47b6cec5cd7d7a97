// Package diag exposes a running collector's event log and fatal-abort
// heap dumps to out-of-process tooling.
package diag

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"time"

	quic "github.com/quic-go/quic-go"
	http3 "github.com/quic-go/quic-go/http3"

	"github.com/orizon-lang/gcx/internal/heap"
)

// EventServer serves a collector's heap.EventLog over HTTP/3: GET /events
// returns the log's current contents as JSON.
type EventServer struct {
	pc    net.PacketConn
	srv   *http3.Server
	close func() error
	errC  chan error
	addr  string
}

// Options configures the QUIC transport underneath an EventServer.
type Options struct {
	MaxIdleTimeout  time.Duration
	KeepAlivePeriod time.Duration
}

// NewEventServer builds a server bound to addr that answers GET /events
// with log's current event list.
func NewEventServer(addr string, tlsCfg *tls.Config, log *heap.EventLog, opts Options) *EventServer {
	tlsCfg = withMinTLS13(tlsCfg)

	qc := &quic.Config{}
	if opts.MaxIdleTimeout > 0 {
		qc.MaxIdleTimeout = opts.MaxIdleTimeout
	}

	if opts.KeepAlivePeriod > 0 {
		qc.KeepAlivePeriod = opts.KeepAlivePeriod
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(log.Events())
	})

	s := &http3.Server{Addr: addr, TLSConfig: tlsCfg, Handler: mux, QUICConfig: qc}

	return &EventServer{srv: s, addr: addr, errC: make(chan error, 1)}
}

func withMinTLS13(tlsCfg *tls.Config) *tls.Config {
	if tlsCfg == nil {
		return &tls.Config{MinVersion: tls.VersionTLS13, NextProtos: []string{"h3"}}
	}

	if tlsCfg.MinVersion >= tls.VersionTLS13 && len(tlsCfg.NextProtos) > 0 {
		return tlsCfg
	}

	c := tlsCfg.Clone()
	c.MinVersion = tls.VersionTLS13

	if len(c.NextProtos) == 0 {
		c.NextProtos = []string{"h3"}
	}

	return c
}

// Start begins serving on an ephemeral UDP port if addr ends with ":0",
// returning the actual bound address.
func (s *EventServer) Start() (string, error) {
	var err error

	s.pc, err = net.ListenPacket("udp", s.addr)
	if err != nil {
		return "", err
	}

	realAddr := s.pc.LocalAddr().String()
	done := make(chan struct{})

	go func() {
		if err := s.srv.Serve(s.pc); err != nil {
			select {
			case s.errC <- err:
			default:
			}
		}

		close(done)
	}()

	s.close = func() error {
		_ = s.pc.Close()

		select {
		case <-done:
		case <-time.After(time.Second):
		}

		return nil
	}

	return realAddr, nil
}

// Stop stops the server.
func (s *EventServer) Stop() error {
	if s.close != nil {
		return s.close()
	}

	return nil
}

// Error returns a non-blocking channel that receives the first serve
// error, if any.
func (s *EventServer) Error() <-chan error {
	if s == nil || s.errC == nil {
		ch := make(chan error)
		close(ch)

		return ch
	}

	return s.errC
}
