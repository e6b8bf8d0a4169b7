package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"

	xlog "github.com/SmitUplenchwar2687/wsreplay/internal/log"
	"github.com/SmitUplenchwar2687/wsreplay/internal/metrics"
	"github.com/SmitUplenchwar2687/wsreplay/internal/session"
)

const closeWriteTimeout = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Replay feeds are consumed by local tools.
	},
}

// wsSender writes one record per binary message.
type wsSender struct {
	conn *websocket.Conn
}

func (w wsSender) Send(_ context.Context, rec []byte) error {
	return w.conn.WriteMessage(websocket.BinaryMessage, rec)
}

// handleWebSocket upgrades the connection and drives its session until the
// client disconnects, the session fails, or the server shuts down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.admit() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Done()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str(xlog.FieldRemoteAddr, r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	log := s.log.With().Str(xlog.FieldRemoteAddr, r.RemoteAddr).Logger()

	sess, err := session.New(s.cfg, wsSender{conn: conn},
		session.WithLogger(log),
		session.WithRecorder(s.trace),
		session.WithClock(s.clock),
	)
	if err != nil {
		log.Error().Err(err).Msg("cannot start session")
		metrics.SessionFailed(metrics.ReasonOpen)
		closeConn(conn, websocket.CloseInternalServerErr, "capture unavailable")
		conn.Close()
		return
	}
	metrics.SessionOpened()
	defer metrics.SessionClosed()
	log = log.With().Str(xlog.FieldSessionID, sess.ID()).Logger()
	log.Info().Msg("client connected")

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		readPump(conn)
		cancel()
	}()

	runErr := s.run(ctx, sess)
	switch {
	case runErr != nil:
		reason := metrics.ReasonSend
		var serr *session.Error
		if errors.As(runErr, &serr) {
			reason = serr.Op
		}
		metrics.SessionFailed(reason)
		log.Error().Err(runErr).Stringer(xlog.FieldState, sess.State()).Msg("session terminated")
		closeConn(conn, websocket.CloseInternalServerErr, "")
	case s.baseCtx.Err() != nil:
		closeConn(conn, websocket.CloseGoingAway, "server shutting down")
	}

	var result *multierror.Error
	if err := sess.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := conn.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	<-pumpDone
	if err := result.ErrorOrNil(); err != nil {
		log.Debug().Err(err).Msg("teardown")
	}
	log.Info().Uint64("records", sess.Sent()).Msg("client disconnected")
}

// run is the timer loop: burst, then one Fire per interval until the
// session stops re-arming, then idle until ctx ends.
func (s *Server) run(ctx context.Context, sess *session.Session) error {
	if err := sess.Open(ctx); err != nil {
		return err
	}
	for rearm := true; rearm; {
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(s.cfg.Interval):
		}
		var err error
		if rearm, err = sess.Fire(ctx); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

// readPump discards client messages and returns when the connection closes.
func readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func closeConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
}
