package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodebridge/nodebridge/pkg/confirm"
	"github.com/nodebridge/nodebridge/pkg/dispatch"
	"github.com/nodebridge/nodebridge/pkg/logging"
	"github.com/nodebridge/nodebridge/pkg/protocol"
)

// Session is one client connection: a codec over the socket, a private
// confirmation ledger, and a strictly sequential command loop. Nothing in
// a session outlives its connection.
type Session struct {
	id     string
	conn   net.Conn
	codec  *protocol.Codec
	ledger *confirm.Ledger
	logger logging.Logger

	server    *Server
	closeOnce sync.Once
}

func (s *Server) newSession(conn net.Conn) *Session {
	id := uuid.NewString()
	return &Session{
		id:    id,
		conn:  conn,
		codec: protocol.NewCodec(conn, s.cfg.MaxEnvelopeSize),
		ledger: confirm.NewLedger(s.signer, confirm.LedgerConfig{
			MediumTTL:   s.cfg.TokenTTL.Std(),
			CriticalTTL: s.cfg.CriticalTokenTTL.Std(),
		}),
		logger: s.logger.With(
			logging.F("conn_id", id),
			logging.F("remote", conn.RemoteAddr().String()),
		),
		server: s,
	}
}

// run executes the session loop: read one command, dispatch it, write one
// result, repeat. Commands on a connection never interleave.
func (se *Session) run() {
	defer se.close()

	se.logger.Info("connection opened")
	info := &dispatch.SessionInfo{
		ConnID:      se.id,
		RemoteAddr:  se.conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		Ledger:      se.ledger,
	}

	consecutiveFraming := 0
	for {
		cmd, err := se.codec.ReadCommand()
		if err != nil {
			if errors.Is(err, io.EOF) {
				se.logger.Info("connection closed by peer")
				return
			}
			if protocol.IsFramingError(err) {
				consecutiveFraming++
				if se.server.metrics != nil {
					se.server.metrics.FramingErrors.Inc()
				}
				se.logger.Warn("framing error",
					logging.Err(err),
					logging.F("consecutive", consecutiveFraming))
				_ = se.codec.WriteResult(protocol.Fail(protocol.CodeFramingError, err.Error()))
				if consecutiveFraming >= se.server.cfg.FramingErrorLimit {
					se.logger.Warn("framing error limit reached, dropping connection")
					return
				}
				continue
			}
			// Closed socket or hard transport failure.
			se.logger.Info("connection read failed", logging.Err(err))
			return
		}
		consecutiveFraming = 0

		ctx := dispatch.WithSession(context.Background(), info)
		result := se.server.dispatcher.Dispatch(ctx, se.id, se.ledger, cmd)
		if err := se.codec.WriteResult(result); err != nil {
			se.logger.Warn("write failed", logging.Err(err))
			return
		}
	}
}

// close tears down the connection and its ledger. Safe to call from the
// session loop and from Server.Stop concurrently.
func (se *Session) close() {
	se.closeOnce.Do(func() {
		se.ledger.Close()
		se.conn.Close()
		se.logger.Info("session closed")
	})
}
