package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/optionagent/agent/internal/run"
)

const streamHeartbeat = 30 * time.Second

// handleStream upgrades to a websocket and forwards JobProgress updates
// for one run until the client disconnects or the run reaches a terminal
// step. Mirrors the subscribe/select/heartbeat loop used for the
// dashboard's SSE stream, adapted to push JSON frames over a websocket
// connection instead of writing "data: ..." lines.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.log.Warn().Err(err).Str("run_id", runID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := r.Context()
	updates, unsubscribe := s.hub.subscribe(runID)
	defer unsubscribe()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case p, ok := <-updates:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, conn, p); err != nil {
				s.log.Debug().Err(err).Str("run_id", runID).Msg("client disconnected from progress stream")
				return
			}
			if p.CurrentStep == run.StepComplete {
				return
			}

		case <-heartbeat.C:
			if err := wsjson.Write(ctx, conn, map[string]string{"type": "heartbeat"}); err != nil {
				return
			}
		}
	}
}
