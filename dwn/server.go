package dwn

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/dwn-agent-core/logger"
	"github.com/sage-x-project/dwn-agent-core/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes a Node over HTTP so remote agents can Send to it; it is
// the receiving half of AgentClient.Send.
type Server struct {
	node *Node
	log  *logger.Logger
}

func NewServer(node *Node) *Server {
	return &Server{node: node, log: logger.GetLogger().WithField("component", "dwn.server")}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var wr wireRequest
	if err := json.NewDecoder(r.Body).Decode(&wr); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	req := types.RequestEnvelope{
		Author:        wr.Author,
		Target:        wr.Target,
		MessageType:   wr.MessageType,
		MessageParams: wr.MessageParams,
		RawMessage:    wr.RawMessage,
	}

	resp, err := s.node.Process(r.Context(), req)
	if err != nil {
		s.log.Warnf("process failed: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(wireResponse{
			Reply: types.Reply{Status: types.ReplyStatus{Code: types.StatusServerError, Detail: err.Error()}},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wireResponse{Message: resp.Message, MessageCID: resp.MessageCID, Reply: resp.Reply})
}

// SubscribeHandler upgrades the request to a websocket and registers it
// with the target author's fan-out hub, the remote half of
// RecordsSubscribe. Mount separately from ServeHTTP (distinct route),
// since the wire protocols (POST+JSON vs. websocket upgrade) don't share
// a single handler.
func (s *Server) SubscribeHandler(w http.ResponseWriter, r *http.Request) {
	author := r.URL.Query().Get("author")
	if author == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("subscribe upgrade failed: %v", err)
		return
	}

	hub := s.node.Hub(author)
	hub.Register(conn)

	// Drain (and discard) client frames so the connection's read deadline
	// logic notices a closed socket; RecordsSubscribe is receive-only.
	go func() {
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
