package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ireadorg/readsync/internal/logger"
	syncpkg "github.com/ireadorg/readsync/internal/sync"
)

// Wire frames for a peer session. Each request from the initiator gets
// exactly one reply, so a session is a strict sequence of round trips on
// one connection.
const (
	frameHello    = "hello"
	frameManifest = "manifest"
	frameFetch    = "fetch"
	framePush     = "push"
	frameItems    = "items"
	frameAck      = "ack"
	frameError    = "error"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type fetchRequest struct {
	ItemIDs []string `json:"item_ids"`
}

type applyResult struct {
	Applied int `json:"applied"`
}

const wireDeadline = 30 * time.Second

// WSTransfer drives the initiating side of a session over one websocket
// connection.
type WSTransfer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WSDialer opens websocket connections to discovered peers.
type WSDialer struct{}

func NewDialer() *WSDialer {
	return &WSDialer{}
}

func (d *WSDialer) Dial(ctx context.Context, device syncpkg.DeviceInfo) (syncpkg.Transfer, error) {
	url := fmt.Sprintf("ws://%s:%d/sync", device.IPAddress, device.Port)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	return &WSTransfer{conn: conn}, nil
}

func (t *WSTransfer) Handshake(ctx context.Context, hello syncpkg.Hello) (syncpkg.Hello, error) {
	var peer syncpkg.Hello
	err := t.roundTrip(ctx, frameHello, hello, frameHello, &peer)
	return peer, err
}

func (t *WSTransfer) ExchangeManifests(ctx context.Context, local syncpkg.SyncManifest) (syncpkg.SyncManifest, error) {
	var remote syncpkg.SyncManifest
	err := t.roundTrip(ctx, frameManifest, local, frameManifest, &remote)
	return remote, err
}

func (t *WSTransfer) FetchItems(ctx context.Context, itemIDs []string) ([]syncpkg.SyncItem, error) {
	var items []syncpkg.SyncItem
	err := t.roundTrip(ctx, frameFetch, fetchRequest{ItemIDs: itemIDs}, frameItems, &items)
	return items, err
}

func (t *WSTransfer) PushItems(ctx context.Context, items []syncpkg.SyncItem) error {
	var result applyResult
	return t.roundTrip(ctx, framePush, items, frameAck, &result)
}

func (t *WSTransfer) Close() error {
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}

func (t *WSTransfer) roundTrip(ctx context.Context, reqType string, in interface{}, wantType string, out interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", reqType, err)
	}

	deadline := time.Now().Add(wireDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteJSON(frame{Type: reqType, Payload: payload}); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", reqType, err)
	}

	t.conn.SetReadDeadline(deadline)
	var reply frame
	if err := t.conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("failed to read reply to %s: %w", reqType, err)
	}

	if reply.Type == frameError {
		return fmt.Errorf("peer rejected %s: %s", reqType, reply.Error)
	}
	if reply.Type != wantType {
		return fmt.Errorf("unexpected reply %q to %s", reply.Type, reqType)
	}
	if out != nil && len(reply.Payload) > 0 {
		if err := json.Unmarshal(reply.Payload, out); err != nil {
			return fmt.Errorf("failed to decode %s reply: %w", reply.Type, err)
		}
	}
	return nil
}

// SessionHandler answers frames for the responding side of a session.
type SessionHandler interface {
	AnswerHello(hello syncpkg.Hello) (syncpkg.Hello, error)
	AnswerManifest(ctx context.Context, remote syncpkg.SyncManifest) (syncpkg.SyncManifest, error)
	AnswerFetch(ctx context.Context, itemIDs []string) ([]syncpkg.SyncItem, error)
	AnswerApply(ctx context.Context, items []syncpkg.SyncItem) (int, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Peers on the local network connect directly, not via browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server accepts inbound peer connections and relays their frames to the
// handler.
type Server struct {
	handler SessionHandler
	server  *http.Server
}

func NewServer(port int, handler SessionHandler) *Server {
	s := &Server{handler: handler}

	mux := http.NewServeMux()
	mux.HandleFunc("/sync", s.handleSync)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

func (s *Server) Start() {
	go func() {
		logger.Log.Info("Peer transfer server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Peer transfer server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("Failed to upgrade peer connection", zap.Error(err))
		return
	}
	defer conn.Close()

	logger.Log.Info("Peer connected", zap.String("remote", r.RemoteAddr))

	ctx := r.Context()
	for {
		conn.SetReadDeadline(time.Now().Add(2 * time.Minute))
		var req frame
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log.Warn("Peer connection read failed", zap.Error(err))
			}
			return
		}

		reply := s.dispatch(ctx, req)
		conn.SetWriteDeadline(time.Now().Add(wireDeadline))
		if err := conn.WriteJSON(reply); err != nil {
			logger.Log.Warn("Peer connection write failed", zap.Error(err))
			return
		}
		// A rejected hello ends the session before any data moves.
		if req.Type == frameHello && reply.Type == frameError {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req frame) frame {
	switch req.Type {
	case frameHello:
		var hello syncpkg.Hello
		if err := json.Unmarshal(req.Payload, &hello); err != nil {
			return errorFrame(err)
		}
		ours, err := s.handler.AnswerHello(hello)
		if err != nil {
			return errorFrame(err)
		}
		return replyFrame(frameHello, ours)

	case frameManifest:
		var remote syncpkg.SyncManifest
		if err := json.Unmarshal(req.Payload, &remote); err != nil {
			return errorFrame(err)
		}
		local, err := s.handler.AnswerManifest(ctx, remote)
		if err != nil {
			return errorFrame(err)
		}
		return replyFrame(frameManifest, local)

	case frameFetch:
		var fetch fetchRequest
		if err := json.Unmarshal(req.Payload, &fetch); err != nil {
			return errorFrame(err)
		}
		items, err := s.handler.AnswerFetch(ctx, fetch.ItemIDs)
		if err != nil {
			return errorFrame(err)
		}
		return replyFrame(frameItems, items)

	case framePush:
		var items []syncpkg.SyncItem
		if err := json.Unmarshal(req.Payload, &items); err != nil {
			return errorFrame(err)
		}
		applied, err := s.handler.AnswerApply(ctx, items)
		if err != nil {
			return errorFrame(err)
		}
		return replyFrame(frameAck, applyResult{Applied: applied})

	default:
		return frame{Type: frameError, Error: fmt.Sprintf("unknown frame type %q", req.Type)}
	}
}

func errorFrame(err error) frame {
	return frame{Type: frameError, Error: err.Error()}
}

func replyFrame(frameType string, payload interface{}) frame {
	data, err := json.Marshal(payload)
	if err != nil {
		return errorFrame(err)
	}
	return frame{Type: frameType, Payload: data}
}
