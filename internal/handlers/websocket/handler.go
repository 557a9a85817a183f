package websocket

import (
	"context"
	"encoding/base64"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xpanvictor/vocall/internal/config"
	"github.com/xpanvictor/vocall/internal/domains/call"
	"github.com/xpanvictor/vocall/internal/domains/session"
	"github.com/xpanvictor/vocall/pkg/Logger"
	"github.com/xpanvictor/vocall/pkg/assistant"
	"github.com/xpanvictor/vocall/pkg/io/tts"
	"github.com/xpanvictor/vocall/pkg/telephony"
)

// StreamHandler owns the media-stream WebSocket endpoint. Each upgraded
// connection gets its own session; nothing is shared between calls except
// the store and the synthesis/recognition services behind it.
type StreamHandler struct {
	cfg        *config.Settings
	logger     *Logger.Logger
	store      call.Store
	recognizer session.Recognizer
	tts        tts.Provider
	llm        assistant.Assistant
	upgrader   websocket.Upgrader
}

func NewStreamHandler(
	cfg *config.Settings,
	logger *Logger.Logger,
	store call.Store,
	recognizer session.Recognizer,
	ttsProvider tts.Provider,
	llm assistant.Assistant,
) *StreamHandler {
	return &StreamHandler{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		recognizer: recognizer,
		tts:        ttsProvider,
		llm:        llm,
		upgrader: websocket.Upgrader{
			// The carrier connects without an Origin header.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes registers the stream endpoint.
func (h *StreamHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/calls/stream", h.HandleStream)
}

// HandleStream upgrades the connection and runs the event loop for one call.
// The loop owns the inbound half of the socket; the session's playback
// goroutine writes the outbound half through the sender.
func (h *StreamHandler) HandleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("stream upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sender := &wsSender{conn: conn}
	var closeOnce sync.Once
	sess := session.New(
		h.cfg, h.logger, h.store, h.recognizer, h.tts, h.llm, sender,
		func() {
			closeOnce.Do(func() {
				sender.writeClose()
				conn.Close()
			})
		},
	)
	defer sess.Teardown(context.Background())

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Errorf("stream read error: %v", err)
			}
			return
		}

		ev, err := telephony.ParseEvent(raw)
		if err != nil {
			h.logger.Warnf("dropping malformed event: %v", err)
			continue
		}

		switch ev.Event {
		case telephony.EventStart:
			if ev.Start == nil {
				h.logger.Warnf("start event without payload")
				continue
			}
			streamSid := ev.StreamSid
			if streamSid == "" {
				streamSid = ev.Start.StreamSid
			}
			sender.setStream(streamSid)
			if err := sess.HandleStart(c.Request.Context(), ev.Start, streamSid); err != nil {
				h.logger.Errorf("start failed for call %s: %v", ev.Start.CallSid, err)
				return
			}
		case telephony.EventMedia:
			if ev.Media != nil {
				sess.HandleMedia(ev.Media)
			}
		case telephony.EventMark:
			if ev.Mark != nil {
				sess.HandleMark(ev.Mark.Name)
			}
		case telephony.EventStop:
			sess.HandleStop()
			return
		default:
			h.logger.Debugf("ignoring event type %q", ev.Event)
		}
	}
}

// wsSender serializes all outbound writes on the stream socket. gorilla
// allows only one concurrent writer, and media frames, marks and clears
// arrive from different goroutines.
type wsSender struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	streamSid string
}

func (w *wsSender) setStream(sid string) {
	w.mu.Lock()
	w.streamSid = sid
	w.mu.Unlock()
}

func (w *wsSender) SendMedia(frame []byte) error {
	payload := base64.StdEncoding.EncodeToString(frame)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(telephony.MediaEvent(w.streamSid, payload))
}

func (w *wsSender) SendMark(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(telephony.MarkEvent(w.streamSid, name))
}

func (w *wsSender) SendClear() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(telephony.ClearEvent(w.streamSid))
}

func (w *wsSender) writeClose() {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
}

var _ telephony.Sender = (*wsSender)(nil)
