package room

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// ServeWS upgrades the request and attaches the connection to the room.
func (r *Room) ServeWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("[Room] WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(req.Context()))
	defer cancel()

	session, err := r.Join(ctx)
	if err != nil {
		log.Printf("[Room] Join failed: %v", err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "room unavailable"))
		return
	}
	log.Printf("[Room] Session %s connected from %s", session.ID, req.RemoteAddr)

	go r.writePump(conn, session)
	r.readPump(ctx, conn, session)

	r.Leave(ctx, session)
	log.Printf("[Room] Session %s disconnected", session.ID)
}

func (r *Room) readPump(ctx context.Context, conn *websocket.Conn, session *Session) {
	limit := r.cfg.ReadLimit
	if limit <= 0 {
		limit = 4096
	}
	conn.SetReadLimit(limit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(r.cfg.InboundRate), r.cfg.InboundBurst)
	if r.cfg.InboundRate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Room] Session %s read error: %v", session.ID, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if !limiter.Allow() {
			continue
		}
		if err := r.Receive(ctx, session, data); err != nil {
			return
		}
	}
}

// writePump drains the session queue until the room closes it.
func (r *Room) writePump(conn *websocket.Conn, session *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-session.Send():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
