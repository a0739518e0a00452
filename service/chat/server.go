package chat

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"chatgate/logger"
	"chatgate/middleware/security"
	"chatgate/service/storage"
	"chatgate/tools/safe"
	sectoken "chatgate/tools/security"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServerConf bundles what the gateway surface needs at request time.
type ServerConf struct {
	JWT          sectoken.Options
	StoreTimeout time.Duration
	HistoryLimit int
}

func (c *ServerConf) norm() {
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
}

// Server owns the HTTP surface: the WebSocket upgrade endpoint, a
// health probe and the room history REST route.
type Server struct {
	conf  ServerConf
	mgr   *ConnManager
	disp  *Dispatcher
	store storage.Store
}

func NewServer(conf ServerConf, mgr *ConnManager, disp *Dispatcher, store storage.Store) *Server {
	conf.norm()
	return &Server{conf: conf, mgr: mgr, disp: disp, store: store}
}

func (s *Server) Manager() *ConnManager { return s.mgr }

// Router builds the gin engine with all gateway routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/ws", s.HandleWS)

	api := r.Group("/api", security.Middleware(s.conf.JWT))
	api.GET("/rooms/:slug/messages", s.handleHistory)

	return r
}

// HandleWS is the connection-accept path: upgrade, verify the bearer
// token from the query string, and only then create a session. An
// unauthenticated peer is closed with 1008 and never appears in the
// registry.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}

	userID, verr := sectoken.Verify(s.conf.JWT, c.Query("token"))
	if verr != nil || userID == "" {
		logger.Infof("[ws] unauthorized remote=%s err=%v", c.Request.RemoteAddr, verr)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}

	client := s.mgr.Register(ws, userID)
	defer s.mgr.Unregister(client.ConnID)

	ws.SetPongHandler(func(string) error {
		s.mgr.MarkAlive(client.ConnID)
		return nil
	})

	safe.Go("ws-writer", client.writePump)
	client.Enqueue(BuildWelcome())
	logger.Infof("[ws] connected conn=%s user=%s", client.ConnID, userID)

	s.readLoop(client, ws)
	logger.Infof("[ws] disconnected conn=%s user=%s", client.ConnID, userID)
}

// readLoop handles this connection's inbound frames sequentially, in
// arrival order. It returns when the peer goes away or the liveness
// sweep closes the socket.
func (s *Server) readLoop(client *Client, ws *websocket.Conn) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s", client.ConnID)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s err=%v", client.ConnID, err)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", client.ConnID, err)
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := DecodeInbound(data)
		if perr != nil {
			client.Enqueue(BuildError(perr.Error()))
			continue
		}
		if derr := s.disp.Dispatch(client, frame); derr != nil {
			client.Enqueue(BuildError(derr.Error()))
		}
	}
}

func (s *Server) handleHistory(c *gin.Context) {
	slug := c.Param("slug")
	limit := s.conf.HistoryLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= s.conf.HistoryLimit {
			limit = n
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.conf.StoreTimeout)
	defer cancel()

	msgs, err := s.store.ListRecentMessages(ctx, slug, limit)
	if err != nil {
		logger.Errorf("[api] history failed room=%s err=%v", slug, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history unavailable"})
		return
	}
	if msgs == nil {
		msgs = []storage.StoredMessage{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}
