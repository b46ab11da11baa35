package handlers

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/middleware"
	"github.com/temcen/homeser/internal/services"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

type Subscriber interface {
	Subscribe(userID int64, channel string) *services.Subscription
}

// NotificationHandler streams order and payment updates to signed-in users.
type NotificationHandler struct {
	logger   *logrus.Logger
	hub      Subscriber
	upgrader websocket.Upgrader
}

// NewNotificationHandler accepts upgrades from the given origins only; an
// empty list or "*" allows any origin.
func NewNotificationHandler(logger *logrus.Logger, hub Subscriber, allowedOrigins []string) *NotificationHandler {
	return &NotificationHandler{
		logger: logger,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
					return true
				}
				return slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *NotificationHandler) Orders(c *gin.Context) {
	h.serve(c, services.ChannelOrders)
}

func (h *NotificationHandler) Payments(c *gin.Context) {
	h.serve(c, services.ChannelPayments)
}

func (h *NotificationHandler) serve(c *gin.Context, channel string) {
	identity := middleware.GetIdentity(c)
	if identity.IsAnonymous() {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "AUTHENTICATION_REQUIRED", "message": "Authentication required"},
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(identity.UserID, channel)
	defer sub.Close()

	log := h.logger.WithFields(logrus.Fields{"user_id": identity.UserID, "channel": channel})
	log.Debug("WebSocket connected")

	closed := make(chan struct{})
	go h.readLoop(conn, closed)

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				// Dropped by the hub for falling behind.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.WithError(err).Debug("WebSocket write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-closed:
			log.Debug("WebSocket disconnected")
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// readLoop discards client frames and signals when the peer goes away.
func (h *NotificationHandler) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
