package hub

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-chat/internal/auth"
	"github.com/spec-kit/ticket-chat/internal/chat"
)

// UpgradeRequired rejects plain HTTP requests on the websocket route.
func UpgradeRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Handler upgrades the connection and runs it against the hub until the
// client disconnects. The auth middleware must have stored a principal in
// the request locals before the upgrade.
func Handler(h *Hub, logger *zap.Logger) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		principal, ok := conn.Locals(auth.PrincipalKey).(*auth.Principal)
		if !ok || principal.User == nil {
			_ = conn.Close()
			return
		}

		session := h.NewSession(uuid.NewString(), principal.User.ID, principal.User.Name, principal.User.Role)
		logger.Info("live channel connected",
			zap.String("session_id", session.ID),
			zap.String("user_id", session.UserID))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for env := range session.Outbox() {
				if err := conn.WriteJSON(env); err != nil {
					return
				}
			}
		}()

		for {
			var env chat.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				break
			}
			h.HandleControl(session, env)
		}

		h.Drop(session)
		<-done
		_ = conn.Close()
		logger.Info("live channel disconnected", zap.String("session_id", session.ID))
	})
}
