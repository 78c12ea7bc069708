package ws

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Handler streams events of the exam named by the :exam_id route parameter
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		examID := c.Params("exam_id")
		if examID == "" {
			_ = c.Close()
			return
		}

		client := &Client{
			hub:    hub,
			conn:   c,
			examID: examID,
			send:   make(chan []byte, 256),
		}

		if !hub.join(client) {
			_ = c.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

// UpgradeMiddleware rejects plain HTTP requests with 426
func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
