// handlers/webhook_routes.go
package handlers

import (
	"payment-reward-system/middleware"
	"payment-reward-system/models"
	"payment-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWebhookRoutes(app *fiber.App, settlement *services.SettlementService, ledger *services.LedgerService) {
	// Gateway-internal surface: no user context, the global gateway token
	// check already ran.
	app.Post("/webhooks/payment", func(c *fiber.Ctx) error {
		var event models.WebhookEvent
		if err := c.BodyParser(&event); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		accepted, err := settlement.HandleWebhook(event)
		if err != nil {
			return errJSON(c, err)
		}
		return c.JSON(fiber.Map{"accepted": accepted})
	})

	// Game-session balance sync: a signed delta applied after a gaming
	// session, same ledger mechanics as settlement but its own reason tag.
	app.Post("/internal/session-sync", func(c *fiber.Ctx) error {
		var req struct {
			UserID    string  `json:"user_id"`
			Delta     float64 `json:"delta"`
			SessionID string  `json:"session_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.UserID == "" || req.SessionID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and session_id are required"})
		}

		if err := ledger.ApplySessionDelta(req.UserID, req.Delta, req.SessionID); err != nil {
			return errJSON(c, err)
		}
		return c.JSON(fiber.Map{"applied": true})
	})

	// Admin override re-enters the exact settlement path; it can never apply
	// effects a webhook would not.
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())
	admin.Post("/transactions/:gateway_id/override", func(c *fiber.Ctx) error {
		gatewayTxID := c.Params("gateway_id")

		var req struct {
			Status string `json:"status"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		if err := settlement.Override(gatewayTxID, req.Status); err != nil {
			return errJSON(c, err)
		}
		return c.JSON(fiber.Map{"accepted": true})
	})
}
