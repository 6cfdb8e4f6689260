// handlers/transaction_routes.go
package handlers

import (
	"strconv"

	"payment-reward-system/middleware"
	"payment-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func errJSON(c *fiber.Ctx, err error) error {
	return c.Status(services.StatusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
		"code":  services.CodeFor(err),
	})
}

func SetupTransactionRoutes(app *fiber.App, transactions *services.TransactionService, ledger *services.LedgerService, config *services.ConfigService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/s/deposits", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			Amount float64 `json:"amount"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		cfg, err := config.Current()
		if err != nil {
			return errJSON(c, err)
		}
		txn, payload, err := transactions.CreateDeposit(userID, req.Amount, cfg)
		if err != nil {
			return errJSON(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"transaction_id":  txn.ID,
			"payment_payload": payload,
		})
	})

	secured.Post("/s/withdrawals", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			Amount      float64 `json:"amount"`
			PayoutKeyID string  `json:"payout_key_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		txn, err := transactions.CreateWithdraw(userID, req.Amount, req.PayoutKeyID)
		if err != nil {
			return errJSON(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"transaction_id": txn.ID,
		})
	})

	secured.Post("/s/payout-keys", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			KeyType  string `json:"key_type"`
			KeyValue string `json:"key_value"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		key, err := transactions.RegisterPayoutKey(userID, req.KeyType, req.KeyValue)
		if err != nil {
			return errJSON(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(key)
	})

	secured.Get("/s/balances", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		balance, err := ledger.GetBalances(userID)
		if err != nil {
			return errJSON(c, err)
		}
		return c.JSON(fiber.Map{
			"withdrawable": balance.Withdrawable,
			"bonus":        balance.Bonus,
			"affiliate":    balance.Affiliate,
		})
	})

	secured.Get("/s/transactions", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		txns, err := transactions.ListTransactions(userID, limit)
		if err != nil {
			return errJSON(c, err)
		}
		return c.JSON(txns)
	})
}
