// handlers/affiliate_routes.go
package handlers

import (
	"strconv"
	"time"

	"payment-reward-system/middleware"
	"payment-reward-system/models"
	"payment-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAffiliateRoutes(app *fiber.App, commission *services.CommissionService, referrals *services.ReferralService, chests *services.ChestService, ranking *services.RankingService, config *services.ConfigService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/s/affiliate/stats", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		from, to := parsePeriod(c.Query("period", "month"))
		stats, err := commission.AffiliateStats(userID, from, to)
		if err != nil {
			return errJSON(c, err)
		}
		return c.JSON(stats)
	})

	secured.Get("/s/affiliate/chests", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		cfg, err := config.Current()
		if err != nil {
			return errJSON(c, err)
		}
		views, err := chests.ChestStatuses(userID, cfg)
		if err != nil {
			return errJSON(c, err)
		}
		return c.JSON(views)
	})

	secured.Post("/s/affiliate/chests/:level/claim", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		level, err := strconv.Atoi(c.Params("level"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid chest tier level"})
		}

		cfg, err := config.Current()
		if err != nil {
			return errJSON(c, err)
		}
		balance, err := chests.ClaimChest(userID, level, cfg)
		if err != nil {
			return errJSON(c, err)
		}
		return c.JSON(fiber.Map{"new_affiliate_balance": balance.Affiliate})
	})

	secured.Post("/s/affiliate/transfer", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			Amount float64 `json:"amount"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		balance, err := chests.TransferAffiliateBalance(userID, req.Amount)
		if err != nil {
			return errJSON(c, err)
		}
		return c.JSON(fiber.Map{
			"withdrawable": balance.Withdrawable,
			"affiliate":    balance.Affiliate,
		})
	})

	secured.Post("/s/affiliate/referral", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			ReferralCode string `json:"referral_code"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		link, err := referrals.EstablishReferral(req.ReferralCode, userID)
		if err != nil {
			return errJSON(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(link)
	})

	// Public leaderboard over the active window.
	app.Get("/affiliate/top", func(c *fiber.Ctx) error {
		window, err := config.ActiveWindow()
		if err != nil {
			return errJSON(c, err)
		}

		limit, _ := strconv.Atoi(c.Query("limit", "10"))
		entries, err := ranking.TopAffiliates(window, limit)
		if err != nil {
			return errJSON(c, err)
		}
		return c.JSON(fiber.Map{
			"start_date": window.StartDate,
			"end_date":   window.EndDate,
			"entries":    entries,
		})
	})

	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	admin.Get("/bonus-config", func(c *fiber.Ctx) error {
		cfg, err := config.Current()
		if err != nil {
			return errJSON(c, err)
		}
		return c.JSON(cfg)
	})

	admin.Put("/bonus-config", func(c *fiber.Ctx) error {
		var req struct {
			Settings     models.BonusSettings `json:"settings"`
			DepositTiers []models.BonusTier   `json:"deposit_tiers"`
			ChestTiers   []models.ChestTier   `json:"chest_tiers"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		if _, err := config.UpdateSettings(req.Settings); err != nil {
			return errJSON(c, err)
		}
		if req.DepositTiers != nil {
			if err := config.ReplaceDepositTiers(req.DepositTiers); err != nil {
				return errJSON(c, err)
			}
		}
		if req.ChestTiers != nil {
			if err := config.ReplaceChestTiers(req.ChestTiers); err != nil {
				return errJSON(c, err)
			}
		}

		cfg, err := config.Current()
		if err != nil {
			return errJSON(c, err)
		}
		return c.JSON(cfg)
	})

	admin.Put("/top-window", func(c *fiber.Ctx) error {
		var req models.TopAffiliateWindow
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}

		window, err := config.SetTopAffiliateWindow(req)
		if err != nil {
			return errJSON(c, err)
		}
		return c.JSON(window)
	})
}

// parsePeriod maps the period query onto a [from, to] range ending now.
func parsePeriod(period string) (time.Time, time.Time) {
	to := time.Now().UTC()
	switch period {
	case "day":
		return to.Add(-24 * time.Hour), to
	case "week":
		return to.Add(-7 * 24 * time.Hour), to
	case "all":
		return time.Unix(0, 0).UTC(), to
	default: // month
		return to.Add(-30 * 24 * time.Hour), to
	}
}
