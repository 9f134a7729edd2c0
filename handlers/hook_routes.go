// handlers/hook_routes.go
package handlers

import (
	"affiliate-system/middleware"
	"affiliate-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SetupHookRoutes exposes the lifecycle hooks to the account and billing
// services. Results are always 200 unless the store itself failed.
func SetupHookRoutes(app *fiber.App, hooks *services.HookService, serviceToken string) {
	internal := app.Group("/internal/hooks", middleware.ServiceTokenMiddleware(serviceToken))

	internal.Post("/user-registered", func(c *fiber.Ctx) error {
		var req struct {
			UserID        string `json:"user_id"`
			Email         string `json:"email"`
			AffiliateCode string `json:"affiliate_code"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
		}

		attr, err := hooks.OnUserRegistered(c.UserContext(), req.UserID, req.Email, req.AffiliateCode)
		if err != nil {
			zap.L().Error("user-registered hook failed", zap.String("user_id", req.UserID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process registration"})
		}
		if !attr.Matched() {
			return c.JSON(fiber.Map{"matched": false, "sharer_id": nil, "source": nil})
		}
		return c.JSON(fiber.Map{"matched": true, "sharer_id": attr.SharerID, "source": attr.Source})
	})

	internal.Post("/email-verified", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
		}

		res, err := hooks.OnEmailVerified(c.UserContext(), req.UserID)
		if err != nil {
			zap.L().Error("email-verified hook failed", zap.String("user_id", req.UserID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process verification"})
		}
		return c.JSON(res)
	})

	internal.Post("/payment-success", func(c *fiber.Ctx) error {
		var req struct {
			UserID   string `json:"user_id"`
			PlanType string `json:"plan_type"`
		}
		if err := c.BodyParser(&req); err != nil || req.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
		}

		res, err := hooks.OnPaymentSuccess(c.UserContext(), req.UserID, req.PlanType)
		if err != nil {
			zap.L().Error("payment-success hook failed", zap.String("user_id", req.UserID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process payment"})
		}
		return c.JSON(res)
	})
}
