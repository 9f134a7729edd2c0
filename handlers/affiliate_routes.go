// handlers/affiliate_routes.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"affiliate-system/middleware"
	"affiliate-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AffiliateServices groups what the affiliate routes depend on.
type AffiliateServices struct {
	Links       *services.LinkService
	Visits      *services.VisitService
	Roster      *services.RosterService
	Invitations *services.InvitationService
	Dashboard   *services.DashboardService
}

type rosterEntryResponse struct {
	Email     string     `json:"email"`
	SentAt    *time.Time `json:"sent_at"`
	CreatedAt time.Time  `json:"created_at"`
}

type addResult struct {
	Email   string `json:"email"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func SetupAffiliateRoutes(app *fiber.App, svc AffiliateServices) {
	// public: the landing page reports clicks before anyone is signed in
	app.Post("/track", func(c *fiber.Ctx) error {
		var req struct {
			Code string `json:"code"`
		}
		_ = c.BodyParser(&req)
		if req.Code == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Affiliate code required"})
		}

		matched, err := svc.Visits.Track(c.UserContext(), req.Code, c.IP(), c.Get(fiber.HeaderUserAgent))
		if err != nil {
			zap.L().Error("track visit failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to track visit"})
		}
		if !matched {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Invalid affiliate code", "valid": false})
		}
		return c.JSON(fiber.Map{"message": "Visit tracked", "valid": true})
	})

	// 🔐 everything below needs the gateway user context
	secured := middleware.UserContextMiddleware()

	app.Get("/link", secured, func(c *fiber.Ctx) error {
		link, err := svc.Links.GetOrCreateLink(c.UserContext(), middleware.UserID(c))
		if err != nil {
			zap.L().Error("get affiliate link failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to get affiliate link"})
		}
		return c.JSON(fiber.Map{"code": link.Code, "url": svc.Links.URL(link.Code)})
	})

	app.Get("/emails", secured, func(c *fiber.Ctx) error {
		entries, err := svc.Roster.List(c.UserContext(), middleware.UserID(c))
		if err != nil {
			zap.L().Error("list roster failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list emails"})
		}
		out := make([]rosterEntryResponse, len(entries))
		for i, e := range entries {
			out[i] = rosterEntryResponse{Email: e.Email, SentAt: e.SentAt, CreatedAt: e.CreatedAt}
		}
		return c.JSON(fiber.Map{"emails": out})
	})

	app.Post("/emails", secured, func(c *fiber.Ctx) error {
		var req struct {
			Emails json.RawMessage `json:"emails"`
			Email  string          `json:"email"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid request body"})
		}
		emails, err := parseEmailList(req.Emails)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "emails must be a string or a list of strings"})
		}
		if len(emails) == 0 && req.Email != "" {
			emails = []string{req.Email}
		}
		if len(emails) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "At least one email is required"})
		}

		userID := middleware.UserID(c)
		results := make([]addResult, 0, len(emails))
		allSuccess := true
		for _, email := range emails {
			res := addResult{Email: email, Success: true, Message: "Email added successfully"}
			if _, err := svc.Roster.Add(c.UserContext(), userID, email); err != nil {
				res.Success = false
				res.Message = rosterMessage(err)
				allSuccess = false
			}
			results = append(results, res)
		}

		status := fiber.StatusOK
		if !allSuccess {
			status = fiber.StatusMultiStatus
		}
		return c.Status(status).JSON(fiber.Map{"results": results, "all_success": allSuccess})
	})

	app.Delete("/emails/*", secured, func(c *fiber.Ctx) error {
		email, err := url.PathUnescape(c.Params("*"))
		if err != nil || email == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Email is required"})
		}
		removed, err := svc.Roster.Remove(c.UserContext(), middleware.UserID(c), email)
		if err != nil {
			zap.L().Error("remove roster entry failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to remove email"})
		}
		if !removed {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Email not found in your list"})
		}
		return c.JSON(fiber.Map{"message": "Email removed"})
	})

	app.Post("/send-emails", secured, func(c *fiber.Ctx) error {
		results, err := svc.Invitations.SendAllInvitations(c.UserContext(), middleware.UserID(c))
		if err != nil {
			if errors.Is(err, services.ErrEmptyRoster) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "No emails in your list"})
			}
			zap.L().Error("bulk send failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to send emails"})
		}
		return c.JSON(fiber.Map{
			"message": fmt.Sprintf("Sent %d of %d emails", services.CountSent(results), len(results)),
			"results": results,
		})
	})

	app.Post("/send-email", secured, func(c *fiber.Ctx) error {
		var req struct {
			Email string `json:"email"`
		}
		_ = c.BodyParser(&req)
		if req.Email == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Email is required"})
		}

		err := svc.Invitations.SendInvitation(c.UserContext(), middleware.UserID(c), req.Email)
		switch {
		case err == nil:
			return c.JSON(fiber.Map{"message": "Email sent successfully"})
		case errors.Is(err, services.ErrInvalidEmail):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Invalid email address"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": err.Error()})
		}
	})

	app.Get("/dashboard", secured, func(c *fiber.Ctx) error {
		dash, err := svc.Dashboard.Dashboard(c.UserContext(), middleware.UserID(c))
		if err != nil {
			zap.L().Error("dashboard failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load dashboard"})
		}
		return c.JSON(dash)
	})
}

// parseEmailList accepts a JSON string or array of strings.
func parseEmailList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if one == "" {
			return nil, nil
		}
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

func rosterMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrDuplicateEmail):
		return "Email already in your list"
	case errors.Is(err, services.ErrSelfEntry):
		return "You cannot add your own email"
	case errors.Is(err, services.ErrInvalidEmail):
		return "Invalid email address"
	default:
		zap.L().Error("add roster entry failed", zap.Error(err))
		return "Failed to add email"
	}
}
