package handlers

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	cfg "github.com/postbridge/postbridge/configs"
	"github.com/postbridge/postbridge/internal/queue"
	"github.com/postbridge/postbridge/internal/service"
	"github.com/postbridge/postbridge/internal/transfer"
)

type SocialHandler struct {
	connector service.ConnectorService
	uploads   service.UploadService
	publisher *queue.Publisher
	cfg       cfg.Config
}

func NewSocialHandler(connector service.ConnectorService, uploads service.UploadService, publisher *queue.Publisher, cfg cfg.Config) *SocialHandler {
	return &SocialHandler{
		connector: connector,
		uploads:   uploads,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Connect returns the platform's OAuth authorize URL for the workspace.
func (h *SocialHandler) Connect(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)

	authURL, err := h.connector.InitiateConnection(c.Context(), workspaceID, c.Params("platform"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"url": authURL})
}

// Callback completes the OAuth flow. The workspace is carried by the signed
// state parameter, not by the session, so no auth middleware guards it.
func (h *SocialHandler) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")

	_, err := h.connector.CompleteConnection(c.Context(), code, state)
	if err != nil {
		slog.Info(err.Error())
		return errorResponse(c, err)
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *SocialHandler) Disconnect(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)
	accountID, err := c.ParamsInt("accountId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid account id",
		})
	}

	if err := h.connector.Disconnect(c.Context(), workspaceID, int64(accountID)); err != nil {
		return errorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *SocialHandler) ListAccounts(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)

	accounts, err := h.connector.List(c.Context(), workspaceID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(accounts)
}

// UploadVideo creates a draft post and hands back a presigned upload URL.
func (h *SocialHandler) UploadVideo(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)

	var req transfer.UploadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unable to parse request body",
		})
	}
	req.Platform = c.Params("platform")

	session, err := h.uploads.InitiateUpload(c.Context(), workspaceID, &req)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(session)
}

// Publish enqueues the publish job for an uploaded draft.
func (h *SocialHandler) Publish(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)

	var req transfer.PublishRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unable to parse request body",
		})
	}

	// Ownership check before touching the state machine.
	if _, err := h.uploads.PostInfo(c.Context(), workspaceID, req.PostID); err != nil {
		return errorResponse(c, err)
	}

	if err := h.publisher.EnqueuePublish(c.Context(), req.PostID, req.Platform); err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "publish scheduled",
	})
}

func (h *SocialHandler) GetPost(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)

	post, err := h.uploads.PostInfo(c.Context(), workspaceID, c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *SocialHandler) ListPosts(c *fiber.Ctx) error {
	workspaceID := GetWorkspaceID(c)

	posts, err := h.uploads.List(c.Context(), workspaceID)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}
