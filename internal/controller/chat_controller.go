package controller

import (
	"strings"

	"kb-assistant-be/internal/dto"
	"kb-assistant-be/internal/entity"
	"kb-assistant-be/internal/pkg/serverutils"
	"kb-assistant-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	GetSession(ctx *fiber.Ctx) error
	EndSession(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	EditMessage(ctx *fiber.Ctx) error
	DeleteMessage(ctx *fiber.Ctx) error
	UpdateDraft(ctx *fiber.Ctx) error
	UpdateUIState(ctx *fiber.Ctx) error
	SaveEditing(ctx *fiber.Ctx) error
	Cancel(ctx *fiber.Ctx) error
	NewConversation(ctx *fiber.Ctx) error
	ListDocuments(ctx *fiber.Ctx) error
	UploadDocument(ctx *fiber.Ctx) error
	DeleteDocument(ctx *fiber.Ctx) error
	ToggleDocument(ctx *fiber.Ctx) error
	SelectAllDocuments(ctx *fiber.Ctx) error
	ClearSelection(ctx *fiber.Ctx) error
	GetHistory(ctx *fiber.Ctx) error
	OpenConversation(ctx *fiber.Ctx) error
	DeleteConversation(ctx *fiber.Ctx) error
}

type chatController struct {
	service   service.IChatService
	jwtSecret string
}

func NewChatController(service service.IChatService, jwtSecret string) IChatController {
	return &chatController{service: service, jwtSecret: jwtSecret}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Use(serverutils.JwtMiddleware(c.jwtSecret))

	h.Get("/session", c.GetSession)
	h.Delete("/session", c.EndSession)
	h.Post("/session/messages", c.SendMessage)
	h.Put("/session/messages/:index", c.EditMessage)
	h.Delete("/session/messages/:index", c.DeleteMessage)
	h.Put("/session/draft", c.UpdateDraft)
	h.Put("/session/ui", c.UpdateUIState)
	h.Post("/session/editing/save", c.SaveEditing)
	h.Post("/session/cancel", c.Cancel)
	h.Post("/session/new", c.NewConversation)

	h.Get("/documents", c.ListDocuments)
	h.Post("/documents", c.UploadDocument)
	h.Post("/documents/select-all", c.SelectAllDocuments)
	h.Post("/documents/clear", c.ClearSelection)
	h.Delete("/documents/:id", c.DeleteDocument)
	h.Post("/documents/:id/toggle", c.ToggleDocument)

	h.Get("/conversations", c.GetHistory)
	h.Post("/conversations/:id/open", c.OpenConversation)
	h.Delete("/conversations/:id", c.DeleteConversation)
}

func (c *chatController) GetSession(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetSession(ctx.UserContext(), userId, token)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get session", res))
}

// EndSession is called on sign-out. The next request starts a fresh session
// with the saved history.
func (c *chatController) EndSession(ctx *fiber.Ctx) error {
	userId, _, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	c.service.EndSession(userId)

	return ctx.JSON(serverutils.SuccessResponse[any]("Success end session", nil))
}

func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SendMessage(ctx.UserContext(), userId, token, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send message", res))
}

func (c *chatController) EditMessage(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}
	index, err := indexParam(ctx)
	if err != nil {
		return err
	}

	var req dto.EditMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.EditMessage(ctx.UserContext(), userId, token, index, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success edit message", res))
}

func (c *chatController) DeleteMessage(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}
	index, err := indexParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.DeleteMessage(ctx.UserContext(), userId, token, index)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success delete message", res))
}

func (c *chatController) UpdateDraft(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	var req dto.UpdateDraftRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.UpdateDraft(ctx.UserContext(), userId, token, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update draft", res))
}

func (c *chatController) UpdateUIState(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	var req dto.UpdateUIStateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	res, err := c.service.UpdateUIState(ctx.UserContext(), userId, token, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update ui state", res))
}

func (c *chatController) SaveEditing(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	var req dto.SaveEditingRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SaveEditing(ctx.UserContext(), userId, token, &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success save edit", res))
}

func (c *chatController) Cancel(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.Cancel(ctx.UserContext(), userId, token)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success cancel", res))
}

func (c *chatController) NewConversation(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.NewConversation(ctx.UserContext(), userId, token)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success start new conversation", res))
}

func (c *chatController) ListDocuments(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.ListDocuments(ctx.UserContext(), userId, token)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get documents", res))
}

func (c *chatController) UploadDocument(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "file is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	res, err := c.service.UploadDocument(ctx.UserContext(), userId, token, fileHeader.Filename, file)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success upload document", res))
}

func (c *chatController) DeleteDocument(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}
	id, err := documentParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.DeleteDocument(ctx.UserContext(), userId, token, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success delete document", res))
}

func (c *chatController) ToggleDocument(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}
	id, err := documentParam(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.ToggleDocument(ctx.UserContext(), userId, token, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success toggle document", res))
}

func (c *chatController) SelectAllDocuments(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.SelectAllDocuments(ctx.UserContext(), userId, token)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success select all documents", res))
}

func (c *chatController) ClearSelection(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.ClearSelection(ctx.UserContext(), userId, token)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success clear selection", res))
}

func (c *chatController) GetHistory(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetHistory(ctx.UserContext(), userId, token, ctx.Query("q"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get conversations", res))
}

func (c *chatController) OpenConversation(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid conversation id")
	}

	res, err := c.service.OpenConversation(ctx.UserContext(), userId, token, id)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success open conversation", res))
}

func (c *chatController) DeleteConversation(ctx *fiber.Ctx) error {
	userId, token, err := serverutils.CurrentUser(ctx)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid conversation id")
	}

	if err := c.service.DeleteConversation(ctx.UserContext(), userId, token, id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete conversation", nil))
}

func indexParam(ctx *fiber.Ctx) (int, error) {
	index, err := ctx.ParamsInt("index")
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid message index")
	}
	return index, nil
}

func documentParam(ctx *fiber.Ctx) (entity.DocumentID, error) {
	id := strings.TrimSpace(ctx.Params("id"))
	if id == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid document id")
	}
	return entity.DocumentID(id), nil
}
