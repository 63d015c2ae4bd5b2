package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/Kusanagi/app/dto"
	businessflow "github.com/amirphl/Kusanagi/business_flow"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// LinkHandlerInterface defines the contract for short link management handlers
type LinkHandlerInterface interface {
	Shorten(c fiber.Ctx) error
	ListLinks(c fiber.Ctx) error
	Overview(c fiber.Ctx) error
	Popular(c fiber.Ctx) error
	Stats(c fiber.Ctx) error
	SetActive(c fiber.Ctx) error
}

// LinkHandler handles short link HTTP requests
type LinkHandler struct {
	shortenFlow businessflow.ShortenFlow
	statsFlow   businessflow.StatsFlow
	manageFlow  businessflow.ManageFlow
	validator   *validator.Validate
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(shortenFlow businessflow.ShortenFlow, statsFlow businessflow.StatsFlow, manageFlow businessflow.ManageFlow) *LinkHandler {
	return &LinkHandler{
		shortenFlow: shortenFlow,
		statsFlow:   statsFlow,
		manageFlow:  manageFlow,
		validator:   validator.New(),
	}
}

func (h *LinkHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *LinkHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Shorten handles short link creation
func (h *LinkHandler) Shorten(c fiber.Ctx) error {
	var req dto.ShortenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	ownerID, ok := c.Locals("owner_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Owner ID not found in context", "MISSING_OWNER_ID", nil)
	}

	result, err := h.shortenFlow.Shorten(h.createRequestContext(c, "/api/v1/links"), ownerID, &req)
	if err != nil {
		if businessflow.IsInvalidTargetURL(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Target URL must be an absolute http or https URL", "INVALID_TARGET_URL", nil)
		}
		if businessflow.IsInvalidAlias(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Custom alias has invalid format", "INVALID_ALIAS", nil)
		}
		if businessflow.IsAliasTaken(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Custom alias is already in use", "ALIAS_TAKEN", nil)
		}
		if businessflow.IsInvalidExpiry(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Expiry must be in the future", "INVALID_EXPIRY", nil)
		}
		if businessflow.IsExhaustedRetries(err) {
			log.Println("Code generation exhausted retries", err)
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Could not allocate a unique code, try again", "CODE_SPACE_CONTENTION", nil)
		}

		log.Println("Link creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Link creation failed", "LINK_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Link created successfully", result)
}

// ListLinks returns the authenticated owner's links, newest first
func (h *LinkHandler) ListLinks(c fiber.Ctx) error {
	ownerID, ok := c.Locals("owner_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Owner ID not found in context", "MISSING_OWNER_ID", nil)
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	result, err := h.manageFlow.ListByOwner(h.createRequestContext(c, "/api/v1/links"), ownerID, page, pageSize)
	if err != nil {
		if businessflow.IsInvalidPage(err) || businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid pagination parameters", "INVALID_PAGINATION", nil)
		}
		log.Println("Listing links failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Listing links failed", "LINK_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Links retrieved successfully", result)
}

// Overview returns aggregate counts for the authenticated owner
func (h *LinkHandler) Overview(c fiber.Ctx) error {
	ownerID, ok := c.Locals("owner_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Owner ID not found in context", "MISSING_OWNER_ID", nil)
	}

	result, err := h.statsFlow.Overview(h.createRequestContext(c, "/api/v1/links/overview"), ownerID)
	if err != nil {
		log.Println("Overview failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Overview failed", "OVERVIEW_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Overview retrieved successfully", result)
}

// Popular returns the top visited links
func (h *LinkHandler) Popular(c fiber.Ctx) error {
	n := queryInt(c, "limit", 10)

	result, err := h.statsFlow.Popular(h.createRequestContext(c, "/api/v1/links/popular"), n)
	if err != nil {
		log.Println("Popular ranking failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Popular ranking failed", "POPULAR_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Popular links retrieved successfully", result)
}

// Stats returns visit statistics for one of the owner's links
func (h *LinkHandler) Stats(c fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Code is required", "MISSING_CODE", nil)
	}

	ownerID, ok := c.Locals("owner_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Owner ID not found in context", "MISSING_OWNER_ID", nil)
	}

	result, err := h.statsFlow.Stats(h.createRequestContext(c, "/api/v1/links/"+code+"/stats"), code, ownerID)
	if err != nil {
		// another owner's link is reported as not-found so the response
		// does not reveal that the code exists
		if businessflow.IsCodeNotFound(err) || businessflow.IsLinkAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Link not found", "LINK_NOT_FOUND", nil)
		}
		log.Println("Link stats failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Link stats failed", "LINK_STATS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Link stats retrieved successfully", result)
}

// SetActive enables or disables one of the owner's links
func (h *LinkHandler) SetActive(c fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Code is required", "MISSING_CODE", nil)
	}

	var req dto.SetActiveRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	ownerID, ok := c.Locals("owner_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Owner ID not found in context", "MISSING_OWNER_ID", nil)
	}

	result, err := h.manageFlow.SetActive(h.createRequestContext(c, "/api/v1/links/"+code+"/active"), code, ownerID, *req.Active)
	if err != nil {
		if businessflow.IsCodeNotFound(err) || businessflow.IsLinkAccessDenied(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Link not found", "LINK_NOT_FOUND", nil)
		}
		log.Println("Updating link state failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Updating link state failed", "LINK_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Link updated successfully", result)
}

func queryInt(c fiber.Ctx, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func (h *LinkHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 10*time.Second)
}

func (h *LinkHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
