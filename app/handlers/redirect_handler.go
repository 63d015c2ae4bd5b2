package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	businessflow "github.com/amirphl/Kusanagi/business_flow"
	"github.com/amirphl/Kusanagi/utils"
	"github.com/gofiber/fiber/v3"
)

// RedirectHandlerInterface defines the contract for the public visit endpoint
type RedirectHandlerInterface interface {
	Visit(c fiber.Ctx) error
}

type RedirectHandler struct {
	flow businessflow.ResolveFlow
}

func NewRedirectHandler(flow businessflow.ResolveFlow) RedirectHandlerInterface {
	return &RedirectHandler{flow: flow}
}

// Visit resolves a short code and redirects to the target URL
func (h *RedirectHandler) Visit(c fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}
	ua := c.Get("User-Agent")
	ipHash := hashIP(c.IP())

	target, err := h.flow.Resolve(h.createRequestContext(c, "/"+code), code, &ua, &ipHash)
	if err != nil {
		if businessflow.IsCodeNotFound(err) {
			return c.Status(fiber.StatusNotFound).SendString("not found")
		}
		if businessflow.IsLinkDisabled(err) {
			return c.Status(fiber.StatusGone).SendString("gone")
		}
		log.Println("Resolving short link failed", err)
		return c.Status(fiber.StatusInternalServerError).SendString("internal error")
	}
	c.Redirect().Status(fiber.StatusFound).To(target)
	return nil
}

// hashIP stores a digest instead of the raw client address
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:16])
}

func (h *RedirectHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 10*time.Second)
}

func (h *RedirectHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
