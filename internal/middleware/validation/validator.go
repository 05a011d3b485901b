package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

var (
	ErrEmpty       = errors.New("text is required")
	ErrTooLong     = errors.New("text exceeds maximum length")
	ErrUnsafeInput = errors.New("invalid text content")
)

type Config struct {
	MaxQuestionLength   int
	MaxDocumentSize     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// textFields names the free-text field validated on each POST route.
var textFields = map[string]string{
	"/api/v1/ask":  "question",
	"/api/v1/chat": "message",
}

func (cfg Config) withDefaults() Config {
	if cfg.MaxQuestionLength <= 0 {
		cfg.MaxQuestionLength = 2000
	}
	if cfg.MaxDocumentSize <= 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}

// CleanQuestion trims a user question and rejects empty, oversized or
// script-bearing input. It is shared by the HTTP middleware and the
// websocket handler.
func CleanQuestion(text string, maxLength int) (string, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
	if text == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(text) > maxLength {
		return "", ErrTooLong
	}
	if xssPattern.MatchString(text) {
		return "", ErrUnsafeInput
	}
	return text, nil
}

func Middleware(cfg Config) fiber.Handler {
	cfg = cfg.withDefaults()

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowedType(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		path := strings.TrimRight(c.Path(), "/")

		if field, ok := textFields[path]; ok {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			text, _ := req[field].(string)
			cleaned, err := CleanQuestion(text, cfg.MaxQuestionLength)
			if err != nil {
				if errors.Is(err, ErrUnsafeInput) {
					cfg.Logger.Warn("Potential XSS attempt",
						zap.String("ip", c.IP()),
						zap.String("path", path),
					)
				}
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": field + ": " + err.Error(),
				})
			}
			c.Locals("clean_text", cleaned)
		}

		if path == "/api/v1/documents" && len(c.Body()) > cfg.MaxDocumentSize {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Document content exceeds maximum size",
			})
		}

		return c.Next()
	}
}

func allowedType(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}
