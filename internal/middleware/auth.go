package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Djju69/KARMABOT1-sub001/internal/config"
)

const (
	TelegramUserKey = "telegram_user"
	UserIDKey       = "user_id"

	initDataMaxAge = time.Hour
)

type TelegramUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	LanguageCode string `json:"language_code"`
}

// TelegramAuth validates Telegram WebApp initData and stores the caller's
// account id in request locals.
func TelegramAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		initData := c.Get("X-Telegram-Init-Data")
		if initData == "" {
			initData = strings.TrimPrefix(c.Get("Authorization"), "tma ")
		}

		if initData == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing telegram init data",
			})
		}

		user, err := ValidateInitData(initData, cfg.Telegram.BotToken, time.Now())
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid telegram init data: " + err.Error(),
			})
		}

		c.Locals(TelegramUserKey, user)
		c.Locals(UserIDKey, user.ID)

		return c.Next()
	}
}

// ValidateInitData checks the WebApp HMAC signature and freshness, then
// decodes the embedded user object.
func ValidateInitData(initData, botToken string, now time.Time) (*TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, err
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "missing hash")
	}

	raw := values.Get("auth_date")
	if raw == "" {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "missing auth_date")
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid auth_date")
	}
	if now.Sub(time.Unix(sec, 0)) > initDataMaxAge {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "auth_date expired")
	}

	values.Del("hash")
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+values.Get(key))
	}
	dataCheckString := strings.Join(parts, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dataCheckString))
	if hex.EncodeToString(mac.Sum(nil)) != hash {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid hash")
	}

	var user TelegramUser
	if raw := values.Get("user"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid user payload")
		}
	}
	return &user, nil
}

func GetUserID(c *fiber.Ctx) int64 {
	userID, ok := c.Locals(UserIDKey).(int64)
	if !ok {
		return 0
	}
	return userID
}

func GetTelegramUser(c *fiber.Ctx) *TelegramUser {
	user, ok := c.Locals(TelegramUserKey).(*TelegramUser)
	if !ok {
		return nil
	}
	return user
}
