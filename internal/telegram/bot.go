package telegram

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/Djju69/KARMABOT1-sub001/internal/apperr"
	"github.com/Djju69/KARMABOT1-sub001/internal/config"
	"github.com/Djju69/KARMABOT1-sub001/internal/model"
	"github.com/Djju69/KARMABOT1-sub001/internal/service"
)

// Bot is the boundary chat surface: it attaches referral edges from /start
// deep links, answers balance/referral queries and pushes credit
// notifications. All hard logic stays in the services.
type Bot struct {
	bot         *tele.Bot
	cfg         *config.Config
	ledgerSvc   *service.LedgerService
	activitySvc *service.ActivityService
	referralSvc *service.ReferralService
	codeSvc     *service.CodeService
}

func NewBot(
	cfg *config.Config,
	ledgerSvc *service.LedgerService,
	activitySvc *service.ActivityService,
	referralSvc *service.ReferralService,
	codeSvc *service.CodeService,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Telegram.BotToken,
		Poller: &tele.LongPoller{Timeout: 60 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:         bot,
		cfg:         cfg,
		ledgerSvc:   ledgerSvc,
		activitySvc: activitySvc,
		referralSvc: referralSvc,
		codeSvc:     codeSvc,
	}

	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/balance", b.handleBalance)
	b.bot.Handle("/checkin", b.handleCheckin)
	b.bot.Handle("/referral", b.handleReferral)
	b.bot.Handle("/help", b.handleHelp)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

func (b *Bot) StartPolling(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.bot.Start()
}

func (b *Bot) GetBotUsername() string {
	return b.bot.Me.Username
}

func (b *Bot) handleStart(c tele.Context) error {
	user := c.Sender()

	joined := false
	payload := c.Message().Payload
	if strings.HasPrefix(payload, "ref_") {
		code := strings.TrimPrefix(payload, "ref_")
		referrerID, err := b.codeSvc.ResolveCode(context.Background(), code)
		if err == nil && referrerID != user.ID {
			if _, err := b.referralSvc.AddEdge(context.Background(), user.ID, referrerID); err == nil {
				joined = true
			} else if !apperr.IsKind(err, apperr.BusinessLogic) {
				log.Printf("Failed to attach referral edge for %d: %v", user.ID, err)
			}
		}
	}

	text := fmt.Sprintf(`Привет, %s! 👋

💳 <b>KARMABOT</b> — бонусная программа наших заведений

✅ Баллы за активность и чек-ины
✅ Бонусы за приглашённых друзей
✅ Оплата баллами у партнёров

Команды: /balance /checkin /referral /help`, user.FirstName)

	if joined {
		text += "\n\n🎁 Ты присоединился по приглашению друга!"
	}

	keyboard := &tele.ReplyMarkup{}
	rows := []tele.Row{
		keyboard.Row(
			keyboard.Data("💰 Баланс", "balance"),
			keyboard.Data("🎁 Рефералы", "referral"),
		),
	}
	if b.cfg.Telegram.WebAppURL != "" {
		rows = append(rows, keyboard.Row(
			keyboard.WebApp("📱 Открыть приложение", &tele.WebApp{URL: b.cfg.Telegram.WebAppURL}),
		))
	}
	keyboard.Inline(rows...)

	return c.Send(text, keyboard, tele.ModeHTML)
}

func (b *Bot) handleBalance(c tele.Context) error {
	user := c.Sender()

	balance, err := b.ledgerSvc.GetBalance(context.Background(), user.ID)
	if err != nil {
		log.Printf("Failed to get balance for %d: %v", user.ID, err)
		return c.Send("Не удалось получить баланс, попробуйте позже.")
	}

	text := fmt.Sprintf(`💰 <b>Ваш баланс</b>

Доступно: <b>%.2f</b> баллов
Заработано всего: %.2f`,
		balance.AvailablePoints,
		balance.TotalPoints,
	)

	return c.Send(text, tele.ModeHTML)
}

func (b *Bot) handleCheckin(c tele.Context) error {
	user := c.Sender()

	t, err := b.activitySvc.RecordActivity(context.Background(), user.ID, model.ActivityDailyCheckin, nil)
	if err != nil {
		if apperr.KindOf(err) == apperr.Validation {
			return c.Send("❌ " + err.Error())
		}
		log.Printf("Check-in failed for %d: %v", user.ID, err)
		return c.Send("Не удалось засчитать чек-ин, попробуйте позже.")
	}

	return c.Send(fmt.Sprintf("✅ Ежедневный чек-ин засчитан: +%.0f баллов!", t.Points))
}

func (b *Bot) handleReferral(c tele.Context) error {
	user := c.Sender()

	stats, err := b.referralSvc.GetStats(context.Background(), user.ID)
	if err != nil {
		log.Printf("Failed to get referral stats for %d: %v", user.ID, err)
		return c.Send("Не удалось получить статистику, попробуйте позже.")
	}

	link, err := b.codeSvc.ReferralLink(context.Background(), user.ID, b.bot.Me.Username)
	if err != nil {
		log.Printf("Failed to get referral link for %d: %v", user.ID, err)
		return c.Send("Не удалось получить ссылку, попробуйте позже.")
	}

	text := fmt.Sprintf(`🎁 <b>Реферальная программа</b>

Приглашай друзей и получай процент с их покупок:
• 1 уровень — %.0f%%
• 2 уровень — %.0f%%
• 3 уровень — %.0f%%

📊 <b>Твоя статистика:</b>
👥 Приглашено: %d
💎 Заработано: %.2f баллов

🔗 <b>Твоя ссылка:</b>
<code>%s</code>`,
		b.referralPercent(1),
		b.referralPercent(2),
		b.referralPercent(3),
		stats.TotalReferrals,
		stats.TotalEarnings,
		link,
	)

	return c.Send(text, tele.ModeHTML)
}

func (b *Bot) handleHelp(c tele.Context) error {
	text := `📖 <b>Помощь</b>

<b>📱 Команды:</b>
/start — Главное меню
/balance — Баланс баллов
/checkin — Ежедневный чек-ин
/referral — Реферальная программа

Баллы начисляются за активность и покупки у партнёров;
потратить их можно при оплате в заведениях программы.`

	return c.Send(text, tele.ModeHTML)
}

func (b *Bot) handleCallback(c tele.Context) error {
	defer c.Respond()

	// telebot prefixes callback data with \f.
	switch strings.TrimPrefix(c.Callback().Data, "\f") {
	case "balance":
		return b.handleBalance(c)
	case "referral":
		return b.handleReferral(c)
	}
	return nil
}

func (b *Bot) referralPercent(level int) float64 {
	return b.cfg.Loyalty.BonusPercents[level] * 100
}

// SendBonusCredited notifies an ancestor about a propagated purchase bonus.
func (b *Bot) SendBonusCredited(chatID int64, amount float64) error {
	text := fmt.Sprintf(`🎉 <b>Реферальный бонус!</b>

Ваш друг совершил покупку — вам начислено <b>+%.2f</b> баллов.

Проверить баланс: /balance`, amount)

	_, err := b.bot.Send(&tele.User{ID: chatID}, text, tele.ModeHTML)
	return err
}

// SendPointsCredited is the generic credit notification.
func (b *Bot) SendPointsCredited(chatID int64, amount float64, reason string) error {
	text := fmt.Sprintf("✅ Начислено <b>+%.2f</b> баллов: %s", amount, reason)
	_, err := b.bot.Send(&tele.User{ID: chatID}, text, tele.ModeHTML)
	return err
}
