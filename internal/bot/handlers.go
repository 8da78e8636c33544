package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/config"
	"serotonyl.ru/stars-bot/internal/engine"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/payments"
	"serotonyl.ru/stars-bot/internal/jobs"
)

// starsCurrency — валюта Telegram Stars.
const starsCurrency = "XTR"

const (
	historyLimit = 10
	topLimit     = 10
)

// Sender — методы Bot API, которые нужны обработчикам.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendInvoice(ctx context.Context, params *telego.SendInvoiceParams) (*telego.Message, error)
	AnswerPreCheckoutQuery(ctx context.Context, params *telego.AnswerPreCheckoutQueryParams) error
}

// Handler обрабатывает команды и платежи.
type Handler struct {
	sender      Sender
	eng         *engine.Engine
	cfg         *config.Config
	botUsername string
}

// NewHandler создаёт обработчик. botUsername нужен для реферальной ссылки.
func NewHandler(sender Sender, eng *engine.Engine, cfg *config.Config, botUsername string) *Handler {
	return &Handler{sender: sender, eng: eng, cfg: cfg, botUsername: botUsername}
}

func profileOf(u *telego.User) accounts.Profile {
	return accounts.Profile{UserID: u.ID, Username: u.Username, FirstName: u.FirstName}
}

// parseSponsor разбирает аргумент deep-link: "123" или "ref_123".
func parseSponsor(args []string) int64 {
	if len(args) == 0 {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "ref_"), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// parseAmount разбирает положительное количество.
func parseAmount(args []string, pos int) (int64, error) {
	if len(args) <= pos {
		return 0, common.ErrInvalidAmount
	}
	n, err := strconv.ParseInt(args[pos], 10, 64)
	if err != nil || n <= 0 {
		return 0, common.ErrInvalidAmount
	}
	return n, nil
}

func (h *Handler) referralLink(userID int64) string {
	if h.botUsername == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=ref_%d", h.botUsername, userID)
}

// HandleMessage регистрирует отправителя и выполняет команду.
func (h *Handler) HandleMessage(ctx context.Context, msg *telego.Message) {
	if msg.SuccessfulPayment != nil {
		h.HandleSuccessfulPayment(ctx, msg)
		return
	}

	cmd, _, args := tu.ParseCommand(msg.Text)
	if cmd == "" {
		return
	}
	cmd = strings.ToLower(cmd)

	sponsorID := int64(0)
	if cmd == "start" {
		sponsorID = parseSponsor(args)
	}
	welcome, err := h.eng.OnNewAccount(ctx, engine.NewAccount{
		ID:        msg.From.ID,
		Username:  msg.From.Username,
		FirstName: msg.From.FirstName,
		SponsorID: sponsorID,
	})
	if err != nil {
		log.WithError(err).WithField("user_id", msg.From.ID).Warn("OnNewAccount failed")
		h.reply(ctx, msg.Chat.ID, userError(err))
		return
	}

	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")
	h.routeCommand(ctx, msg, welcome, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (h *Handler) routeCommand(ctx context.Context, msg *telego.Message, welcome engine.Welcome, cmd string, args []string) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	switch cmd {
	case "start":
		h.reply(ctx, chatID, welcomeText(welcome, h.referralLink(userID)))

	case "help":
		h.reply(ctx, chatID, helpText)

	case "balance":
		info, err := h.eng.Balance(ctx, userID)
		if err != nil {
			h.fail(ctx, chatID, cmd, err)
			return
		}
		h.reply(ctx, chatID, balanceText(info))

	case "history":
		entries, err := h.eng.History(ctx, userID, historyLimit)
		if err != nil {
			h.fail(ctx, chatID, cmd, err)
			return
		}
		h.reply(ctx, chatID, historyText(entries))

	case "lottery":
		info, err := h.eng.LotteryInfo(ctx, userID)
		if err != nil {
			h.fail(ctx, chatID, cmd, err)
			return
		}
		h.reply(ctx, chatID, lotteryText(info, h.eng.Now()))

	case "round":
		roundID, err := parseAmount(args, 0)
		if err != nil {
			h.reply(ctx, chatID, "Использование: /round <номер раунда>")
			return
		}
		res, err := h.eng.RoundResult(ctx, roundID)
		if err != nil {
			h.fail(ctx, chatID, cmd, err)
			return
		}
		h.reply(ctx, chatID, roundText(res))

	case "top":
		leaders, err := h.eng.TopSpenders(ctx, topLimit)
		if err != nil {
			h.fail(ctx, chatID, cmd, err)
			return
		}
		h.reply(ctx, chatID, topText(leaders))

	case "tasks":
		items, err := h.eng.Tasks(ctx, userID)
		if err != nil {
			h.fail(ctx, chatID, cmd, err)
			return
		}
		h.reply(ctx, chatID, tasksText(items))

	case "task":
		taskID, err := parseAmount(args, 0)
		if err != nil {
			h.reply(ctx, chatID, "Использование: /task <номер задания>")
			return
		}
		done, err := h.eng.CompleteTask(ctx, userID, taskID)
		if err != nil {
			h.fail(ctx, chatID, cmd, err)
			return
		}
		h.reply(ctx, chatID, fmt.Sprintf("✅ Задание «%s» выполнено: %s\nБаланс: %s",
			done.Task.Title, common.FormatTicketsDelta(done.Task.Reward), common.FormatTickets(done.Balance)))

	case "task_add", "task_off":
		if !h.cfg.IsAdmin(userID) {
			h.reply(ctx, chatID, userError(common.ErrNotAdmin))
			return
		}
		if cmd == "task_add" {
			h.handleTaskAdd(ctx, chatID, userID, args)
		} else {
			h.handleTaskOff(ctx, chatID, userID, args)
		}

	case "lottery_join":
		amount, err := parseAmount(args, 0)
		if err != nil {
			h.reply(ctx, chatID, "Использование: /lottery_join <количество билетов>")
			return
		}
		res, err := h.eng.OnLotteryJoinRequest(ctx, userID, amount)
		if err != nil {
			h.fail(ctx, chatID, cmd, err)
			return
		}
		h.reply(ctx, chatID, stakeText(res))

	case "buy_tickets":
		stars, err := parseAmount(args, 0)
		if err != nil {
			h.reply(ctx, chatID, "Использование: /buy_tickets <количество звёзд>")
			return
		}
		h.sendInvoice(ctx, chatID, payments.PurposeTicketPurchase, stars,
			"Билеты", fmt.Sprintf("%s за %d %s", common.FormatTickets(stars*h.cfg.TicketsPerStar), stars, common.PluralizeStars(stars)))

	case "buy_stake":
		stars, err := parseAmount(args, 0)
		if err != nil {
			h.reply(ctx, chatID, "Использование: /buy_stake <количество звёзд>")
			return
		}
		h.sendInvoice(ctx, chatID, payments.PurposeLotteryStakePurchase, stars,
			"Ставка в лотерее", fmt.Sprintf("%s сразу в текущий розыгрыш", common.FormatTickets(stars*h.cfg.TicketsPerStar)))

	case "buy_vip":
		policy := h.eng.VIPPolicy()
		h.sendInvoice(ctx, chatID, payments.PurposeVIPPurchase, h.cfg.VIPPriceStars,
			"VIP", fmt.Sprintf("VIP на %d %s: начисления ×%s и бонус %s",
				policy.Days, common.PluralizeDays(policy.Days), policy.Multiplier, common.FormatTickets(policy.Bonus)))

	case "lottery_draw":
		if !h.cfg.IsAdmin(userID) {
			h.reply(ctx, chatID, userError(common.ErrNotAdmin))
			return
		}
		h.handleDraw(ctx, chatID, args)

	case "give":
		if !h.cfg.IsAdmin(userID) {
			h.reply(ctx, chatID, userError(common.ErrNotAdmin))
			return
		}
		h.handleGive(ctx, chatID, userID, args)

	default:
		h.reply(ctx, chatID, helpText)
	}
}

func (h *Handler) handleDraw(ctx context.Context, chatID int64, args []string) {
	var roundID *int64
	if len(args) > 0 {
		id, err := parseAmount(args, 0)
		if err != nil {
			h.reply(ctx, chatID, "Использование: /lottery_draw [номер раунда]")
			return
		}
		roundID = &id
	}

	res, err := h.eng.OnAdminDrawRequest(ctx, roundID)
	if err != nil {
		h.fail(ctx, chatID, "lottery_draw", err)
		return
	}
	h.reply(ctx, chatID, drawText(res))

	if !res.AlreadyClosed {
		for _, w := range res.Winners {
			h.SendMessageToUser(ctx, w.UserID, jobs.WinnerMessage(res.Round, w))
		}
	}
}

func (h *Handler) handleGive(ctx context.Context, chatID, adminID int64, args []string) {
	target, errTarget := parseAmount(args, 0)
	amount, errAmount := parseAmount(args, 1)
	if errTarget != nil || errAmount != nil {
		h.reply(ctx, chatID, "Использование: /give <user_id> <количество>")
		return
	}

	balance, err := h.eng.AdminGrant(ctx, adminID, target, amount)
	if err != nil {
		h.fail(ctx, chatID, "give", err)
		return
	}
	h.reply(ctx, chatID, fmt.Sprintf("✅ Пользователю %d начислено %s\nБаланс: %s",
		target, common.FormatTicketsDelta(amount), common.FormatTickets(balance)))
	h.SendMessageToUser(ctx, target, fmt.Sprintf("🎁 Вам начислено %s", common.FormatTicketsDelta(amount)))
}

// handleTaskAdd: /task_add <награда> <ссылка> <название...>. Ссылка "-" — без ссылки.
func (h *Handler) handleTaskAdd(ctx context.Context, chatID, adminID int64, args []string) {
	reward, err := parseAmount(args, 0)
	if err != nil || len(args) < 3 {
		h.reply(ctx, chatID, "Использование: /task_add <награда> <ссылка|-> <название>")
		return
	}
	link := args[1]
	if link == "-" {
		link = ""
	}

	task, err := h.eng.AdminAddTask(ctx, adminID, strings.Join(args[2:], " "), link, reward)
	if err != nil {
		h.fail(ctx, chatID, "task_add", err)
		return
	}
	h.reply(ctx, chatID, fmt.Sprintf("✅ Задание #%d добавлено: %s — %s",
		task.ID, task.Title, common.FormatTickets(task.Reward)))
}

func (h *Handler) handleTaskOff(ctx context.Context, chatID, adminID int64, args []string) {
	taskID, err := parseAmount(args, 0)
	if err != nil {
		h.reply(ctx, chatID, "Использование: /task_off <номер задания>")
		return
	}
	if err := h.eng.AdminDisableTask(ctx, adminID, taskID); err != nil {
		h.fail(ctx, chatID, "task_off", err)
		return
	}
	h.reply(ctx, chatID, fmt.Sprintf("✅ Задание #%d отключено", taskID))
}

func (h *Handler) sendInvoice(ctx context.Context, chatID int64, purpose payments.Purpose, stars int64, title, description string) {
	_, err := h.sender.SendInvoice(ctx, &telego.SendInvoiceParams{
		ChatID:      tu.ID(chatID),
		Title:       title,
		Description: description,
		Payload:     purpose.String(),
		Currency:    starsCurrency,
		Prices:      []telego.LabeledPrice{{Label: title, Amount: int(stars)}},
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"chat_id": chatID,
			"purpose": purpose.String(),
		}).Error("Ошибка отправки инвойса")
		h.reply(ctx, chatID, userError(err))
	}
}

// HandlePreCheckout подтверждает оплату, если назначение известно.
func (h *Handler) HandlePreCheckout(ctx context.Context, q *telego.PreCheckoutQuery) {
	params := &telego.AnswerPreCheckoutQueryParams{PreCheckoutQueryID: q.ID, Ok: true}
	if _, err := payments.ParsePurpose(q.InvoicePayload); err != nil || q.Currency != starsCurrency || q.TotalAmount <= 0 {
		params.Ok = false
		params.ErrorMessage = "Неизвестный тип платежа"
		log.WithFields(log.Fields{
			"user_id": q.From.ID,
			"payload": q.InvoicePayload,
		}).Warn("Отклонён pre-checkout")
	}

	if err := h.sender.AnswerPreCheckoutQuery(ctx, params); err != nil {
		log.WithError(err).WithField("query_id", q.ID).Error("Ошибка ответа на pre-checkout")
	}
}

// HandleSuccessfulPayment применяет оплату. ID платежа Telegram — токен идемпотентности.
func (h *Handler) HandleSuccessfulPayment(ctx context.Context, msg *telego.Message) {
	p := msg.SuccessfulPayment
	logger := log.WithFields(log.Fields{
		"user_id": msg.From.ID,
		"charge":  p.TelegramPaymentChargeID,
		"payload": p.InvoicePayload,
	})

	purpose, err := payments.ParsePurpose(p.InvoicePayload)
	if err != nil {
		logger.WithError(err).Error("Платёж с неизвестным назначением")
		h.reply(ctx, msg.Chat.ID, userError(err))
		return
	}

	effects, err := h.eng.OnPaymentConfirmed(ctx, profileOf(msg.From), int64(p.TotalAmount), purpose, p.TelegramPaymentChargeID)
	if err != nil {
		h.fail(ctx, msg.Chat.ID, "payment", err)
		return
	}
	h.reply(ctx, msg.Chat.ID, paymentText(effects))

	// Спонсоров уведомляем только из вызова, который начислил комиссии
	if !effects.CommissionsSettled {
		return
	}
	payer := accounts.Account{UserID: msg.From.ID, Username: msg.From.Username, FirstName: msg.From.FirstName}
	for _, c := range effects.Commissions {
		h.SendMessageToUser(ctx, c.SponsorID, commissionText(c, payer))
	}
}

func (h *Handler) fail(ctx context.Context, chatID int64, cmd string, err error) {
	log.WithError(err).WithFields(log.Fields{
		"chat_id": chatID,
		"cmd":     cmd,
	}).Warn("Команда завершилась ошибкой")
	h.reply(ctx, chatID, userError(err))
}

// reply — утилита для отправки сообщений.
func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if _, err := h.sender.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// SendMessageToUser отправляет уведомление пользователю.
func (h *Handler) SendMessageToUser(ctx context.Context, userID int64, text string) {
	if _, err := h.sender.SendMessage(ctx, tu.Message(tu.ID(userID), text)); err != nil {
		log.WithError(err).WithField("user_id", userID).Debug("Не удалось отправить сообщение")
	} else {
		log.WithField("user_id", userID).Debug("message sent")
	}
}
