package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"serotonyl.ru/stars-bot/internal/common"
	"serotonyl.ru/stars-bot/internal/engine"
	"serotonyl.ru/stars-bot/internal/features/accounts"
	"serotonyl.ru/stars-bot/internal/features/ledger"
	"serotonyl.ru/stars-bot/internal/features/lottery"
	"serotonyl.ru/stars-bot/internal/features/payments"
	"serotonyl.ru/stars-bot/internal/features/referral"
	"serotonyl.ru/stars-bot/internal/features/tasks"
)

const helpText = `🎟 Команды:
/balance — баланс и VIP
/history — последние операции
/lottery — текущий розыгрыш
/round <n> — итоги розыгрыша #n
/lottery_join <n> — поставить n билетов
/tasks — задания за билеты
/top — топ покупателей
/buy_tickets <n> — купить билеты за n ⭐
/buy_stake <n> — купить и сразу поставить билеты за n ⭐
/buy_vip — купить VIP`

func welcomeText(w engine.Welcome, link string) string {
	var sb strings.Builder
	if w.Created {
		sb.WriteString("👋 Добро пожаловать!\n")
	} else {
		sb.WriteString("👋 С возвращением!\n")
	}
	if w.SponsorBound {
		sb.WriteString("🤝 Вы пришли по приглашению, спонсор закреплён.\n")
	}
	fmt.Fprintf(&sb, "Баланс: %s\n", common.FormatTickets(w.Account.Balance))
	if link != "" {
		fmt.Fprintf(&sb, "\n🔗 Ваша реферальная ссылка:\n%s\n", link)
	}
	sb.WriteString("\n")
	sb.WriteString(helpText)
	return sb.String()
}

func balanceText(b engine.BalanceInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💰 Баланс: %s", common.FormatTickets(b.Account.Balance))
	if b.VIPActive {
		days := int64(b.VIPLeft / (24 * time.Hour))
		fmt.Fprintf(&sb, "\n👑 VIP ×%s до %s (ещё %d %s)",
			b.Multiplier.String(),
			common.FormatUnix(b.Account.VIPUntil),
			days, common.PluralizeDays(days))
	} else {
		sb.WriteString("\n👑 VIP не активен — /buy_vip")
	}
	fmt.Fprintf(&sb, "\n⭐ Оплачено: %d %s", b.SpentStars, common.PluralizeStars(b.SpentStars))
	if b.ReferralEarned > 0 {
		fmt.Fprintf(&sb, "\n🤝 Заработано на рефералах: %s", common.FormatTickets(b.ReferralEarned))
	}
	return sb.String()
}

func historyText(entries []ledger.Entry) string {
	if len(entries) == 0 {
		return "📜 Операций пока нет"
	}
	var sb strings.Builder
	sb.WriteString("📜 Последние операции:\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n%s  %s  %s",
			common.FormatDateTime(e.CreatedAt),
			common.FormatTicketsDelta(e.Delta),
			e.Cause.Title())
	}
	return sb.String()
}

func lotteryText(info lottery.Info, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎰 Лотерея #%d\n", info.Round.ID)
	fmt.Fprintf(&sb, "Банк: %s\n", common.FormatTickets(info.Round.Jackpot))
	fmt.Fprintf(&sb, "Участников: %d\n", info.Participants)
	fmt.Fprintf(&sb, "До розыгрыша: %s\n", common.FormatTimeLeft(info.EndsAt.Sub(now)))
	if info.UserStake > 0 {
		fmt.Fprintf(&sb, "Ваша ставка: %s", common.FormatTickets(info.UserStake))
		if info.Round.Jackpot > 0 {
			fmt.Fprintf(&sb, " (шанс %.1f%%)", float64(info.UserStake)*100/float64(info.Round.Jackpot))
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("Вы ещё не участвуете — /lottery_join <n>\n")
	}

	if prev := info.Previous; prev != nil {
		fmt.Fprintf(&sb, "\nПрошлый розыгрыш #%d: ", prev.Round.ID)
		if len(prev.Winners) == 0 {
			sb.WriteString("без ставок")
		} else {
			w := prev.Winners[0]
			fmt.Fprintf(&sb, "победил %d, приз %s", w.UserID, common.FormatTickets(w.Prize))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func stakeText(res lottery.StakeResult) string {
	return fmt.Sprintf("✅ Ставка %s принята в лотерею #%d\nБанк: %s\nБаланс: %s",
		common.FormatTickets(res.Stake.Amount),
		res.Round.ID,
		common.FormatTickets(res.Round.Jackpot),
		common.FormatTickets(res.Balance))
}

func drawText(res lottery.CloseResult) string {
	var sb strings.Builder
	if res.AlreadyClosed {
		fmt.Fprintf(&sb, "ℹ️ Лотерея #%d уже разыграна\n", res.Round.ID)
	} else {
		fmt.Fprintf(&sb, "🎲 Лотерея #%d разыграна\n", res.Round.ID)
	}
	writeWinners(&sb, res)
	return sb.String()
}

func writeWinners(sb *strings.Builder, res lottery.CloseResult) {
	fmt.Fprintf(sb, "Банк: %s, участников: %d", common.FormatTickets(res.Round.Jackpot), res.Participants)
	for _, w := range res.Winners {
		fmt.Fprintf(sb, "\n%d место: %d — %s", w.Place, w.UserID, common.FormatTickets(w.Prize))
	}
	if len(res.Winners) == 0 {
		sb.WriteString("\nСтавок не было, победителя нет")
	}
}

func paymentText(e payments.Effects) string {
	if e.Duplicate {
		return "ℹ️ Этот платёж уже обработан"
	}

	var sb strings.Builder
	sb.WriteString("✅ Оплата получена\n")
	if e.Credited > 0 {
		fmt.Fprintf(&sb, "Начислено: %s\n", common.FormatTicketsDelta(e.Credited))
	}
	if e.Purpose == payments.PurposeVIPPurchase.String() {
		fmt.Fprintf(&sb, "👑 VIP до %s\n", common.FormatUnix(e.VIPUntil))
	}
	if e.Bonus > 0 {
		fmt.Fprintf(&sb, "Бонус: %s\n", common.FormatTicketsDelta(e.Bonus))
	}
	if e.Stake > 0 {
		fmt.Fprintf(&sb, "🎰 Ставка %s в лотерее #%d\n", common.FormatTickets(e.Stake), e.RoundID)
	}
	fmt.Fprintf(&sb, "Баланс: %s", common.FormatTickets(e.Balance))
	return sb.String()
}

func commissionText(c referral.Commission, payer accounts.Account) string {
	return fmt.Sprintf("💸 Реферальное начисление %d уровня: %s (платёж от %s)",
		c.Level, common.FormatTicketsDelta(c.Amount), payer.DisplayName())
}

// roundText — итоги раунда по запросу /round.
func roundText(res lottery.CloseResult) string {
	if res.Round.Status != lottery.StatusClosed {
		return fmt.Sprintf("🎰 Лотерея #%d ещё идёт\nБанк: %s — /lottery",
			res.Round.ID, common.FormatTickets(res.Round.Jackpot))
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏁 Лотерея #%d, закрыта %s\n", res.Round.ID, common.FormatDateTime(res.Round.ClosedAt))
	writeWinners(&sb, res)
	return sb.String()
}

func tasksText(items []tasks.Item) string {
	if len(items) == 0 {
		return "📋 Сейчас заданий нет"
	}
	var sb strings.Builder
	sb.WriteString("📋 Задания:\n")
	for _, it := range items {
		mark := "▫️"
		if it.Done {
			mark = "✅"
		}
		fmt.Fprintf(&sb, "\n%s #%d %s — %s", mark, it.ID, it.Title, common.FormatTickets(it.Reward))
		if it.Link != "" {
			fmt.Fprintf(&sb, "\n   %s", it.Link)
		}
	}
	sb.WriteString("\n\nВыполнили? Отправьте /task <номер>")
	return sb.String()
}

func topText(leaders []engine.Leader) string {
	if len(leaders) == 0 {
		return "🏆 Покупок пока не было"
	}
	var sb strings.Builder
	sb.WriteString("🏆 Топ покупателей:\n")
	for i, l := range leaders {
		fmt.Fprintf(&sb, "\n%d. %s — %d %s", i+1, l.Account.DisplayName(), l.Stars, common.PluralizeStars(l.Stars))
	}
	return sb.String()
}

// userError переводит ошибку ядра в ответ пользователю.
func userError(err error) string {
	switch {
	case errors.Is(err, common.ErrCommissionsPending):
		return "⏳ Оплата получена, начисления будут завершены в течение пары минут"
	case errors.Is(err, common.ErrTaskCompleted):
		return "ℹ️ Это задание уже выполнено"
	case errors.Is(err, common.ErrTaskInactive):
		return "❌ Задание больше не активно"
	case errors.Is(err, common.ErrInvalidTask):
		return "❌ У задания должно быть название"
	case errors.Is(err, common.ErrInsufficientBalance):
		return "❌ Недостаточно билетов"
	case errors.Is(err, common.ErrInvalidAmount):
		return "❌ Некорректное количество"
	case errors.Is(err, common.ErrNotFound):
		return "❌ Не найдено"
	case errors.Is(err, common.ErrUnknownPurpose):
		return "❌ Неизвестный тип платежа"
	case errors.Is(err, common.ErrNotAdmin):
		return "⛔ Команда только для администраторов"
	default:
		return "❌ Произошла ошибка, попробуйте позже"
	}
}
