// Package common — errors.go содержит доменные ошибки, общие для всех фич.
// Сервисы оборачивают их через fmt.Errorf("...: %w"), а вызывающий код
// проверяет через errors.Is.
package common

import "errors"

// Ошибки аккаунтов и баланса
var (
	// ErrNotFound — аккаунт (или раунд) не найден
	ErrNotFound = errors.New("не найдено")
	// ErrInsufficientBalance — на балансе меньше, чем требуется списать
	ErrInsufficientBalance = errors.New("недостаточно билетов на балансе")
	// ErrInvalidAmount — сумма должна быть положительной
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
	// ErrUnknownCause — причина движения по леджеру вне закрытого списка
	ErrUnknownCause = errors.New("неизвестная причина операции")
)

// Ошибки реферальной сети.
// ErrAlreadyBound наружу не уходит: привязка спонсора молча становится no-op.
var ErrAlreadyBound = errors.New("спонсор уже привязан")

// Ошибки лотереи
var (
	// ErrRoundAlreadyClosed — раунд уже закрыт, повторный розыгрыш невозможен
	ErrRoundAlreadyClosed = errors.New("раунд уже закрыт")
)

// Ошибки платежей
var (
	// ErrUnknownPurpose — назначение платежа вне закрытого списка
	ErrUnknownPurpose = errors.New("неизвестное назначение платежа")
	// ErrMissingToken — у подтверждения платежа нет токена идемпотентности
	ErrMissingToken = errors.New("нет токена платежа")
	// ErrCommissionsPending — платёж применён, но комиссии спонсорам пока не начислены
	ErrCommissionsPending = errors.New("реферальные комиссии ожидают начисления")
)

// Ошибки заданий
var (
	// ErrTaskCompleted — пользователь уже выполнил задание
	ErrTaskCompleted = errors.New("задание уже выполнено")
	// ErrTaskInactive — задание снято с публикации
	ErrTaskInactive = errors.New("задание неактивно")
	// ErrInvalidTask — у задания нет названия
	ErrInvalidTask = errors.New("у задания нет названия")
)

// Ошибки админки
var (
	// ErrNotAdmin — пользователь не входит в ADMIN_IDS
	ErrNotAdmin = errors.New("у вас нет прав администратора")
)
