// Package tasks — задания за билеты: подписаться на канал, перейти по ссылке.
// Каждое задание пользователь выполняет один раз, награда идёт в леджер
// с причиной task-reward.
package tasks

import "time"

// Task — задание из списка.
type Task struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Link      string    `db:"link"`
	Reward    int64     `db:"reward"` // Билеты за выполнение
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

// Item — задание с отметкой для конкретного пользователя.
type Item struct {
	Task
	Done bool
}

// Completion — результат выполнения задания.
type Completion struct {
	Task    Task
	Balance int64
}
