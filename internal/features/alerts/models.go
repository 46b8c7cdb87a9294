// Package alerts: тревожные уведомления о проектах: хранение, ручное
// создание модератором и рассылка (шина событий + Telegram).
// Автоматические алерты создаёт голосование в своей транзакции.
package alerts

import (
	"fmt"
	"time"

	"serotonyl.ru/monad-curator/internal/features/projects"
)

// Alert: неизменяемая запись о тревожном статусе проекта.
type Alert struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"projectId"`
	Message   string          `json:"message"`
	AlertType projects.Status `json:"alertType"`
	CreatedAt time.Time       `json:"createdAt"`
}

// CreateInput: ручной алерт.
type CreateInput struct {
	ProjectID string `json:"projectId"`
	Message   string `json:"message"`
	AlertType string `json:"alertType"`
}

// AutoMessage: текст алерта по итогам голосования.
func AutoMessage(projectName string, status projects.Status) string {
	return fmt.Sprintf("Проект %s автоматически помечен как %s по итогам голосования сообщества", projectName, status)
}

// ManualMessage: текст алерта при ручной смене статуса.
func ManualMessage(projectName string, status projects.Status) string {
	return fmt.Sprintf("Проект %s помечен модератором как %s", projectName, status)
}

// Created: полезная нагрузка события alert.created.
type Created struct {
	Alert       *Alert `json:"alert"`
	ProjectName string `json:"projectName"`
}
