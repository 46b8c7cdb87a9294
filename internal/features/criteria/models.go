// Package criteria: справочник критериев оценки проекта
// (качество кода, безопасность, признаки скама и т.д.).
// Вес критерия ограничен диапазоном [0.1, 10].
package criteria

import "time"

// Границы веса
const (
	MinWeight = 0.1
	MaxWeight = 10.0
)

// Criteria: критерий оценки.
type Criteria struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Weight      float64   `json:"weight"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Input: данные для создания или обновления. nil-поле не меняется.
type Input struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Weight      *float64 `json:"weight"`
}

// Defaults: набор критериев, которым заполняется пустой справочник.
var Defaults = []Criteria{
	{Name: "Code Quality", Description: "Качество кода: читаемость, поддерживаемость, документация.", Weight: 1.0},
	{Name: "Security", Description: "Практики безопасности, аудиты, потенциальные уязвимости.", Weight: 1.5},
	{Name: "Team Transparency", Description: "Открытость команды: кто стоит за проектом и как он общается.", Weight: 1.0},
	{Name: "Tokenomics", Description: "Экономика токена и модель распределения.", Weight: 1.0},
	{Name: "Community Engagement", Description: "Размер и активность сообщества, вовлечённость команды.", Weight: 0.8},
	{Name: "Innovation & Utility", Description: "Новизна и практическая польза проекта.", Weight: 1.2},
	{Name: "Scam Detection", Description: "Признаки скама или мошенничества.", Weight: 2.0},
	{Name: "Rug Pull Risk", Description: "Факторы риска rug pull.", Weight: 2.0},
}
