// Package common содержит общие утилиты, используемые во всём проекте:
// русская плюрализация, форматирование дат и адресов.
package common

import (
	"fmt"
	"time"
)

// PluralizeVotes возвращает правильную форму слова «голос» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "голос" (1, 21, 101)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → "голоса" (2, 3, 4, 22)
//   - Остальные случаи → "голосов" (0, 5-20, 100)
func PluralizeVotes(n int64) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "голос"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "голоса"
	}
	return "голосов"
}

// FormatVotes форматирует число голосов: FormatVotes(5) → "5 голосов".
func FormatVotes(n int64) string {
	return fmt.Sprintf("%d %s", n, PluralizeVotes(n))
}

// LoadLocation загружает часовой пояс, при ошибке возвращает UTC+3.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// FormatDateTime форматирует время как "02.01.2006 15:04" в указанном поясе.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

// ShortAddress сокращает адрес контракта: 0x1234…abcd.
func ShortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
