// Package httpapi содержит общие HTTP-утилиты: конверт ответа {code, message, data},
// перевод видов ошибок в HTTP-коды и мидлвари аутентификации.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/common"
)

// Максимальный размер тела запроса
const maxBodyBytes = 1 << 20

// Envelope: единый формат ответа.
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// JSON пишет ответ со статусом status.
func JSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.WithError(err).Warn("Ошибка записи ответа")
	}
}

// OK: успешный ответ с данными.
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, Envelope{Code: 0, Message: "success", Data: data})
}

// Created: 201 с сообщением.
func Created(w http.ResponseWriter, message string, data interface{}) {
	JSON(w, http.StatusCreated, Envelope{Code: 0, Message: message, Data: data})
}

// Message: 200 с сообщением.
func Message(w http.ResponseWriter, message string, data interface{}) {
	JSON(w, http.StatusOK, Envelope{Code: 0, Message: message, Data: data})
}

// Unauthorized: 401.
func Unauthorized(w http.ResponseWriter, code int, message string) {
	JSON(w, http.StatusUnauthorized, Envelope{Code: code, Message: message})
}

// Error переводит ошибку сервиса в HTTP-ответ.
// Ошибки хранилища и неизвестные ошибки наружу не раскрываются.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Ошибка обработки запроса")
		message = "внутренняя ошибка сервера"
	}
	JSON(w, status, Envelope{Code: code, Message: message})
}

// StatusFor возвращает HTTP-статус и код конверта для ошибки.
func StatusFor(err error) (int, int) {
	switch common.Kind(err) {
	case common.ErrValidation:
		return http.StatusBadRequest, 40001
	case common.ErrForbidden:
		return http.StatusForbidden, 40301
	case common.ErrNotFound:
		return http.StatusNotFound, 40401
	case common.ErrConflict:
		return http.StatusConflict, 40901
	default:
		return http.StatusInternalServerError, 50001
	}
}

// Decode читает JSON-тело запроса в dst.
// Ошибки разбора возвращаются как ErrValidation.
func Decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: пустое тело запроса", common.ErrValidation)
		}
		return fmt.Errorf("%w: некорректный JSON: %v", common.ErrValidation, err)
	}
	return nil
}
