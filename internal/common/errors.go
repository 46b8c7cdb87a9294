// Package common: errors.go определяет типы ошибок, которые используются
// во всех модулях сервиса. Каждая конкретная ошибка оборачивает один из
// базовых видов (ErrForbidden, ErrNotFound, ...), поэтому обработчики
// проверяют вид через errors.Is и сами решают, какой HTTP-код отдать.
package common

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок
var (
	// ErrForbidden: у участника нет прав на операцию
	ErrForbidden = errors.New("недостаточно прав")
	// ErrNotFound: сущность не найдена
	ErrNotFound = errors.New("не найдено")
	// ErrConflict: операция противоречит текущему состоянию
	ErrConflict = errors.New("конфликт")
	// ErrValidation: некорректные входные данные
	ErrValidation = errors.New("некорректные данные")
	// ErrStorage: ошибка хранилища, изменения откачены
	ErrStorage = errors.New("ошибка хранилища")
)

// Ошибки голосования
var (
	// ErrCannotVote: роль участника не даёт права голоса
	ErrCannotVote = fmt.Errorf("%w: у вас нет права голоса", ErrForbidden)
	// ErrNotMonOrTrusted: отзыв по критериям доступен только MON или доверенным
	ErrNotMonOrTrusted = fmt.Errorf("%w: голосовать по критериям могут только MON или доверенные участники", ErrForbidden)
	// ErrVoteOnBehalf: голос за другого участника без статуса доверенного
	ErrVoteOnBehalf = fmt.Errorf("%w: голосовать за другого участника могут только доверенные", ErrForbidden)
	// ErrVoteNotFound: голос участника за проект не найден
	ErrVoteNotFound = fmt.Errorf("%w: голос не найден", ErrNotFound)
	// ErrSameVote: повторный голос того же типа
	ErrSameVote = fmt.Errorf("%w: вы уже проголосовали так же", ErrConflict)
	// ErrAlreadyVoted: участник уже голосовал за проект
	ErrAlreadyVoted = fmt.Errorf("%w: вы уже голосовали за этот проект", ErrConflict)
	// ErrInvalidVoteType: тип голоса не FOR/AGAINST
	ErrInvalidVoteType = fmt.Errorf("%w: тип голоса должен быть FOR или AGAINST", ErrValidation)
	// ErrInvalidVoteValue: значение не YES/NO
	ErrInvalidVoteValue = fmt.Errorf("%w: значение голоса должно быть YES или NO", ErrValidation)
	// ErrDuplicateCriteria: один критерий встречается в отзыве дважды
	ErrDuplicateCriteria = fmt.Errorf("%w: критерий указан несколько раз", ErrValidation)
	// ErrUnknownCriteria: критерий не существует
	ErrUnknownCriteria = fmt.Errorf("%w: неизвестный критерий", ErrValidation)
)

// Ошибки проектов и критериев
var (
	// ErrProjectNotFound: проект не найден
	ErrProjectNotFound = fmt.Errorf("%w: проект не найден", ErrNotFound)
	// ErrProjectExists: проект с таким именем или контрактом уже есть
	ErrProjectExists = fmt.Errorf("%w: проект с таким названием или контрактом уже существует", ErrConflict)
	// ErrInvalidStatus: неизвестный статус проекта
	ErrInvalidStatus = fmt.Errorf("%w: неизвестный статус проекта", ErrValidation)
	// ErrInvalidAddress: строка не является EVM-адресом
	ErrInvalidAddress = fmt.Errorf("%w: некорректный адрес", ErrValidation)
	// ErrCriteriaNotFound: критерий не найден
	ErrCriteriaNotFound = fmt.Errorf("%w: критерий не найден", ErrNotFound)
	// ErrCriteriaExists: критерий с таким названием уже есть
	ErrCriteriaExists = fmt.Errorf("%w: критерий с таким названием уже существует", ErrConflict)
	// ErrInvalidWeight: вес критерия вне диапазона [0.1, 10]
	ErrInvalidWeight = fmt.Errorf("%w: вес критерия должен быть от 0.1 до 10", ErrValidation)
)

// Ошибки участников и админки
var (
	// ErrUserNotFound: пользователь не найден в базе
	ErrUserNotFound = fmt.Errorf("%w: пользователь не найден", ErrNotFound)
	// ErrWalletTaken: кошелёк уже привязан к другому участнику
	ErrWalletTaken = fmt.Errorf("%w: кошелёк уже привязан к другому аккаунту", ErrConflict)
	// ErrInvalidRole: неизвестная роль
	ErrInvalidRole = fmt.Errorf("%w: неизвестная роль", ErrValidation)
	// ErrNotAdmin: нужны права администратора или доверенного участника
	ErrNotAdmin = fmt.Errorf("%w: нужны права администратора", ErrForbidden)
	// ErrWrongPassword: неверный пароль
	ErrWrongPassword = fmt.Errorf("%w: неверный пароль", ErrForbidden)
	// ErrTooManyAttempts: слишком много неудачных попыток входа
	ErrTooManyAttempts = fmt.Errorf("%w: слишком много попыток, подождите 1 час", ErrForbidden)
)

// StorageError оборачивает ошибку драйвера БД.
// errors.Is(err, ErrStorage) == true, исходная ошибка доступна через Unwrap.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError оборачивает err, если он ещё не обёрнут.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage.Error(), e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is позволяет сравнивать с ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Kind возвращает базовый вид ошибки или nil, если вид не определён.
func Kind(err error) error {
	for _, kind := range []error{ErrValidation, ErrForbidden, ErrNotFound, ErrConflict, ErrStorage} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
