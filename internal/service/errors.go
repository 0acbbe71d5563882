// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт состояния ресурса.
	ErrConflict = errors.New("конфликт состояния ресурса")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrInvalidTransition — переход статуса заявки недопустим.
	ErrInvalidTransition = errors.New("недопустимый переход статуса")
	// ErrInvalidCredentials — неверное имя пользователя или пароль.
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
	// ErrInvalidToken — bearer-токен невалиден или просрочен.
	ErrInvalidToken = errors.New("невалидный или просроченный токен")
	// ErrTokenExhausted — не удалось подобрать свободный токен заявки.
	ErrTokenExhausted = errors.New("исчерпаны попытки генерации токена заявки")
)

// Причины ошибок валидации полей.
const (
	ReasonRequired = "required"
	ReasonInvalid  = "invalid"
	ReasonTooLong  = "too_long"
)

// FieldError — ошибка валидации конкретного поля.
// errors.Is(err, ErrValidation) возвращает true.
type FieldError struct {
	// Field — имя поля формы
	Field string
	// Reason — причина (required, invalid, too_long)
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: поле %s: %s", ErrValidation.Error(), e.Field, e.Reason)
}

// Unwrap позволяет сравнивать FieldError с ErrValidation.
func (e *FieldError) Unwrap() error {
	return ErrValidation
}

func fieldError(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}
