package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation: входные данные не прошли проверку (отсутствует поле, неверный формат).
	ErrValidation = errors.New("validation failed")
	// ErrOutOfRange: числовое значение вне допустимого диапазона (отрицательная цена, сток, индекс).
	ErrOutOfRange = errors.New("value out of range")
	// ErrDuplicateKey: бизнес-ключ (code) уже занят активным товаром.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound: сущность не найдена по id, коду или смещению.
	ErrNotFound = errors.New("not found")
	// ErrCartNotEmpty: корзину нельзя удалить, пока в ней есть позиции.
	ErrCartNotEmpty = errors.New("cart is not empty")
	// ErrStorageCorruption: сохранённый документ не удаётся разобрать в валидное состояние.
	ErrStorageCorruption = errors.New("storage corrupted")
	// ErrStorageIO: документ не удалось прочитать или записать.
	ErrStorageIO = errors.New("storage io failure")
	// ErrStorageInUse: документ уже принадлежит другому экземпляру хранилища
	// или был изменён другим писателем.
	ErrStorageInUse = errors.New("storage already in use")
)

// FieldError описывает ошибку конкретного поля.
// Всегда сопоставляется с ErrValidation, а при Range=true ещё и с ErrOutOfRange.
type FieldError struct {
	Field  string
	Reason string
	Range  bool
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("parameter %q %s", e.Field, e.Reason)
}

// Is позволяет проверять FieldError через errors.Is.
func (e *FieldError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return true
	case ErrOutOfRange:
		return e.Range
	default:
		return false
	}
}

func missingField(field string) error {
	return &FieldError{Field: field, Reason: "is mandatory"}
}

func negativeField(field string) error {
	return &FieldError{Field: field, Reason: "must have a value equal or greater than 0 (zero)", Range: true}
}

// IsValidation проверяет, что ошибка исправима на стороне вызывающего.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound проверяет ошибку отсутствия сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateKey проверяет конфликт бизнес-ключа.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsStorage проверяет, что ошибка пришла из слоя хранения.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorageIO) ||
		errors.Is(err, ErrStorageCorruption) ||
		errors.Is(err, ErrStorageInUse)
}
