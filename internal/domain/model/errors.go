package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ошибки репозитория ресурсов. Проверяются через errors.Is.
var (
	ErrResourceNotFound      = errors.New("ресурс не найден")
	ErrResourceAlreadyExist  = errors.New("ресурс уже существует")
	ErrInvalidResource       = errors.New("некорректный ресурс")
	ErrOperationNotSupport   = errors.New("операция не поддерживается")
	ErrAlreadyLocked         = errors.New("блокировка уже захвачена")
	ErrInvalidLockStatus     = errors.New("некорректное состояние блокировки")
	ErrMetaMetadataMissing   = errors.New("отсутствует meta_metadata репозитория")
	ErrResourceConsumeFailed = errors.New("ошибка обработки ресурса")
	ErrInvalidConsumeStatus  = errors.New("некорректный статус обработки")
)

// AlreadyLockedError — блокировка удерживается другим владельцем.
type AlreadyLockedError struct {
	Path      string
	Host      string
	PID       int
	LockTime  time.Time
	RenewTime *time.Time
}

func (e *AlreadyLockedError) Error() string {
	msg := fmt.Sprintf("блокировка %s уже захвачена: host=%s, pid=%d, lock_time=%s",
		e.Path, e.Host, e.PID, e.LockTime.Format(DateTimeLayout))
	if e.RenewTime != nil {
		msg += ", renew_time=" + e.RenewTime.Format(DateTimeLayout)
	}
	return msg
}

func (e *AlreadyLockedError) Unwrap() error { return ErrAlreadyLocked }

// MetaMetadataMissingError — в корне репозитория нет meta_metadata.json.
type MetaMetadataMissingError struct {
	ResourceName string
	Path         string
}

func (e *MetaMetadataMissingError) Error() string {
	return fmt.Sprintf("отсутствует meta_metadata репозитория %s: %s", e.ResourceName, e.Path)
}

func (e *MetaMetadataMissingError) Unwrap() error { return ErrMetaMetadataMissing }

// ConsumeFailure — неудачная обработка одного ресурса.
type ConsumeFailure struct {
	Keys   []string
	Status string
	Err    error
}

// ConsumeFailedError — ошибка callback-а при обработке ресурсов.
// Соответствует и ErrResourceConsumeFailed, и исходным ошибкам callback-ов.
type ConsumeFailedError struct {
	Failures []ConsumeFailure
}

func (e *ConsumeFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s (%s): %v", KeyString(f.Keys), f.Status, f.Err))
	}
	return "ошибка обработки ресурсов: " + strings.Join(parts, "; ")
}

func (e *ConsumeFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrResourceConsumeFailed)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
