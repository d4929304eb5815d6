// Пакет lock — оптимистичная аренда (lease) поверх Storage.
//
// Блокировка — JSON-документ по заданному пути:
//
//	{"host": "ds-0", "pid": 42, "lock_time": {...}, "renew_time": {...}}
//
// Захват — атомарная запись create-if-absent. Просроченная блокировка
// (прошло больше ttl с renew_time или lock_time) удаляется, запись
// повторяется один раз. Фоновых горутин пакет не запускает:
// продление — ответственность владельца.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/goartstore/data-storage/internal/clock"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
)

// Record — документ блокировки.
type Record struct {
	Host      string          `json:"host"`
	PID       int             `json:"pid"`
	LockTime  model.DateTime  `json:"lock_time"`
	RenewTime *model.DateTime `json:"renew_time,omitempty"`
}

// Touched возвращает время последнего подтверждения владения.
func (r *Record) Touched() time.Time {
	if r.RenewTime != nil {
		return r.RenewTime.Time
	}
	return r.LockTime.Time
}

func (r *Record) lockedError(path string) error {
	e := &model.AlreadyLockedError{Path: path, Host: r.Host, PID: r.PID, LockTime: r.LockTime.Time}
	if r.RenewTime != nil {
		t := r.RenewTime.Time
		e.RenewTime = &t
	}
	return e
}

// Locker захватывает, продлевает и освобождает блокировки от имени host/pid.
type Locker struct {
	storage storage.Storage
	clock   clock.Clock
	host    string
	pid     int
	logger  *slog.Logger
}

// New создаёт Locker. Nil clock — системные часы, nil logger — slog.Default().
func New(s storage.Storage, c clock.Clock, host string, pid int, logger *slog.Logger) *Locker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{
		storage: s,
		clock:   clock.OrReal(c),
		host:    host,
		pid:     pid,
		logger:  logger.With(slog.String("component", "lock")),
	}
}

// Host возвращает имя хоста владельца.
func (l *Locker) Host() string { return l.host }

// PID возвращает идентификатор процесса владельца.
func (l *Locker) PID() int { return l.pid }

// Acquire захватывает блокировку path и возвращает время захвата —
// значение для первого вызова Renew.
// ttl == 0 — блокировка не истекает.
// Занятая блокировка — *model.AlreadyLockedError.
func (l *Locker) Acquire(path string, ttl time.Duration) (time.Time, error) {
	t, err := l.acquire(path, ttl)
	observe("acquire", err)
	return t, err
}

func (l *Locker) acquire(path string, ttl time.Duration) (time.Time, error) {
	now := model.Normalize(l.clock.Now())
	data, err := json.Marshal(Record{Host: l.host, PID: l.pid, LockTime: model.DateTime{Time: now}})
	if err != nil {
		return time.Time{}, fmt.Errorf("ошибка сериализации блокировки: %w", err)
	}

	for attempt := 0; ; attempt++ {
		err := l.storage.PutBytes(path, data, false)
		if err == nil {
			l.logger.Debug("Блокировка захвачена",
				slog.String("path", path),
				slog.Duration("ttl", ttl),
			)
			return now, nil
		}
		if !errors.Is(err, model.ErrResourceAlreadyExist) {
			return time.Time{}, fmt.Errorf("ошибка записи блокировки %s: %w", path, err)
		}

		holder, err := l.Read(path)
		if errors.Is(err, model.ErrResourceNotFound) && attempt == 0 {
			// освобождена между попытками
			continue
		}
		if err != nil {
			return time.Time{}, err
		}
		if attempt > 0 || ttl <= 0 || now.Sub(holder.Touched()) <= ttl {
			return time.Time{}, holder.lockedError(path)
		}

		l.logger.Warn("Просроченная блокировка удалена",
			slog.String("path", path),
			slog.String("holder_host", holder.Host),
			slog.Int("holder_pid", holder.PID),
			slog.Time("touched", holder.Touched()),
		)
		if err := l.storage.Delete(path); err != nil {
			return time.Time{}, fmt.Errorf("ошибка удаления просроченной блокировки %s: %w", path, err)
		}
	}
}

// Read читает документ блокировки.
// Отсутствующая блокировка — ошибка model.ErrResourceNotFound.
func (l *Locker) Read(path string) (*Record, error) {
	data, err := l.storage.GetBytes(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения блокировки %s: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: повреждённый документ блокировки %s: %v", model.ErrInvalidLockStatus, path, err)
	}
	return &rec, nil
}

// Renew продлевает блокировку. expected — значение, полученное от
// Acquire или предыдущего Renew; при несовпадении с документом
// возвращается model.ErrInvalidLockStatus. Возвращает новое renew_time.
func (l *Locker) Renew(path string, expected time.Time) (time.Time, error) {
	t, err := l.renew(path, expected)
	observe("renew", err)
	return t, err
}

func (l *Locker) renew(path string, expected time.Time) (time.Time, error) {
	rec, err := l.Read(path)
	if errors.Is(err, model.ErrResourceNotFound) {
		return time.Time{}, fmt.Errorf("%w: блокировка %s отсутствует", model.ErrInvalidLockStatus, path)
	}
	if err != nil {
		return time.Time{}, err
	}
	if !rec.Touched().Equal(model.Normalize(expected)) {
		return time.Time{}, fmt.Errorf("%w: блокировка %s подтверждена в %s, ожидалось %s",
			model.ErrInvalidLockStatus, path,
			rec.Touched().Format(model.DateTimeLayout),
			model.Normalize(expected).Format(model.DateTimeLayout))
	}

	now := model.Normalize(l.clock.Now())
	if !now.After(rec.Touched()) {
		// renew_time строго возрастает
		now = rec.Touched().Add(time.Microsecond)
	}
	rec.RenewTime = &model.DateTime{Time: now}
	data, err := json.Marshal(rec)
	if err != nil {
		return time.Time{}, fmt.Errorf("ошибка сериализации блокировки: %w", err)
	}
	if err := l.storage.PutBytes(path, data, true); err != nil {
		return time.Time{}, fmt.Errorf("ошибка продления блокировки %s: %w", path, err)
	}
	return now, nil
}

// Release освобождает блокировку. Отсутствие блокировки не является ошибкой.
func (l *Locker) Release(path string) error {
	err := l.storage.Delete(path)
	if err != nil && !errors.Is(err, model.ErrResourceNotFound) {
		err = fmt.Errorf("ошибка освобождения блокировки %s: %w", path, err)
	} else {
		err = nil
		l.logger.Debug("Блокировка освобождена", slog.String("path", path))
	}
	observe("release", err)
	return err
}
