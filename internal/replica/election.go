// election.go — leader election через блокировку в общем хранилище.
//
// Алгоритм:
//  1. Попытка захватить блокировку {base}/.leader.lock с ttl
//  2. Если блокировка получена — роль leader; адрес leader — host из документа блокировки
//  3. Если нет — роль follower, адрес leader читается из документа блокировки
//  4. Leader продлевает блокировку каждые ttl/3; неудачное продление — переход в follower
//  5. Follower с тем же интервалом пытается захватить блокировку (просроченная освобождается)
//
// В K8s с headless Service host = "ds-0:8020", "ds-1:8020" — резолвится через DNS.
package replica

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/lock"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
)

const (
	// LeaderLockName — имя документа блокировки leader в корне репозитория.
	LeaderLockName = ".leader.lock"
	// minInterval — нижняя граница интервала продления.
	minInterval = time.Second
)

// LeaderLockPath возвращает путь блокировки leader для корня репозитория.
func LeaderLockPath(base string) string {
	return storage.Join(base, LeaderLockName)
}

// Election — leader election через lock.Locker.
// Реализует интерфейс RoleProvider.
type Election struct {
	locker   *lock.Locker
	path     string
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger

	// Коллбэки при смене роли
	onBecomeLeader   func()
	onBecomeFollower func()

	// tickMu сериализует шаги election
	tickMu sync.Mutex

	mu         sync.RWMutex
	role       Role
	leaderAddr string
	// renewed — значение для следующего Renew (только у leader)
	renewed time.Time

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewElection создаёт экземпляр leader election.
//
// Параметры:
//   - locker: блокировки от имени текущего экземпляра (host = адрес экземпляра)
//   - path: путь документа блокировки (LeaderLockPath)
//   - ttl: время жизни блокировки без продления (DS_LOCK_TTL), > 0
//   - onBecomeLeader: вызывается при получении роли leader
//   - onBecomeFollower: вызывается при получении роли follower
//   - logger: логгер
func NewElection(
	locker *lock.Locker,
	path string,
	ttl time.Duration,
	onBecomeLeader func(),
	onBecomeFollower func(),
	logger *slog.Logger,
) (*Election, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl блокировки leader должен быть положительным: %s", ttl)
	}
	interval := max(ttl/3, minInterval)
	return &Election{
		locker:           locker,
		path:             path,
		ttl:              ttl,
		interval:         interval,
		onBecomeLeader:   onBecomeLeader,
		onBecomeFollower: onBecomeFollower,
		logger:           logger.With(slog.String("component", "election")),
		role:             RoleFollower,
		stopCh:           make(chan struct{}),
		done:             make(chan struct{}),
	}, nil
}

// Start определяет начальную роль и запускает фоновый цикл
// продления (leader) или захвата (follower).
func (e *Election) Start() error {
	if err := e.tick(); err != nil {
		close(e.done)
		return fmt.Errorf("ошибка при попытке захвата блокировки leader: %w", err)
	}
	go e.loop()
	return nil
}

// Stop останавливает election, освобождает блокировку, если она удерживается.
func (e *Election) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	<-e.done

	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	if e.IsLeader() {
		if err := e.locker.Release(e.path); err != nil {
			e.logger.Error("Ошибка освобождения блокировки leader",
				slog.String("error", err.Error()),
			)
			return
		}
		e.mu.Lock()
		e.role = RoleFollower
		e.leaderAddr = ""
		e.mu.Unlock()
		e.logger.Info("Блокировка leader освобождена")
	}
}

// CurrentRole возвращает текущую роль экземпляра.
func (e *Election) CurrentRole() Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.role
}

// IsLeader возвращает true, если экземпляр является leader.
func (e *Election) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.role == RoleLeader
}

// LeaderAddr возвращает адрес leader (host:port).
func (e *Election) LeaderAddr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leaderAddr
}

// loop — фоновая горутина: продление у leader, попытки захвата у follower.
func (e *Election) loop() {
	defer close(e.done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := e.tick(); err != nil {
				e.logger.Warn("Ошибка шага leader election",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// tick выполняет один шаг election.
// Ошибка возвращается только при недоступности хранилища.
func (e *Election) tick() error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	if e.IsLeader() {
		return e.renew()
	}
	return e.tryAcquire()
}

func (e *Election) renew() error {
	e.mu.RLock()
	expected := e.renewed
	e.mu.RUnlock()

	renewed, err := e.locker.Renew(e.path, expected)
	if err == nil {
		e.mu.Lock()
		e.renewed = renewed
		e.mu.Unlock()
		return nil
	}

	e.logger.Warn("Продление блокировки leader не удалось",
		slog.String("error", err.Error()),
	)
	e.becomeFollower()
	if errors.Is(err, model.ErrInvalidLockStatus) {
		return nil
	}
	return err
}

func (e *Election) tryAcquire() error {
	lockTime, err := e.locker.Acquire(e.path, e.ttl)
	if err == nil {
		e.becomeLeader(lockTime)
		return nil
	}

	var locked *model.AlreadyLockedError
	if !errors.As(err, &locked) {
		return err
	}
	e.mu.Lock()
	changed := e.leaderAddr != locked.Host
	e.leaderAddr = locked.Host
	e.mu.Unlock()
	if changed {
		e.logger.Info("Роль: FOLLOWER",
			slog.String("leader_addr", locked.Host),
		)
	}
	return nil
}

// becomeLeader переводит экземпляр в роль leader.
func (e *Election) becomeLeader(lockTime time.Time) {
	addr := e.locker.Host()

	e.mu.Lock()
	e.role = RoleLeader
	e.leaderAddr = addr
	e.renewed = lockTime
	e.mu.Unlock()

	e.logger.Info("Роль: LEADER",
		slog.String("addr", addr),
	)

	if e.onBecomeLeader != nil {
		e.onBecomeLeader()
	}
}

// becomeFollower переводит экземпляр в роль follower.
// Адрес нового leader определится на следующем шаге.
func (e *Election) becomeFollower() {
	e.mu.Lock()
	e.role = RoleFollower
	e.leaderAddr = ""
	e.mu.Unlock()

	e.logger.Info("Роль: FOLLOWER")

	if e.onBecomeFollower != nil {
		e.onBecomeFollower()
	}
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ RoleProvider = (*Election)(nil)
