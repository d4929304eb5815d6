// delete.go — сервис удаления ресурсов.
package service

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/repository"
)

// DeleteService — удаление ресурсов под общим мьютексом изменений.
type DeleteService struct {
	repo    *repository.Repository
	writeMu *sync.Mutex
	logger  *slog.Logger
}

// NewDeleteService создаёт сервис удаления.
func NewDeleteService(repo *repository.Repository, writeMu *sync.Mutex, logger *slog.Logger) *DeleteService {
	return &DeleteService{
		repo:    repo,
		writeMu: writeMu,
		logger:  logger.With(slog.String("component", "delete_service")),
	}
}

// Delete удаляет ресурс с ключами keys.
// Неполный набор ключей трактуется как префикс: удаляются все ресурсы под ним.
// permanent == false при включённом логическом удалении только помечает ресурсы.
// Возвращает метаданные удалённых ресурсов (пустой список — удалять было нечего).
func (s *DeleteService) Delete(keys []string, permanent bool) ([]model.Metadata, error) {
	if len(keys) == 0 || len(keys) > len(s.repo.KeySet()) {
		return nil, fmt.Errorf("%w: ожидалось от 1 до %d ключей, получено %d",
			model.ErrInvalidResource, len(s.repo.KeySet()), len(keys))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var (
		deleted []model.Metadata
		err     error
	)
	if len(keys) == len(s.repo.KeySet()) {
		var md model.Metadata
		if md, err = s.repo.Delete(keys, permanent); md != nil {
			deleted = append(deleted, md)
		}
	} else {
		deleted, err = s.repo.DeleteAll(keys, permanent)
	}
	if err != nil {
		return deleted, err
	}

	if len(deleted) > 0 {
		s.logger.Info("Ресурсы удалены",
			slog.String("keys", model.KeyString(keys)),
			slog.Int("count", len(deleted)),
			slog.Bool("permanent", permanent),
		)
	}
	return deleted, nil
}
