// Пакет repository — репозиторий ресурсов: payload в {base}/data,
// метаданные в дереве, шардированном дереве или журнале истории.
//
// Публикация: запись payload → PostPush → обновление метаданных.
// Метаданные обновляются чтением-изменением-записью документа,
// одновременные писатели из разных процессов теряют изменения друг друга
// (побеждает последний). Для межпроцессной согласованности вызывающая
// сторона оборачивает последовательность операций в lock.Locker.
package repository

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bigkaa/goartstore/data-storage/internal/clock"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/metadata"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
)

// archiveTimeLayout — формат метки времени в синтезированном resource_file.
const archiveTimeLayout = "2006-01-02-15-04-05"

// Repository — репозиторий ресурсов одного варианта.
type Repository struct {
	kind     Kind
	name     string
	storage  storage.Storage
	base     string
	dataPath string
	store    metadata.Store
	opts     Options
	clock    clock.Clock
	logger   *slog.Logger
}

// Kind возвращает тег варианта.
func (r *Repository) Kind() Kind { return r.kind }

// Name возвращает имя ресурса.
func (r *Repository) Name() string { return r.name }

// Base возвращает корень репозитория в хранилище.
func (r *Repository) Base() string { return r.base }

// DataPath возвращает корень payload ({base}/data).
func (r *Repository) DataPath() string { return r.dataPath }

// Storage возвращает хранилище.
func (r *Repository) Storage() storage.Storage { return r.storage }

// Store возвращает хранилище метаданных.
func (r *Repository) Store() metadata.Store { return r.store }

// KeySet возвращает набор ключевых полей.
func (r *Repository) KeySet() model.KeySet { return r.store.KeySet() }

// Archive сообщает, хранится ли история версий.
func (r *Repository) Archive() bool { return r.store.Archive() }

// LogicalDelete сообщает, включено ли логическое удаление.
func (r *Repository) LogicalDelete() bool { return r.store.LogicalDelete() }

// resourceFile синтезирует resource_file: для архивного репозитория
// {name}_{YYYY-MM-DD-HH-MM-SS}{ext} из последнего ключа, иначе сам последний ключ.
func (r *Repository) resourceFile(keys []string) (string, error) {
	last := keys[len(keys)-1]
	if !r.Archive() {
		return last, nil
	}
	ext := path.Ext(last)
	name := strings.TrimSuffix(last, ext)
	file := fmt.Sprintf("%s_%s%s", name, model.Normalize(r.clock.Now()).Format(archiveTimeLayout), ext)

	// две публикации в одну секунду не должны делить payload
	rec, err := r.store.Get(keys, model.StatusAll)
	if err != nil {
		if errors.Is(err, model.ErrResourceNotFound) {
			return file, nil
		}
		return "", err
	}
	candidate := file
	for i := 1; ; i++ {
		if _, taken := rec.Version(candidate); !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%s_%d%s", name, model.Normalize(r.clock.Now()).Format(archiveTimeLayout), i, ext)
	}
}

// checkResourceFile проверяет resource_file, заданный вызывающим.
// В архивном репозитории версия с тем же resource_file не перезаписывается:
// её payload принадлежит истории.
func (r *Repository) checkResourceFile(keys []string, file string) error {
	if err := model.CheckKeyValue(model.FieldResourceFile, file); err != nil {
		return err
	}
	if !r.Archive() {
		return nil
	}
	rec, err := r.store.Get(keys, model.StatusAll)
	if err != nil {
		if errors.Is(err, model.ErrResourceNotFound) {
			return nil
		}
		return err
	}
	for _, v := range rec.Versions() {
		if v.ResourceFile() == file {
			return fmt.Errorf("%w: версия %s ресурса %s", model.ErrResourceAlreadyExist, file, model.KeyString(keys))
		}
	}
	return nil
}

// ResourcePath возвращает путь payload: {data}/{ключи кроме последнего}/{resource_file}.
func (r *Repository) ResourcePath(keys []string, resourceFile string) string {
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, r.dataPath)
	parts = append(parts, keys[:len(keys)-1]...)
	parts = append(parts, resourceFile)
	return storage.Join(parts...)
}

// appendChecker реализуют журналы истории: проверка до записи payload.
type appendChecker interface {
	CheckAppend(id []string) error
}

// Push публикует payload с метаданными md и возвращает сохранённые метаданные.
// Недостающие resource_file, resource_path и publish_date заполняются.
func (r *Repository) Push(data []byte, md model.Metadata) (model.Metadata, error) {
	stored, err := r.push(data, md)
	observe("push", err)
	return stored, err
}

func (r *Repository) push(data []byte, md model.Metadata) (model.Metadata, error) {
	md = md.Clone()
	keys, err := md.Keys(r.KeySet())
	if err != nil {
		return nil, err
	}
	if ac, ok := r.store.(appendChecker); ok {
		if err := ac.CheckAppend(keys); err != nil {
			return nil, err
		}
	}

	file := md.ResourceFile()
	if file == "" {
		if file, err = r.resourceFile(keys); err != nil {
			return nil, err
		}
	} else if err := r.checkResourceFile(keys, file); err != nil {
		return nil, err
	}
	resourcePath := r.ResourcePath(keys, file)
	md[model.FieldResourceFile] = file
	md[model.FieldResourcePath] = resourcePath
	md[model.FieldPublishDate] = model.Normalize(r.clock.Now())
	delete(md, model.FieldDeleted)

	var txID string
	if r.opts.Journal != nil {
		if txID, err = r.opts.Journal.Begin(resourcePath); err != nil {
			return nil, fmt.Errorf("ошибка записи в журнал публикаций: %w", err)
		}
	}
	rollback := func(cause error) error {
		if txID != "" {
			if err := r.opts.Journal.Rollback(txID); err != nil {
				r.logger.Warn("Не удалось откатить запись журнала публикаций",
					slog.String("tx_id", txID),
					slog.String("error", err.Error()),
				)
			}
		}
		return cause
	}

	if err := r.storage.PutBytes(resourcePath, data, true); err != nil {
		return nil, rollback(fmt.Errorf("ошибка записи payload %s: %w", resourcePath, err))
	}
	payloadBytesTotal.Add(float64(len(data)))

	if r.opts.PostPush != nil {
		if err := r.opts.PostPush(md); err != nil {
			return nil, rollback(fmt.Errorf("ошибка обработчика после публикации %s: %w", model.KeyString(keys), err))
		}
	}

	rec, _, err := r.store.Put(md)
	if err != nil {
		return nil, rollback(err)
	}

	if txID != "" {
		if err := r.opts.Journal.Commit(txID); err != nil {
			r.logger.Warn("Не удалось завершить запись журнала публикаций",
				slog.String("tx_id", txID),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.Debug("Ресурс опубликован",
		slog.String("keys", model.KeyString(keys)),
		slog.String("resource_path", resourcePath),
		slog.Int("size", len(data)),
	)
	return rec.Current, nil
}

// PushJSON публикует v как JSON-документ.
func (r *Repository) PushJSON(v any, md model.Metadata) (model.Metadata, error) {
	data, err := model.MarshalDocument(v)
	if err != nil {
		return nil, err
	}
	return r.Push(data, md)
}

// PushFile публикует содержимое локального файла.
func (r *Repository) PushFile(localFile string, md model.Metadata) (model.Metadata, error) {
	data, err := os.ReadFile(localFile)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла %s: %w", localFile, err)
	}
	return r.Push(data, md)
}

// PushReader публикует содержимое потока.
func (r *Repository) PushReader(rd io.Reader, md model.Metadata) (model.Metadata, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения потока: %w", err)
	}
	return r.Push(data, md)
}

// Record возвращает лист метаданных целиком (текущая версия и история).
func (r *Repository) Record(keys []string, status model.StatusFilter) (*model.Record, error) {
	return r.store.Get(keys, status)
}

// Metadata возвращает метаданные версии: "" или "current" — текущая.
func (r *Repository) Metadata(keys []string, version string, status model.StatusFilter) (model.Metadata, error) {
	return metadata.Lookup(r.store, keys, version, status)
}

// Exists проверяет наличие ресурса с учётом фильтра статуса.
func (r *Repository) Exists(keys []string, status model.StatusFilter) (bool, error) {
	_, err := r.store.Get(keys, status)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, model.ErrResourceNotFound) {
		return false, nil
	}
	return false, err
}

// Content возвращает метаданные и payload версии неудалённого ресурса.
func (r *Repository) Content(keys []string, version string) (model.Metadata, []byte, error) {
	md, err := r.Metadata(keys, version, model.StatusNormal)
	if err != nil {
		return nil, nil, err
	}
	data, err := r.storage.GetBytes(md.ResourcePath())
	observe("get", err)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка чтения payload %s: %w", md.ResourcePath(), err)
	}
	return md, data, nil
}

// Text возвращает payload как строку.
func (r *Repository) Text(keys []string, version string) (model.Metadata, string, error) {
	md, data, err := r.Content(keys, version)
	if err != nil {
		return nil, "", err
	}
	return md, string(data), nil
}

// JSON возвращает payload как JSON-документ с восстановленными датами.
func (r *Repository) JSON(keys []string, version string) (model.Metadata, any, error) {
	md, data, err := r.Content(keys, version)
	if err != nil {
		return nil, nil, err
	}
	doc, err := model.UnmarshalDocument(bytes.TrimSpace(data))
	if err != nil {
		return nil, nil, err
	}
	return md, doc, nil
}

// Download сохраняет payload версии в localFile. Пустой localFile — временный файл.
// Существующий файл без overwrite — model.ErrResourceAlreadyExist.
// Возвращает метаданные и путь к локальному файлу.
func (r *Repository) Download(keys []string, version, localFile string, overwrite bool) (model.Metadata, string, error) {
	md, err := r.Metadata(keys, version, model.StatusNormal)
	if err != nil {
		return nil, "", err
	}
	localFile, err = r.download(md, localFile, overwrite)
	observe("download", err)
	if err != nil {
		return nil, "", err
	}
	return md, localFile, nil
}

// DownloadMetadata сохраняет payload версии md без проверки статуса ресурса.
func (r *Repository) DownloadMetadata(md model.Metadata, localFile string, overwrite bool) (string, error) {
	localFile, err := r.download(md, localFile, overwrite)
	observe("download", err)
	return localFile, err
}

func (r *Repository) download(md model.Metadata, localFile string, overwrite bool) (string, error) {
	temporary := localFile == ""
	if temporary {
		f, err := os.CreateTemp("", "ds-"+path.Base(md.ResourceFile())+"-*")
		if err != nil {
			return "", fmt.Errorf("ошибка создания временного файла: %w", err)
		}
		localFile = f.Name()
		f.Close()
	} else if !overwrite {
		if _, err := os.Stat(localFile); err == nil {
			return "", fmt.Errorf("%w: локальный файл %s", model.ErrResourceAlreadyExist, localFile)
		}
	}
	if err := r.storage.Download(md.ResourcePath(), localFile); err != nil {
		if temporary {
			os.Remove(localFile)
		}
		return "", fmt.Errorf("ошибка загрузки payload %s: %w", md.ResourcePath(), err)
	}
	return localFile, nil
}

// DownloadAll сохраняет текущие версии ресурсов с префиксом ключей в folder,
// повторяя относительные пути внутри {base}/data.
func (r *Repository) DownloadAll(folder string, prefix []string, status model.StatusFilter, overwrite bool) ([]model.Metadata, error) {
	seq, err := r.store.Iterate(prefix, status, false)
	if err != nil {
		return nil, err
	}
	var out []model.Metadata
	for rec := range seq {
		rel := strings.TrimPrefix(strings.TrimPrefix(rec.Current.ResourcePath(), r.dataPath), "/")
		dest := filepath.Join(folder, filepath.FromSlash(rel))
		if _, err := r.download(rec.Current, dest, overwrite); err != nil {
			return out, err
		}
		out = append(out, rec.Current)
	}
	return out, nil
}

// Resources обходит ресурсы с префиксом ключей.
func (r *Repository) Resources(prefix []string, status model.StatusFilter) (iter.Seq[*model.Record], error) {
	return r.store.Iterate(prefix, status, false)
}

// Delete удаляет ресурс и возвращает его текущие метаданные или nil, если удалять нечего.
// Логическое удаление только помечает ресурс; физическое удаляет payload всех версий.
func (r *Repository) Delete(keys []string, permanent bool) (model.Metadata, error) {
	md, err := r.delete(keys, permanent)
	observe("delete", err)
	return md, err
}

func (r *Repository) delete(keys []string, permanent bool) (model.Metadata, error) {
	status := model.StatusNormal
	if permanent {
		status = model.StatusAll
	}
	rec, err := r.store.Get(keys, status)
	if err != nil {
		if errors.Is(err, model.ErrResourceNotFound) {
			return nil, nil
		}
		return nil, err
	}

	removed, err := r.store.Remove(keys, permanent)
	if err != nil || removed == nil {
		return nil, err
	}
	if r.LogicalDelete() && !permanent {
		return removed.Current, nil
	}

	r.deletePayloads(rec)
	return rec.Current, nil
}

// deletePayloads удаляет payload всех версий. Ошибки только логируются.
func (r *Repository) deletePayloads(rec *model.Record) {
	for _, v := range rec.Versions() {
		p := v.ResourcePath()
		if p == "" {
			continue
		}
		if err := r.storage.Delete(p); err != nil {
			r.logger.Error("Не удалось удалить payload",
				slog.String("keys", model.KeyString(rec.Keys)),
				slog.String("resource_path", p),
				slog.String("error", err.Error()),
			)
		}
	}
}

// DeleteAll удаляет все ресурсы с префиксом ключей и возвращает их метаданные.
func (r *Repository) DeleteAll(prefix []string, permanent bool) ([]model.Metadata, error) {
	status := model.StatusNormal
	if permanent {
		status = model.StatusAll
	}
	seq, err := r.store.Iterate(prefix, status, false)
	if err != nil {
		return nil, err
	}
	// ключи собираются заранее: удаление меняет документ
	var keys [][]string
	for rec := range seq {
		keys = append(keys, rec.Keys)
	}

	var out []model.Metadata
	for _, k := range keys {
		md, err := r.Delete(k, permanent)
		if err != nil {
			return out, err
		}
		if md != nil {
			out = append(out, md)
		}
	}
	return out, nil
}

// Purge физически удаляет все логически удалённые ресурсы.
// Без логического удаления ничего не делает.
func (r *Repository) Purge() ([]model.Metadata, error) {
	if !r.LogicalDelete() {
		return nil, nil
	}
	seq, err := r.store.Iterate(nil, model.StatusDeleted, false)
	if err != nil {
		return nil, err
	}
	var keys [][]string
	for rec := range seq {
		keys = append(keys, rec.Keys)
	}

	var purged []model.Metadata
	for _, k := range keys {
		md, err := r.Delete(k, true)
		if err != nil {
			return purged, err
		}
		if md != nil {
			purged = append(purged, md)
		}
	}
	if len(purged) > 0 {
		r.logger.Info("Логически удалённые ресурсы очищены", slog.Int("count", len(purged)))
	}
	return purged, nil
}

// References возвращает множество путей payload всех версий всех ресурсов.
func (r *Repository) References() (map[string]struct{}, error) {
	seq, err := r.store.Iterate(nil, model.StatusAll, false)
	if err != nil {
		return nil, err
	}
	refs := make(map[string]struct{})
	for rec := range seq {
		for _, v := range rec.Versions() {
			if p := v.ResourcePath(); p != "" {
				refs[p] = struct{}{}
			}
		}
	}
	return refs, nil
}
