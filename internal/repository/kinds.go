package repository

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bigkaa/goartstore/data-storage/internal/clock"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/history"
	"github.com/bigkaa/goartstore/data-storage/internal/metadata"
	"github.com/bigkaa/goartstore/data-storage/internal/storage"
)

// Kind — тег варианта репозитория, записываемый в meta_metadata.json.
type Kind string

const (
	KindResource                Kind = "ResourceRepository"
	KindGroupResource           Kind = "GroupResourceRepository"
	KindIndexedResource         Kind = "IndexedResourceRepository"
	KindIndexedGroupResource    Kind = "IndexedGroupResourceRepository"
	KindHistoryData             Kind = "HistoryDataRepository"
	KindGroupHistoryData        Kind = "GroupHistoryDataRepository"
	KindIndexedHistoryData      Kind = "IndexedHistoryDataRepository"
	KindIndexedGroupHistoryData Kind = "IndexedGroupHistoryDataRepository"
)

// variant — форма репозитория: набор ключей, шардирование, журнал истории.
type variant struct {
	keys    model.KeySet
	indexed bool
	history bool
}

var variants = map[Kind]variant{
	KindResource:                {keys: model.BasicKeys},
	KindGroupResource:           {keys: model.GroupKeys},
	KindIndexedResource:         {keys: model.BasicKeys, indexed: true},
	KindIndexedGroupResource:    {keys: model.GroupKeys, indexed: true},
	KindHistoryData:             {keys: model.BasicKeys, history: true},
	KindGroupHistoryData:        {keys: model.GroupKeys, history: true},
	KindIndexedHistoryData:      {keys: model.BasicKeys, indexed: true, history: true},
	KindIndexedGroupHistoryData: {keys: model.GroupKeys, indexed: true, history: true},
}

// Kinds возвращает все известные теги вариантов.
func Kinds() []Kind {
	return []Kind{
		KindResource, KindGroupResource, KindIndexedResource, KindIndexedGroupResource,
		KindHistoryData, KindGroupHistoryData, KindIndexedHistoryData, KindIndexedGroupHistoryData,
	}
}

// ParseKind разбирает тег варианта.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := variants[k]; !ok {
		return "", fmt.Errorf("неизвестный вариант репозитория %q", s)
	}
	return k, nil
}

// Indexed сообщает, шардированы ли метаданные варианта.
func (k Kind) Indexed() bool { return variants[k].indexed }

// History сообщает, является ли вариант журналом истории.
func (k Kind) History() bool { return variants[k].history }

// KeySet возвращает набор ключей варианта.
func (k Kind) KeySet() model.KeySet { return variants[k].keys }

// Journal — журнал публикаций: незавершённая запись payload откатывается при рестарте.
type Journal interface {
	Begin(resourcePath string) (txID string, err error)
	Commit(txID string) error
	Rollback(txID string) error
}

// Options — параметры репозитория.
// Поля до Clock записываются в meta_metadata.json (в зависимости от варианта).
type Options struct {
	// ResourceBasePath — корень репозитория в хранилище (по умолчанию — имя ресурса)
	ResourceBasePath string
	// Metaname — имя документа метаданных (нешардированные варианты)
	Metaname string
	// IndexMetaname — имя документа индекса шардов (шардированные варианты)
	IndexMetaname string
	// ShardFunc — имя функции шардирования (шардированные варианты)
	ShardFunc     string
	Archive       bool
	LogicalDelete bool

	Clock clock.Clock
	// Earliest — граница автоочистки (шардированные журналы истории)
	Earliest history.EarliestFunc
	// PostPush вызывается после записи payload и до обновления метаданных
	PostPush func(md model.Metadata) error
	Journal  Journal
	Logger   *slog.Logger
}

// kwargs возвращает параметры варианта для meta_metadata.json.
func (o Options) kwargs(v variant) map[string]any {
	kw := map[string]any{"resource_base_path": o.ResourceBasePath}
	if v.indexed {
		kw["index_metaname"] = o.IndexMetaname
		kw["f_metaname"] = o.ShardFunc
	} else {
		kw["metaname"] = o.Metaname
	}
	if !v.history {
		kw["archive"] = o.Archive
		kw["logical_delete"] = o.LogicalDelete
	}
	return kw
}

// optionsFromKwargs восстанавливает Options из meta_metadata.json.
func optionsFromKwargs(kw map[string]any) Options {
	str := func(k string) string {
		s, _ := kw[k].(string)
		return s
	}
	flag := func(k string) bool {
		b, _ := kw[k].(bool)
		return b
	}
	return Options{
		ResourceBasePath: str("resource_base_path"),
		Metaname:         str("metaname"),
		IndexMetaname:    str("index_metaname"),
		ShardFunc:        str("f_metaname"),
		Archive:          flag("archive"),
		LogicalDelete:    flag("logical_delete"),
	}
}

// BasePath возвращает корень репозитория без ведущего "/".
// Пустой resourceBasePath означает имя ресурса.
func BasePath(name, resourceBasePath string) string {
	if resourceBasePath == "" {
		resourceBasePath = name
	}
	return strings.TrimLeft(resourceBasePath, "/")
}

// New создаёт репозиторий варианта kind и записывает meta_metadata.json,
// если его содержимое отличается.
func New(s storage.Storage, name string, kind Kind, opts Options) (*Repository, error) {
	v, ok := variants[kind]
	if !ok {
		return nil, fmt.Errorf("неизвестный вариант репозитория %q", kind)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Clock = clock.OrReal(opts.Clock)
	if v.indexed {
		if opts.IndexMetaname == "" {
			opts.IndexMetaname = metadata.DefaultIndexMetaname
		}
		if opts.ShardFunc == "" {
			return nil, fmt.Errorf("для варианта %s требуется функция шардирования", kind)
		}
	} else if opts.Metaname == "" {
		opts.Metaname = metadata.DefaultMetaname
	}

	base := BasePath(name, opts.ResourceBasePath)
	recorder := metadata.NewMetaRecorder(s, storage.Join(base, metadata.MetaMetadataName), metadata.MetaDocument{
		Class:  string(kind),
		Kwargs: opts.kwargs(v),
	})

	store, err := buildStore(s, base, v, opts, recorder)
	if err != nil {
		return nil, err
	}
	if err := recorder.Ensure(); err != nil {
		return nil, err
	}

	return &Repository{
		kind:     kind,
		name:     name,
		storage:  s,
		base:     base,
		dataPath: storage.Join(base, "data"),
		store:    store,
		opts:     opts,
		clock:    opts.Clock,
		logger: opts.Logger.With(
			slog.String("component", "repository"),
			slog.String("resource", name),
		),
	}, nil
}

func buildStore(s storage.Storage, base string, v variant, opts Options, recorder *metadata.MetaRecorder) (metadata.Store, error) {
	switch {
	case v.history && v.indexed:
		return history.NewShardedLog(s, base, v.keys, history.ShardedLogOptions{
			IndexMetaname: opts.IndexMetaname,
			ShardFunc:     opts.ShardFunc,
			Earliest:      opts.Earliest,
			Archive:       opts.Archive,
			LogicalDelete: opts.LogicalDelete,
			Recorder:      recorder,
			Logger:        opts.Logger,
		})
	case v.history:
		return history.NewLog(s, metadata.DocumentPath(base, opts.Metaname), v.keys, history.LogOptions{
			Archive:       opts.Archive,
			LogicalDelete: opts.LogicalDelete,
			Recorder:      recorder,
			Logger:        opts.Logger,
		})
	case v.indexed:
		return metadata.NewShardedTree(s, base, v.keys, metadata.ShardedOptions{
			IndexMetaname: opts.IndexMetaname,
			ShardFunc:     opts.ShardFunc,
			Archive:       opts.Archive,
			LogicalDelete: opts.LogicalDelete,
			Recorder:      recorder,
			Logger:        opts.Logger,
		})
	default:
		return metadata.NewTree(s, metadata.DocumentPath(base, opts.Metaname), v.keys, metadata.TreeOptions{
			Archive:       opts.Archive,
			LogicalDelete: opts.LogicalDelete,
			Recorder:      recorder,
			Logger:        opts.Logger,
		})
	}
}

// RuntimeOptions — параметры открытия, не хранящиеся в meta_metadata.json.
type RuntimeOptions struct {
	Clock    clock.Clock
	Earliest history.EarliestFunc
	PostPush func(md model.Metadata) error
	Journal  Journal
	Logger   *slog.Logger
}

// Open читает {base}/meta_metadata.json и восстанавливает репозиторий нужного варианта.
// base == "" означает имя ресурса. Отсутствие документа — *model.MetaMetadataMissingError.
func Open(s storage.Storage, name, base string, rt RuntimeOptions) (*Repository, error) {
	base = BasePath(name, base)
	path := storage.Join(base, metadata.MetaMetadataName)

	doc, err := metadata.ReadMetaDocument(s, path)
	if err != nil {
		if errors.Is(err, model.ErrResourceNotFound) {
			return nil, &model.MetaMetadataMissingError{ResourceName: name, Path: path}
		}
		return nil, err
	}
	kind, err := ParseKind(doc.Class)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}

	opts := optionsFromKwargs(doc.Kwargs)
	if opts.ResourceBasePath == "" && base != BasePath(name, "") {
		opts.ResourceBasePath = base
	}
	opts.Clock = rt.Clock
	opts.Earliest = rt.Earliest
	opts.PostPush = rt.PostPush
	opts.Journal = rt.Journal
	opts.Logger = rt.Logger
	return New(s, name, kind, opts)
}

// OpenOrCreate открывает репозиторий, а при отсутствии meta_metadata.json
// создаёт его с вариантом kind и параметрами opts.
func OpenOrCreate(s storage.Storage, name string, kind Kind, opts Options) (*Repository, error) {
	repo, err := Open(s, name, opts.ResourceBasePath, RuntimeOptions{
		Clock:    opts.Clock,
		Earliest: opts.Earliest,
		PostPush: opts.PostPush,
		Journal:  opts.Journal,
		Logger:   opts.Logger,
	})
	if errors.Is(err, model.ErrMetaMetadataMissing) {
		return New(s, name, kind, opts)
	}
	return repo, err
}
