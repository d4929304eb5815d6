package repository

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/data-storage/internal/clock"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/metadata"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/filestore"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testClock() *clock.FakeClock {
	return clock.Fake(time.Date(2024, 3, 1, 10, 0, 0, 0, model.ReferenceZone()))
}

func newRepo(t *testing.T, s *memstore.MemStore, kind Kind, opts Options) *Repository {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	if opts.Clock == nil {
		opts.Clock = testClock()
	}
	repo, err := New(s, "wms", kind, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return repo
}

func md(keys ...string) model.Metadata {
	m := model.Metadata{}
	if len(keys) == 2 {
		m[model.FieldResourceGroup] = keys[0]
		m[model.FieldResourceID] = keys[1]
	} else {
		m[model.FieldResourceID] = keys[0]
	}
	return m
}

func TestPushAndContent(t *testing.T) {
	s := memstore.New()
	repo := newRepo(t, s, KindResource, Options{})

	stored, err := repo.Push([]byte("hello"), model.Metadata{model.FieldResourceID: "a.txt", "author": "ops"})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if stored.ResourcePath() != "wms/data/a.txt" {
		t.Errorf("resource_path: получено %q", stored.ResourcePath())
	}
	if stored.ResourceFile() != "a.txt" {
		t.Errorf("resource_file: получено %q", stored.ResourceFile())
	}
	if stored.PublishDate().IsZero() {
		t.Error("publish_date не заполнен")
	}

	got, text, err := repo.Text([]string{"a.txt"}, "")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "hello" || got.String("author") != "ops" {
		t.Errorf("получено %q %v", text, got)
	}

	// Повторная публикация неархивного ресурса заменяет метаданные
	if _, err := repo.Push([]byte("world"), md("a.txt")); err != nil {
		t.Fatal(err)
	}
	got, text, _ = repo.Text([]string{"a.txt"}, model.CurrentVersion)
	if text != "world" || got.String("author") != "" {
		t.Errorf("после замены: %q %v", text, got)
	}

	doc, err := metadata.ReadMetaDocument(s, "wms/meta_metadata.json")
	if err != nil {
		t.Fatalf("meta_metadata.json: %v", err)
	}
	if doc.Class != string(KindResource) || doc.Kwargs["metaname"] != "metadata" {
		t.Errorf("meta_metadata: %+v", doc)
	}
}

func TestPush_InvalidKeys(t *testing.T) {
	repo := newRepo(t, memstore.New(), KindGroupResource, Options{})
	if _, err := repo.Push([]byte("x"), md("a")); !errors.Is(err, model.ErrInvalidResource) {
		t.Errorf("ожидалась ErrInvalidResource, получено %v", err)
	}
}

func TestArchiveVersions(t *testing.T) {
	s := memstore.New()
	clk := testClock()
	repo := newRepo(t, s, KindGroupResource, Options{Archive: true, Clock: clk})

	first, err := repo.Push([]byte("v1"), md("2024", "tile.png"))
	if err != nil {
		t.Fatal(err)
	}
	if first.ResourceFile() != "tile_2024-03-01-10-00-00.png" {
		t.Errorf("resource_file: получено %q", first.ResourceFile())
	}
	if first.ResourcePath() != "wms/data/2024/tile_2024-03-01-10-00-00.png" {
		t.Errorf("resource_path: получено %q", first.ResourcePath())
	}

	// В ту же секунду — суффикс
	second, err := repo.Push([]byte("v2"), md("2024", "tile.png"))
	if err != nil {
		t.Fatal(err)
	}
	if second.ResourceFile() != "tile_2024-03-01-10-00-00_1.png" {
		t.Errorf("resource_file второй версии: %q", second.ResourceFile())
	}

	clk.Advance(time.Minute)
	if _, err := repo.Push([]byte("v3"), md("2024", "tile.png")); err != nil {
		t.Fatal(err)
	}

	rec, err := repo.Record([]string{"2024", "tile.png"}, model.StatusNormal)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Histories) != 2 || rec.Histories[0].ResourceFile() != second.ResourceFile() {
		t.Fatalf("история: %v", rec.Histories)
	}

	_, data, err := repo.Content([]string{"2024", "tile.png"}, first.ResourceFile())
	if err != nil || string(data) != "v1" {
		t.Errorf("старая версия: %q %v", data, err)
	}

	// Физическое удаление убирает payload всех версий
	if _, err := repo.Delete([]string{"2024", "tile.png"}, true); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		keys, _ := s.List("")
		t.Errorf("ожидался только meta_metadata.json, осталось %v", keys)
	}
}

func TestLogicalDeleteAndPurge(t *testing.T) {
	s := memstore.New()
	repo := newRepo(t, s, KindResource, Options{LogicalDelete: true})

	for _, id := range []string{"a", "b"} {
		if _, err := repo.Push([]byte(id), md(id)); err != nil {
			t.Fatal(err)
		}
	}
	deleted, err := repo.Delete([]string{"a"}, false)
	if err != nil || deleted == nil {
		t.Fatalf("Delete: %v %v", deleted, err)
	}
	// Повтор — нечего удалять
	if again, err := repo.Delete([]string{"a"}, false); err != nil || again != nil {
		t.Errorf("повторное удаление: %v %v", again, err)
	}

	if ok, _ := repo.Exists([]string{"a"}, model.StatusNormal); ok {
		t.Error("логически удалённый ресурс виден как обычный")
	}
	if ok, _ := repo.Exists([]string{"a"}, model.StatusDeleted); !ok {
		t.Error("логически удалённый ресурс не найден")
	}
	if _, err := s.GetBytes("wms/data/a"); err != nil {
		t.Errorf("payload логически удалённого ресурса должен остаться: %v", err)
	}

	purged, err := repo.Purge()
	if err != nil || len(purged) != 1 {
		t.Fatalf("Purge: %v %v", purged, err)
	}
	if _, err := s.GetBytes("wms/data/a"); !errors.Is(err, model.ErrResourceNotFound) {
		t.Error("payload должен быть удалён после очистки")
	}
	if ok, _ := repo.Exists([]string{"a"}, model.StatusAll); ok {
		t.Error("ресурс должен исчезнуть после очистки")
	}
}

func TestOpen(t *testing.T) {
	s := memstore.New()
	if _, err := Open(s, "wms", "", RuntimeOptions{}); !errors.Is(err, model.ErrMetaMetadataMissing) {
		t.Fatalf("ожидалась ErrMetaMetadataMissing, получено %v", err)
	}
	var missing *model.MetaMetadataMissingError
	_, err := Open(s, "wms", "", RuntimeOptions{})
	if !errors.As(err, &missing) || missing.Path != "wms/meta_metadata.json" {
		t.Errorf("ошибка: %v", err)
	}

	newRepo(t, s, KindIndexedGroupResource, Options{ShardFunc: "prefix:4", Archive: true, ResourceBasePath: "/layers/wms"})

	repo, err := Open(s, "wms", "/layers/wms", RuntimeOptions{Logger: testLogger()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if repo.Kind() != KindIndexedGroupResource || !repo.Archive() || repo.Base() != "layers/wms" {
		t.Errorf("восстановлено: %s archive=%v base=%s", repo.Kind(), repo.Archive(), repo.Base())
	}

	// OpenOrCreate не меняет существующий вариант
	again, err := OpenOrCreate(s, "wms", KindResource, Options{ResourceBasePath: "/layers/wms", Logger: testLogger()})
	if err != nil || again.Kind() != KindIndexedGroupResource {
		t.Errorf("OpenOrCreate: %v %v", again, err)
	}
}

func TestIndexedRequiresShardFunc(t *testing.T) {
	if _, err := New(memstore.New(), "wms", KindIndexedResource, Options{Logger: testLogger()}); err == nil {
		t.Error("ожидалась ошибка без функции шардирования")
	}
}

func TestHistoryRepository(t *testing.T) {
	s := memstore.New()
	repo := newRepo(t, s, KindHistoryData, Options{})

	for _, id := range []string{"2024_01_01", "2024_01_02", "2024_01_03"} {
		if _, err := repo.Push([]byte(id), md(id)); err != nil {
			t.Fatal(err)
		}
	}
	last, err := repo.LastResourceID()
	if err != nil || !slices.Equal(last, []string{"2024_01_03"}) {
		t.Errorf("LastResourceID: %v %v", last, err)
	}

	// Недопустимое добавление не пишет payload
	before := s.Len()
	if _, err := repo.Push([]byte("x"), md("2023_12_31")); !errors.Is(err, model.ErrInvalidResource) {
		t.Errorf("ожидалась ErrInvalidResource, получено %v", err)
	}
	if s.Len() != before {
		t.Error("payload записан несмотря на ошибку")
	}

	seq, err := repo.ResourcesInRange([]string{"2024_01_01"}, nil, false, false)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for rec := range seq {
		got = append(got, rec.Keys[0])
	}
	if !slices.Equal(got, []string{"2024_01_02", "2024_01_03"}) {
		t.Errorf("диапазон: %v", got)
	}

	plain := newRepo(t, memstore.New(), KindResource, Options{})
	if _, err := plain.LastResourceID(); !errors.Is(err, model.ErrOperationNotSupport) {
		t.Errorf("ожидалась ErrOperationNotSupport, получено %v", err)
	}
	if _, err := New(memstore.New(), "h", KindHistoryData, Options{Archive: true, Logger: testLogger()}); !errors.Is(err, model.ErrOperationNotSupport) {
		t.Errorf("archive для истории: ожидалась ErrOperationNotSupport, получено %v", err)
	}
}

type recordingJournal struct {
	begun, committed, rolledBack []string
}

func (j *recordingJournal) Begin(p string) (string, error) {
	j.begun = append(j.begun, p)
	return "tx-" + p, nil
}

func (j *recordingJournal) Commit(id string) error {
	j.committed = append(j.committed, id)
	return nil
}

func (j *recordingJournal) Rollback(id string) error {
	j.rolledBack = append(j.rolledBack, id)
	return nil
}

func TestPostPushFailure(t *testing.T) {
	s := memstore.New()
	j := &recordingJournal{}
	failing := errors.New("отказ")
	repo := newRepo(t, s, KindResource, Options{
		Journal: j,
		PostPush: func(md model.Metadata) error {
			if md.String(model.FieldResourceID) == "bad" {
				return failing
			}
			return nil
		},
	})

	if _, err := repo.Push([]byte("ok"), md("good")); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Push([]byte("x"), md("bad")); !errors.Is(err, failing) {
		t.Fatalf("ожидалась ошибка обработчика, получено %v", err)
	}
	if ok, _ := repo.Exists([]string{"bad"}, model.StatusAll); ok {
		t.Error("метаданные не должны обновляться при ошибке обработчика")
	}
	if len(j.committed) != 1 || len(j.rolledBack) != 1 || j.rolledBack[0] != "tx-wms/data/bad" {
		t.Errorf("журнал: %+v", j)
	}
}

func TestDownload(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	repo, err := New(store, "wms", KindGroupResource, Options{Logger: testLogger(), Clock: testClock()})
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range [][]string{{"g1", "a.txt"}, {"g1", "b.txt"}, {"g2", "c.txt"}} {
		if _, err := repo.Push([]byte(k[1]), md(k...)); err != nil {
			t.Fatal(err)
		}
	}

	_, tmp, err := repo.Download([]string{"g1", "a.txt"}, "", "", false)
	if err != nil {
		t.Fatalf("Download во временный файл: %v", err)
	}
	defer os.Remove(tmp)
	if data, _ := os.ReadFile(tmp); string(data) != "a.txt" {
		t.Errorf("содержимое: %q", data)
	}

	if _, _, err := repo.Download([]string{"g1", "a.txt"}, "", tmp, false); !errors.Is(err, model.ErrResourceAlreadyExist) {
		t.Errorf("ожидалась ErrResourceAlreadyExist, получено %v", err)
	}
	if _, _, err := repo.Download([]string{"g1", "a.txt"}, "", tmp, true); err != nil {
		t.Errorf("перезапись: %v", err)
	}

	folder := t.TempDir()
	all, err := repo.DownloadAll(folder, []string{"g1"}, model.StatusNormal, false)
	if err != nil || len(all) != 2 {
		t.Fatalf("DownloadAll: %d %v", len(all), err)
	}
	if data, _ := os.ReadFile(filepath.Join(folder, "g1", "b.txt")); string(data) != "b.txt" {
		t.Errorf("DownloadAll b.txt: %q", data)
	}

	refs, err := repo.References()
	if err != nil || len(refs) != 3 {
		t.Errorf("References: %v %v", refs, err)
	}

	removed, err := repo.DeleteAll([]string{"g1"}, false)
	if err != nil || len(removed) != 2 {
		t.Fatalf("DeleteAll: %v %v", removed, err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "wms", "data", "g1")); !os.IsNotExist(err) {
		t.Error("пустая директория группы должна быть удалена")
	}
}

func TestReshard(t *testing.T) {
	s := memstore.New()
	repo := newRepo(t, s, KindIndexedGroupResource, Options{ShardFunc: "identity"})
	for _, k := range [][]string{{"2024_01", "a"}, {"2024_02", "b"}, {"2025_01", "c"}} {
		if _, err := repo.Push([]byte(k[1]), md(k...)); err != nil {
			t.Fatal(err)
		}
	}

	next, err := Reshard(repo, "prefix:4")
	if err != nil {
		t.Fatalf("Reshard: %v", err)
	}
	if _, err := s.GetBytes("wms/2024_01.json"); !errors.Is(err, model.ErrResourceNotFound) {
		t.Error("старый шард должен быть удалён")
	}
	if _, err := s.GetBytes("wms/2024.json"); err != nil {
		t.Errorf("новый шард: %v", err)
	}

	reopened, err := Open(s, "wms", "", RuntimeOptions{Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if reopened.opts.ShardFunc != "prefix:4" {
		t.Errorf("meta_metadata не обновлён: %q", reopened.opts.ShardFunc)
	}
	for _, r := range []*Repository{next, reopened} {
		_, text, err := r.Text([]string{"2024_02", "b"}, "")
		if err != nil || text != "b" {
			t.Errorf("после перешардирования: %q %v", text, err)
		}
	}

	plain := newRepo(t, memstore.New(), KindResource, Options{})
	if _, err := Reshard(plain, "prefix:2"); !errors.Is(err, model.ErrOperationNotSupport) {
		t.Errorf("ожидалась ErrOperationNotSupport, получено %v", err)
	}
}

func TestReshardHistory(t *testing.T) {
	s := memstore.New()
	repo := newRepo(t, s, KindIndexedHistoryData, Options{ShardFunc: "prefix:7"})
	for _, id := range []string{"2024_01_01", "2024_02_01", "2025_01_01"} {
		if _, err := repo.Push([]byte(id), md(id)); err != nil {
			t.Fatal(err)
		}
	}
	next, err := Reshard(repo, "prefix:4")
	if err != nil {
		t.Fatal(err)
	}
	last, err := next.LastResourceID()
	if err != nil || !slices.Equal(last, []string{"2025_01_01"}) {
		t.Errorf("LastResourceID: %v %v", last, err)
	}
	if _, err := next.Push([]byte("x"), md("2024_12_31")); !errors.Is(err, model.ErrInvalidResource) {
		t.Errorf("ожидалась ErrInvalidResource, получено %v", err)
	}
}

// TestPush_PathEscape — ключи и resource_file не могут адресовать файлы вне data.
func TestPush_PathEscape(t *testing.T) {
	s := memstore.New()
	repo := newRepo(t, s, KindResource, Options{})
	if _, err := repo.Push([]byte("ok"), md("a.txt")); err != nil {
		t.Fatal(err)
	}
	before, err := s.GetBytes("wms/metadata.json")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		md   model.Metadata
	}{
		{"resource_id вверх", model.Metadata{model.FieldResourceID: "../metadata.json"}},
		{"resource_id с каталогом", model.Metadata{model.FieldResourceID: "x/y"}},
		{"resource_id точки", model.Metadata{model.FieldResourceID: ".."}},
		{"resource_file вверх", model.Metadata{model.FieldResourceID: "b", model.FieldResourceFile: "../meta_metadata.json"}},
		{"resource_file с каталогом", model.Metadata{model.FieldResourceID: "b", model.FieldResourceFile: "sub/b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.Push([]byte(`{"broken":`), tt.md); !errors.Is(err, model.ErrInvalidResource) {
				t.Errorf("ожидалась ErrInvalidResource, получено %v", err)
			}
		})
	}

	after, err := s.GetBytes("wms/metadata.json")
	if err != nil || string(after) != string(before) {
		t.Errorf("metadata.json изменён: %s (%v)", after, err)
	}
	if _, err := Open(s, "wms", "", RuntimeOptions{Logger: testLogger()}); err != nil {
		t.Errorf("репозиторий должен открываться: %v", err)
	}
	if keys, _ := s.List("wms/data"); len(keys) != 1 {
		t.Errorf("ожидался один payload, получено %v", keys)
	}
}

// TestArchive_ExplicitResourceFile — явный resource_file не перезаписывает существующую версию.
func TestArchive_ExplicitResourceFile(t *testing.T) {
	s := memstore.New()
	repo := newRepo(t, s, KindGroupResource, Options{Archive: true})

	first, err := repo.Push([]byte("v1"), model.Metadata{
		model.FieldResourceGroup: "2024", model.FieldResourceID: "tile.png", model.FieldResourceFile: "tile_v1.png",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Push([]byte("v2"), md("2024", "tile.png")); err != nil {
		t.Fatal(err)
	}

	_, err = repo.Push([]byte("v3"), model.Metadata{
		model.FieldResourceGroup: "2024", model.FieldResourceID: "tile.png", model.FieldResourceFile: first.ResourceFile(),
	})
	if !errors.Is(err, model.ErrResourceAlreadyExist) {
		t.Fatalf("ожидалась ErrResourceAlreadyExist, получено %v", err)
	}
	_, data, err := repo.Content([]string{"2024", "tile.png"}, first.ResourceFile())
	if err != nil || string(data) != "v1" {
		t.Errorf("payload старой версии изменён: %q %v", data, err)
	}

	// Без архива повторный resource_file допустим
	plain := newRepo(t, memstore.New(), KindResource, Options{})
	for range 2 {
		if _, err := plain.Push([]byte("x"), model.Metadata{model.FieldResourceID: "a", model.FieldResourceFile: "a.bin"}); err != nil {
			t.Fatalf("неархивный Push: %v", err)
		}
	}
}
