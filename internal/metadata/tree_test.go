package metadata

import (
	"errors"
	"log/slog"
	"os"
	"slices"
	"testing"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTree(t *testing.T, s *memstore.MemStore, keys model.KeySet, archive, logicalDelete bool) *Tree {
	t.Helper()
	tree, err := NewTree(s, DocumentPath("repo", DefaultMetaname), keys, TreeOptions{
		Archive:       archive,
		LogicalDelete: logicalDelete,
		Logger:        testLogger(),
	})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	return tree
}

func groupMD(group, id, file string) model.Metadata {
	return model.Metadata{
		model.FieldResourceGroup: group,
		model.FieldResourceID:    id,
		model.FieldResourceFile:  file,
	}
}

func collect(t *testing.T, s Store, prefix []string, status model.StatusFilter) []string {
	t.Helper()
	seq, err := s.Iterate(prefix, status, false)
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	var out []string
	for rec := range seq {
		out = append(out, model.KeyString(rec.Keys))
	}
	return out
}

// TestTree_PutGet проверяет, что Get возвращает ровно опубликованные метаданные.
func TestTree_PutGet(t *testing.T) {
	tree := newTree(t, memstore.New(), model.GroupKeys, false, false)

	md := groupMD("g1", "r1", "r1")
	md["size"] = 10
	rec, created, err := tree.Put(md)
	if err != nil || !created {
		t.Fatalf("Put: created=%v err=%v", created, err)
	}
	if !rec.Current.Equal(md) {
		t.Errorf("Put вернул %v, ожидалось %v", rec.Current, md)
	}

	got, err := tree.Get([]string{"g1", "r1"}, model.StatusNormal)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Current.Equal(md) {
		t.Errorf("Get: ожидалось %v, получено %v", md, got.Current)
	}

	// Неархивная публикация заменяет метаданные целиком
	_, created, _ = tree.Put(groupMD("g1", "r1", "r1"))
	if created {
		t.Error("повторная публикация не должна создавать лист")
	}
	got, _ = tree.Get([]string{"g1", "r1"}, model.StatusNormal)
	if _, ok := got.Current["size"]; ok {
		t.Error("поле size должно исчезнуть после повторной публикации")
	}

	if _, err := tree.Get([]string{"g1", "r2"}, model.StatusAll); !errors.Is(err, model.ErrResourceNotFound) {
		t.Errorf("ожидалась ErrResourceNotFound, получено %v", err)
	}
	if _, err := tree.Get([]string{"g1"}, model.StatusAll); !errors.Is(err, model.ErrInvalidResource) {
		t.Errorf("ожидалась ErrInvalidResource для неполного ключа, получено %v", err)
	}
}

// TestTree_ArchiveHistory — N публикаций оставляют current = N-я, histories = N-1..1.
func TestTree_ArchiveHistory(t *testing.T) {
	tree := newTree(t, memstore.New(), model.BasicKeys, true, false)

	for _, f := range []string{"r_1", "r_2", "r_3"} {
		if _, _, err := tree.Put(model.Metadata{model.FieldResourceID: "r", model.FieldResourceFile: f}); err != nil {
			t.Fatal(err)
		}
	}

	rec, err := tree.Get([]string{"r"}, model.StatusNormal)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Current.ResourceFile() != "r_3" {
		t.Errorf("current: ожидалось r_3, получено %s", rec.Current.ResourceFile())
	}
	var hist []string
	for _, h := range rec.Histories {
		hist = append(hist, h.ResourceFile())
	}
	if !slices.Equal(hist, []string{"r_2", "r_1"}) {
		t.Errorf("histories: ожидалось [r_2 r_1], получено %v", hist)
	}

	md, err := Lookup(tree, []string{"r"}, "r_1", model.StatusNormal)
	if err != nil || md.ResourceFile() != "r_1" {
		t.Errorf("Lookup r_1: получено %v (%v)", md, err)
	}
	md, _ = Lookup(tree, []string{"r"}, model.CurrentVersion, model.StatusNormal)
	if md.ResourceFile() != "r_3" {
		t.Errorf("Lookup current: ожидалось r_3, получено %s", md.ResourceFile())
	}
	if _, err := Lookup(tree, []string{"r"}, "r_9", model.StatusNormal); !errors.Is(err, model.ErrResourceNotFound) {
		t.Errorf("ожидалась ErrResourceNotFound для отсутствующей версии, получено %v", err)
	}
}

// TestTree_LogicalDelete — повторное логическое удаление возвращает nil и не меняет дерево.
func TestTree_LogicalDelete(t *testing.T) {
	s := memstore.New()
	tree := newTree(t, s, model.BasicKeys, true, true)
	keys := []string{"r"}

	_, _, _ = tree.Put(model.Metadata{model.FieldResourceID: "r", model.FieldResourceFile: "r_1"})

	rec, err := tree.Remove(keys, false)
	if err != nil || rec == nil || !rec.Deleted {
		t.Fatalf("логическое удаление: rec=%v err=%v", rec, err)
	}
	before, _ := s.GetBytes(tree.Path())

	rec, err = tree.Remove(keys, false)
	if err != nil || rec != nil {
		t.Errorf("повторное логическое удаление должно вернуть nil, получено %v (%v)", rec, err)
	}
	after, _ := s.GetBytes(tree.Path())
	if string(before) != string(after) {
		t.Error("повторное логическое удаление изменило документ")
	}

	if _, err := tree.Get(keys, model.StatusNormal); !errors.Is(err, model.ErrResourceNotFound) {
		t.Errorf("удалённый ресурс не должен находиться с фильтром normal: %v", err)
	}
	if _, err := tree.Get(keys, model.StatusDeleted); err != nil {
		t.Errorf("удалённый ресурс должен находиться с фильтром deleted: %v", err)
	}

	// Повторная публикация снимает пометку
	rec, _, _ = tree.Put(model.Metadata{model.FieldResourceID: "r", model.FieldResourceFile: "r_2"})
	if rec.Deleted || len(rec.Histories) != 1 {
		t.Errorf("после публикации: deleted=%v histories=%d", rec.Deleted, len(rec.Histories))
	}

	// Физическое удаление игнорирует логический режим
	if rec, _ := tree.Remove(keys, true); rec == nil {
		t.Error("физическое удаление должно вернуть запись")
	}
	if s.Len() != 0 {
		t.Errorf("пустой документ должен быть удалён, объектов: %d", s.Len())
	}
}

// TestTree_PruneAncestors — удаление единственного ресурса убирает опустевшие уровни.
func TestTree_PruneAncestors(t *testing.T) {
	s := memstore.New()
	keys := model.KeySet{"a", "b", "c"}
	tree := newTree(t, s, keys, false, false)

	_, _, _ = tree.Put(model.Metadata{"a": "1", "b": "2", "c": "3"})
	_, _, _ = tree.Put(model.Metadata{"a": "9", "b": "9", "c": "9"})

	if _, err := tree.Remove([]string{"1", "2", "3"}, true); err != nil {
		t.Fatal(err)
	}
	doc, _ := tree.Document()
	if _, ok := doc["1"]; ok {
		t.Errorf("опустевшие предки должны быть удалены: %v", doc)
	}
	if len(doc) != 1 {
		t.Errorf("ожидался 1 узел верхнего уровня, получено %d", len(doc))
	}

	if rec, err := tree.Remove([]string{"1", "2", "3"}, true); rec != nil || err != nil {
		t.Errorf("удаление отсутствующего листа: ожидалось nil, получено %v (%v)", rec, err)
	}
}

func TestTree_Iterate(t *testing.T) {
	tree := newTree(t, memstore.New(), model.GroupKeys, false, true)

	for _, k := range [][2]string{{"g2", "b"}, {"g1", "z"}, {"g1", "a"}, {"g2", "a"}} {
		_, _, _ = tree.Put(groupMD(k[0], k[1], k[1]))
	}
	_, _ = tree.Remove([]string{"g2", "b"}, false)

	if got := collect(t, tree, nil, model.StatusAll); !slices.Equal(got, []string{"g1.a", "g1.z", "g2.a", "g2.b"}) {
		t.Errorf("ожидался отсортированный обход, получено %v", got)
	}
	if got := collect(t, tree, nil, model.StatusNormal); len(got) != 3 {
		t.Errorf("normal: ожидалось 3, получено %v", got)
	}
	if got := collect(t, tree, nil, model.StatusDeleted); !slices.Equal(got, []string{"g2.b"}) {
		t.Errorf("deleted: получено %v", got)
	}
	if got := collect(t, tree, []string{"g1"}, model.StatusAll); !slices.Equal(got, []string{"g1.a", "g1.z"}) {
		t.Errorf("префикс g1: получено %v", got)
	}
	if got := collect(t, tree, []string{"g9"}, model.StatusAll); len(got) != 0 {
		t.Errorf("отсутствующий префикс без throwOnMissing: получено %v", got)
	}
	if _, err := tree.Iterate([]string{"g9"}, model.StatusAll, true); !errors.Is(err, model.ErrResourceNotFound) {
		t.Errorf("ожидалась ErrResourceNotFound, получено %v", err)
	}

	// Ранняя остановка
	seq, _ := tree.Iterate(nil, model.StatusAll, false)
	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Errorf("ожидался 1 элемент до остановки, получено %d", n)
	}
}

// TestMetaRecorder проверяет, что документ переписывается только при изменении.
func TestMetaRecorder(t *testing.T) {
	s := memstore.New()
	path := "repo/" + MetaMetadataName
	doc := MetaDocument{Class: "ResourceRepository", Kwargs: map[string]any{"archive": true}}

	if err := NewMetaRecorder(s, path, doc).Ensure(); err != nil {
		t.Fatal(err)
	}
	first, _ := s.GetBytes(path)

	// Подменяем документ тем же содержимым в другом форматировании
	_ = s.PutBytes(path, []byte(`{"class":"ResourceRepository","kwargs":{"archive":true}}`), true)
	if err := NewMetaRecorder(s, path, doc).Ensure(); err != nil {
		t.Fatal(err)
	}
	second, _ := s.GetBytes(path)
	if string(second) == string(first) {
		t.Error("документ с тем же содержимым не должен переписываться")
	}

	got, err := ReadMetaDocument(s, path)
	if err != nil || got.Class != "ResourceRepository" || got.Kwargs["archive"] != true {
		t.Errorf("ReadMetaDocument: получено %+v (%v)", got, err)
	}
	if _, err := ReadMetaDocument(s, "absent/"+MetaMetadataName); !errors.Is(err, model.ErrResourceNotFound) {
		t.Errorf("ожидалась ErrResourceNotFound, получено %v", err)
	}
}
