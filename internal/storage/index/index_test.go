package index

import (
	"strings"
	"testing"

	"github.com/bigkaa/goartstore/data-storage/internal/storage/memstore"
)

func TestIndex_AddRemove(t *testing.T) {
	s := memstore.New()
	idx := New(s, "repo/_metadata_index.json")

	entries, err := idx.Entries()
	if err != nil || len(entries) != 0 {
		t.Fatalf("ожидался пустой индекс, получено %v (%v)", entries, err)
	}

	if added, err := idx.Add("2018", "repo/2018.json"); err != nil || !added {
		t.Fatalf("Add: %v %v", added, err)
	}
	if added, _ := idx.Add("2018", "repo/2018.json"); added {
		t.Error("повторное добавление не должно изменять индекс")
	}
	_, _ = idx.Add("2017", "repo/2017.json")

	entries, _ = idx.Entries()
	if len(entries) != 2 || entries[0].Name != "2018" || entries[1].Name != "2017" {
		t.Errorf("ожидался порядок добавления [2018 2017], получено %v", entries)
	}

	data, _ := s.GetBytes("repo/_metadata_index.json")
	if !strings.Contains(string(data), `"repo/2018.json"`) {
		t.Errorf("документ индекса должен содержать пары [имя, путь]:\n%s", data)
	}

	if e, ok, _ := idx.Lookup("2017"); !ok || e.Path != "repo/2017.json" {
		t.Errorf("Lookup: получено %v %v", e, ok)
	}

	if removed, _ := idx.Remove("2018"); !removed {
		t.Error("ожидалось удаление 2018")
	}
	if removed, _ := idx.Remove("2018"); removed {
		t.Error("повторное удаление не должно изменять индекс")
	}
	_, _ = idx.Remove("2017")

	if s.Len() != 0 {
		t.Errorf("пустой индекс должен быть удалён, объектов в хранилище: %d", s.Len())
	}
}
