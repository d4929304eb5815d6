package consume

import (
	"errors"
	"log/slog"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/data-storage/internal/clock"
	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
	"github.com/bigkaa/goartstore/data-storage/internal/repository"
	"github.com/bigkaa/goartstore/data-storage/internal/storage/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	clk     *clock.FakeClock
	repo    *repository.Repository
	clients *Clients
}

func newFixture(t *testing.T, kind repository.Kind, opts repository.Options) *fixture {
	t.Helper()
	clk := clock.Fake(time.Date(2024, 5, 1, 8, 0, 0, 0, model.ReferenceZone()))
	opts.Clock = clk
	opts.Logger = testLogger()
	repo, err := repository.New(memstore.New(), "layers", kind, opts)
	if err != nil {
		t.Fatalf("repository.New: %v", err)
	}
	clients, err := NewClients(repo, Config{Clock: clk, Logger: testLogger(), Host: "test-host", PID: 42})
	if err != nil {
		t.Fatalf("NewClients: %v", err)
	}
	return &fixture{clk: clk, repo: repo, clients: clients}
}

func (f *fixture) push(t *testing.T, id, data string) {
	t.Helper()
	f.clk.Advance(time.Second)
	if _, err := f.repo.Push([]byte(data), model.Metadata{model.FieldResourceID: id}); err != nil {
		t.Fatalf("Push %s: %v", id, err)
	}
}

// recorder собирает вызовы callback-а и проверяет содержимое payload.
type recorder struct {
	t     *testing.T
	seen  []string
	fail  map[string]error
	files []string
}

func (r *recorder) fn(it Item) error {
	r.seen = append(r.seen, it.Status.String()+":"+model.KeyString(it.Keys))
	if it.File != "" {
		r.files = append(r.files, it.File)
		if _, err := os.ReadFile(it.File); err != nil {
			r.t.Errorf("payload %s недоступен в callback: %v", model.KeyString(it.Keys), err)
		}
	}
	if err, ok := r.fail[model.KeyString(it.Keys)]; ok {
		return err
	}
	return nil
}

func outcomes(res Result) []string {
	var out []string
	for _, o := range res.Consumed {
		out = append(out, o.Status.String()+":"+model.KeyString(o.Keys))
	}
	return out
}

func TestClassify(t *testing.T) {
	md := model.Metadata{model.FieldResourceID: "a", "v": 1.0}
	changed := model.Metadata{model.FieldResourceID: "a", "v": 2.0}

	tests := []struct {
		name      string
		prev      *Record
		live      model.Metadata
		deleted   bool
		reconsume bool
		want      Status
		ok        bool
	}{
		{"новый", nil, md, false, false, New, true},
		{"новый логически удалённый", nil, md, true, false, 0, false},
		{"физически удалён", &Record{Metadata: md, Status: labelNew}, nil, false, false, PhysicallyDeleted, true},
		{"логически удалён", &Record{Metadata: md, Status: labelNew}, md, true, false, LogicallyDeleted, true},
		{"удаление уже обработано", &Record{Metadata: md, Status: labelLogicallyDeleted}, md, true, false, 0, false},
		{"изменён", &Record{Metadata: md, Status: labelNew}, changed, false, false, Updated, true},
		{"не изменён", &Record{Metadata: md, Status: labelNew}, md, false, false, 0, false},
		{"повторная обработка", &Record{Metadata: md, Status: labelNew}, md, false, true, NotChanged, true},
		{"ошибка на новом", &Record{Metadata: md, Status: labelNew, FailedMsg: "x"}, md, false, false, New, true},
		{"ошибка и изменение", &Record{Metadata: md, Status: labelReconsume, FailedMsg: "x"}, changed, false, false, Updated, true},
		{"ошибка на обновлении", &Record{Metadata: md, Status: labelUpdate, FailedMsg: "x"}, md, false, false, Updated, true},
		{"ошибка на повторной обработке", &Record{Metadata: md, Status: labelReconsume, FailedMsg: "x"}, md, false, false, NotChanged, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := classify(tt.prev, tt.live, tt.deleted, tt.reconsume)
			if ok != tt.ok || (ok && got != tt.want) {
				t.Errorf("ожидалось %s/%v, получено %s/%v", tt.want, tt.ok, got, ok)
			}
		})
	}
}

// TestClient_Lifecycle — новые, изменённые и удалённые ресурсы выдаются по одному разу.
func TestClient_Lifecycle(t *testing.T) {
	f := newFixture(t, repository.KindResource, repository.Options{})
	f.push(t, "A", "v1")
	f.push(t, "B", "v1")
	c := f.clients.Client("c1")

	rec := &recorder{t: t}
	res, err := c.Consume(rec.fn)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got := outcomes(res); !slices.Equal(got, []string{"new:A", "new:B"}) {
		t.Errorf("первый проход: %v", got)
	}
	for _, file := range rec.files {
		if _, err := os.Stat(file); !os.IsNotExist(err) {
			t.Errorf("временный файл %s не удалён", file)
		}
	}

	res, _ = c.Consume(rec.fn)
	if len(res.Consumed) != 0 {
		t.Errorf("второй проход без изменений: %v", outcomes(res))
	}
	if behind, _ := c.IsBehind(); behind {
		t.Error("IsBehind: ожидалось false")
	}

	f.push(t, "A", "v2")
	if behind, _ := c.IsBehind(); !behind {
		t.Error("IsBehind после обновления: ожидалось true")
	}
	res, _ = c.Consume(rec.fn)
	if got := outcomes(res); !slices.Equal(got, []string{"updated:A"}) {
		t.Errorf("после обновления: %v", got)
	}

	if _, err := f.repo.Delete([]string{"B"}, false); err != nil {
		t.Fatal(err)
	}
	res, _ = c.Consume(rec.fn)
	if got := outcomes(res); !slices.Equal(got, []string{"physically deleted:B"}) {
		t.Errorf("после удаления: %v", got)
	}
	status, _ := f.clients.Status("c1")
	if _, ok := status.(map[string]any)["B"]; ok {
		t.Error("запись обработки удалённого ресурса должна быть удалена")
	}

	res, _ = c.Consume(rec.fn, Reconsume())
	if got := outcomes(res); !slices.Equal(got, []string{"non-changed:A"}) {
		t.Errorf("повторная обработка: %v", got)
	}

	md, err := f.clients.Metadata("c1")
	if err != nil {
		t.Fatal(err)
	}
	if md.String(FieldLastConsumeHost) != "test-host" || md.String(FieldLastConsumedResourceStatus) != labelReconsume {
		t.Errorf("метаданные клиента: %v", md)
	}
}

// TestClient_FailureRetry — ошибка сохраняет прежний статус, и повтор классифицирует
// ресурс по нему, а не как новый.
func TestClient_FailureRetry(t *testing.T) {
	f := newFixture(t, repository.KindResource, repository.Options{})
	f.push(t, "A", "v1")
	f.push(t, "X", "v1")
	c := f.clients.Client("c1")
	if _, err := c.Consume((&recorder{t: t}).fn); err != nil {
		t.Fatal(err)
	}

	f.push(t, "A", "v2")
	f.push(t, "X", "v2")
	boom := errors.New("сбой обработки")
	rec := &recorder{t: t, fail: map[string]error{"A": boom}}
	res, err := c.Consume(rec.fn)

	var cfe *model.ConsumeFailedError
	if !errors.As(err, &cfe) || !errors.Is(err, boom) || !errors.Is(err, model.ErrResourceConsumeFailed) {
		t.Fatalf("ожидалась ConsumeFailedError, получено %v", err)
	}
	if len(res.Failed) != 1 || model.KeyString(res.Failed[0].Keys) != "A" {
		t.Errorf("неудачи: %+v", res.Failed)
	}
	if !slices.Equal(rec.seen, []string{"updated:A"}) {
		t.Errorf("после ошибки проход должен остановиться: %v", rec.seen)
	}

	status, _ := f.clients.Status("c1")
	a := statusAt(status.(map[string]any), []string{"A"})
	if a == nil || a.FailedMsg != boom.Error() || a.Status != labelUpdate {
		t.Errorf("запись обработки A: %+v", a)
	}

	rec = &recorder{t: t}
	res, err = c.Consume(rec.fn)
	if err != nil {
		t.Fatal(err)
	}
	if got := outcomes(res); !slices.Equal(got, []string{"updated:A", "updated:X"}) {
		t.Errorf("повтор: %v", got)
	}
}

func TestClient_ContinueOnFailure(t *testing.T) {
	f := newFixture(t, repository.KindResource, repository.Options{})
	for _, id := range []string{"A", "B", "C"} {
		f.push(t, id, id)
	}
	c := f.clients.Client("c1")
	rec := &recorder{t: t, fail: map[string]error{"B": errors.New("нет")}}
	res, err := c.Consume(rec.fn, StopIfFailed(false))
	if err != nil {
		t.Fatalf("без остановки ошибка не возвращается: %v", err)
	}
	if len(res.Consumed) != 2 || len(res.Failed) != 1 {
		t.Errorf("обработано %d, ошибок %d", len(res.Consumed), len(res.Failed))
	}
}

func TestClient_LogicalDelete(t *testing.T) {
	f := newFixture(t, repository.KindResource, repository.Options{LogicalDelete: true})
	f.push(t, "A", "v1")
	c := f.clients.Client("c1")
	rec := &recorder{t: t}
	_, _ = c.Consume(rec.fn)

	if _, err := f.repo.Delete([]string{"A"}, false); err != nil {
		t.Fatal(err)
	}
	res, _ := c.Consume(rec.fn)
	if got := outcomes(res); !slices.Equal(got, []string{"logically deleted:A"}) {
		t.Errorf("логическое удаление: %v", got)
	}
	if behind, _ := c.IsBehind(); behind {
		t.Error("обработанное логическое удаление не должно выдаваться повторно")
	}

	f.push(t, "A", "v2")
	res, _ = c.Consume(rec.fn)
	if got := outcomes(res); !slices.Equal(got, []string{"updated:A"}) {
		t.Errorf("повторная публикация: %v", got)
	}
}

func TestClient_Options(t *testing.T) {
	f := newFixture(t, repository.KindGroupResource, repository.Options{})
	for _, k := range [][2]string{{"g1", "a"}, {"g1", "b"}, {"g2", "c"}} {
		f.clk.Advance(time.Second)
		if _, err := f.repo.Push([]byte(k[1]), model.Metadata{model.FieldResourceGroup: k[0], model.FieldResourceID: k[1]}); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("явный список", func(t *testing.T) {
		rec := &recorder{t: t}
		_, err := f.clients.Client("list").Consume(rec.fn, WithResources([]string{"g2", "c"}, []string{"g1", "a"}, []string{"g9", "z"}))
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(rec.seen, []string{"new:g2.c", "new:g1.a"}) {
			t.Errorf("получено %v", rec.seen)
		}
	})

	t.Run("фильтр", func(t *testing.T) {
		rec := &recorder{t: t}
		_, _ = f.clients.Client("filter").Consume(rec.fn, WithFilter(func(keys []string) bool { return keys[0] == "g1" }))
		if !slices.Equal(rec.seen, []string{"new:g1.a", "new:g1.b"}) {
			t.Errorf("получено %v", rec.seen)
		}
	})

	t.Run("сортировка", func(t *testing.T) {
		rec := &recorder{t: t}
		desc := func(a, b Item) int { return strings.Compare(model.KeyString(b.Keys), model.KeyString(a.Keys)) }
		_, _ = f.clients.Client("sorted").Consume(rec.fn, SortBy(desc))
		if !slices.Equal(rec.seen, []string{"new:g2.c", "new:g1.b", "new:g1.a"}) {
			t.Errorf("получено %v", rec.seen)
		}
	})
}

func TestClient_Batch(t *testing.T) {
	f := newFixture(t, repository.KindResource, repository.Options{})
	f.push(t, "A", "v1")
	f.push(t, "B", "v1")
	c := f.clients.Client("batch")

	var files []string
	boom := errors.New("пакет")
	_, err := c.ConsumeBatch(func(items []Item) error {
		for _, it := range items {
			files = append(files, it.File)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ожидалась ошибка пакета, получено %v", err)
	}
	for _, file := range files {
		if _, err := os.Stat(file); !os.IsNotExist(err) {
			t.Errorf("временный файл %s не удалён", file)
		}
	}
	if ok, _ := f.clients.Exists("batch"); ok {
		t.Error("ошибка пакета не должна сохранять статус")
	}

	res, err := c.ConsumeBatch(func(items []Item) error {
		if len(items) != 2 {
			t.Errorf("ожидалось 2 ресурса, получено %d", len(items))
		}
		return nil
	})
	if err != nil || len(res.Consumed) != 2 {
		t.Fatalf("ConsumeBatch: %v %v", res, err)
	}
	if behind, _ := c.IsBehind(); behind {
		t.Error("после пакета IsBehind должен быть false")
	}
}

func TestClients_Registry(t *testing.T) {
	f := newFixture(t, repository.KindResource, repository.Options{})
	f.push(t, "A", "v1")
	for _, id := range []string{"c2", "c1"} {
		if _, err := f.clients.Client(id).Consume((&recorder{t: t}).fn); err != nil {
			t.Fatal(err)
		}
	}

	list, err := f.clients.List()
	if err != nil || len(list) != 2 || list[0].String(model.FieldResourceID) != "c1" {
		t.Fatalf("List: %v %v", list, err)
	}
	if ok, _ := f.clients.Exists("c3"); ok {
		t.Error("незарегистрированный клиент найден")
	}
	if st, err := f.clients.Status("c3"); st != nil || err != nil {
		t.Errorf("статус незарегистрированного клиента: %v %v", st, err)
	}

	deleted, err := f.clients.Delete("c1")
	if err != nil || len(deleted) != 1 {
		t.Fatalf("Delete: %v %v", deleted, err)
	}
	if _, err := f.clients.Delete(""); err != nil {
		t.Fatal(err)
	}
	if list, _ := f.clients.List(); len(list) != 0 {
		t.Errorf("после удаления всех: %v", list)
	}
}

func TestHistoryClient(t *testing.T) {
	f := newFixture(t, repository.KindHistoryData, repository.Options{})
	if h, err := f.clients.HistoryClient("h", 0); err != nil || h.size != DefaultHistorySize {
		t.Fatalf("HistoryClient: %v", err)
	}
	for _, id := range []string{"2024_01", "2024_02", "2024_03"} {
		f.push(t, id, id)
	}

	h, _ := f.clients.HistoryClient("h", 2)
	boom := errors.New("сбой")
	rec := &recorder{t: t, fail: map[string]error{"2024_02": boom}}
	res, err := h.Consume(rec.fn)
	if !errors.Is(err, boom) || len(res.Consumed) != 1 {
		t.Fatalf("первый проход: %v %v", outcomes(res), err)
	}

	rec = &recorder{t: t}
	res, err = h.Consume(rec.fn)
	if err != nil {
		t.Fatal(err)
	}
	if got := outcomes(res); !slices.Equal(got, []string{"new:2024_02", "new:2024_03"}) {
		t.Errorf("повтор: %v", got)
	}

	records, _ := h.Records()
	if len(records) != 2 || model.KeyString(records[0].Keys) != "2024_02" || records[0].Failed() {
		t.Errorf("кольцевой буфер: %+v", records)
	}
	if behind, _ := h.IsBehind(); behind {
		t.Error("IsBehind: ожидалось false")
	}

	// ошибка на записи, которая больше не первая необработанная
	f.push(t, "2024_04", "x")
	_, _ = h.Consume((&recorder{t: t, fail: map[string]error{"2024_04": boom}}).fn)
	if _, err := f.repo.Delete([]string{"2024_04"}, true); err != nil {
		t.Fatal(err)
	}
	f.push(t, "2024_05", "y")
	if _, err := h.Consume(rec.fn); !errors.Is(err, model.ErrInvalidConsumeStatus) {
		t.Errorf("ожидалась ErrInvalidConsumeStatus, получено %v", err)
	}

	plain := newFixture(t, repository.KindResource, repository.Options{})
	if _, err := plain.clients.HistoryClient("h", 0); !errors.Is(err, model.ErrOperationNotSupport) {
		t.Errorf("ожидалась ErrOperationNotSupport, получено %v", err)
	}
}

// TestHistoryClient_SizeOne — буфер из одной записи не теряет последнюю успешную при ошибке.
func TestHistoryClient_SizeOne(t *testing.T) {
	f := newFixture(t, repository.KindHistoryData, repository.Options{})
	for _, id := range []string{"2024_01", "2024_02", "2024_03"} {
		f.push(t, id, id)
	}

	h, err := f.clients.HistoryClient("h1", 1)
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("сбой")
	res, err := h.Consume((&recorder{t: t, fail: map[string]error{"2024_02": boom}}).fn)
	if !errors.Is(err, boom) || len(res.Consumed) != 1 {
		t.Fatalf("первый проход: %v %v", outcomes(res), err)
	}

	records, _ := h.Records()
	if len(records) != 2 || model.KeyString(records[0].Keys) != "2024_01" || !records[1].Failed() {
		t.Fatalf("ожидались последняя успешная и запись с ошибкой: %+v", records)
	}
	if behind, err := h.IsBehind(); err != nil || !behind {
		t.Errorf("IsBehind: %v %v", behind, err)
	}

	res, err = h.Consume((&recorder{t: t}).fn)
	if err != nil {
		t.Fatalf("повтор: %v", err)
	}
	if got := outcomes(res); !slices.Equal(got, []string{"new:2024_02", "new:2024_03"}) {
		t.Errorf("повтор: %v", got)
	}
	records, _ = h.Records()
	if len(records) != 1 || model.KeyString(records[0].Keys) != "2024_03" {
		t.Errorf("кольцевой буфер: %+v", records)
	}
}

func TestTrim(t *testing.T) {
	ok := func(id string) HistoryRecord { return HistoryRecord{Keys: []string{id}} }
	failed := func(id string) HistoryRecord {
		return HistoryRecord{Keys: []string{id}, Record: Record{FailedMsg: "x"}}
	}
	keys := func(rs []HistoryRecord) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Keys[0])
		}
		return out
	}

	tests := []struct {
		name    string
		records []HistoryRecord
		size    int
		want    []string
	}{
		{"в пределах размера", []HistoryRecord{ok("a"), failed("b")}, 2, []string{"a", "b"}},
		{"успешная в окне", []HistoryRecord{ok("a"), ok("b"), ok("c")}, 2, []string{"b", "c"}},
		{"только ошибка в окне", []HistoryRecord{ok("a"), ok("b"), failed("c")}, 1, []string{"b", "c"}},
		{"успешных нет", []HistoryRecord{failed("a"), failed("b")}, 1, []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keys(trim(tt.records, tt.size)); !slices.Equal(got, tt.want) {
				t.Errorf("ожидалось %v, получено %v", tt.want, got)
			}
		})
	}
}

func TestClients_InvalidClientID(t *testing.T) {
	f := newFixture(t, repository.KindResource, repository.Options{})
	f.push(t, "A", "v1")

	for _, id := range []string{"..", "../metadata.json", "a/b"} {
		if _, err := f.clients.Client(id).Consume((&recorder{t: t}).fn); !errors.Is(err, model.ErrInvalidResource) {
			t.Errorf("%q: ожидалась ErrInvalidResource, получено %v", id, err)
		}
		if err := f.clients.save(id, map[string]any{}, model.Metadata{}); !errors.Is(err, model.ErrInvalidResource) {
			t.Errorf("save %q: ожидалась ErrInvalidResource, получено %v", id, err)
		}
	}
	if list, _ := f.clients.List(); len(list) != 0 {
		t.Errorf("клиенты не должны регистрироваться: %v", list)
	}
}
