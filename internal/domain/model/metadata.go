// Пакет model — доменные модели репозитория ресурсов.
// Metadata — плоская карта метаданных опубликованного ресурса,
// Record — лист дерева метаданных: текущая версия, история версий
// и признак логического удаления.
package model

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
)

// Имена служебных полей метаданных.
const (
	FieldResourceID    = "resource_id"
	FieldResourceGroup = "resource_group"
	FieldResourceFile  = "resource_file"
	FieldResourcePath  = "resource_path"
	FieldPublishDate   = "publish_date"
	FieldDeleted       = "deleted"

	// FieldCurrent и FieldHistories — поля архивной записи.
	FieldCurrent   = "current"
	FieldHistories = "histories"
)

// CurrentVersion — селектор текущей (последней) версии ресурса.
const CurrentVersion = "current"

// KeySet — упорядоченный набор имён ключевых полей (1–3),
// однозначно идентифицирующий ресурс в репозитории.
type KeySet []string

var (
	// BasicKeys — ресурс идентифицируется только resource_id.
	BasicKeys = KeySet{FieldResourceID}
	// GroupKeys — ресурс идентифицируется группой и resource_id.
	GroupKeys = KeySet{FieldResourceGroup, FieldResourceID}
)

// Validate проверяет глубину набора ключей.
func (ks KeySet) Validate() error {
	if len(ks) == 0 || len(ks) > 3 {
		return fmt.Errorf("%w: глубина набора ключей %d вне диапазона 1-3", ErrInvalidResource, len(ks))
	}
	return nil
}

// Last возвращает имя последнего ключевого поля.
func (ks KeySet) Last() string {
	return ks[len(ks)-1]
}

// CheckKeys проверяет, что передано ровно len(ks) допустимых значений ключей.
func (ks KeySet) CheckKeys(keys []string) error {
	if len(keys) != len(ks) {
		return fmt.Errorf("%w: ожидалось %d ключей %v, получено %d", ErrInvalidResource, len(ks), []string(ks), len(keys))
	}
	for i, k := range keys {
		if err := CheckKeyValue(ks[i], k); err != nil {
			return err
		}
	}
	return nil
}

// CheckKeyValue проверяет значение ключевого поля field.
// Значения ключей и resource_file становятся сегментами пути payload,
// поэтому допускается только непустой сегмент без '/', отличный от "." и "..".
func CheckKeyValue(field, v string) error {
	switch {
	case v == "":
		return fmt.Errorf("%w: пустое значение ключа %s", ErrInvalidResource, field)
	case v == "." || v == "..":
		return fmt.Errorf("%w: недопустимое значение ключа %s: %q", ErrInvalidResource, field, v)
	case strings.ContainsAny(v, "/\x00"):
		return fmt.Errorf("%w: значение ключа %s содержит разделитель пути: %q", ErrInvalidResource, field, v)
	}
	return nil
}

// KeyString форматирует ключи ресурса для логов и сообщений об ошибках.
func KeyString(keys []string) string {
	return strings.Join(keys, ".")
}

// CompareKeys сравнивает ключи как кортежи (лексикографически).
func CompareKeys(a, b []string) int {
	return slices.Compare(a, b)
}

// StatusFilter — фильтр ресурсов по признаку логического удаления.
type StatusFilter int

const (
	// StatusNormal — только неудалённые ресурсы.
	StatusNormal StatusFilter = 1
	// StatusDeleted — только логически удалённые ресурсы.
	StatusDeleted StatusFilter = 2
	// StatusAll — все ресурсы.
	StatusAll StatusFilter = 3
)

// Match проверяет, проходит ли ресурс с данным признаком удаления фильтр.
func (f StatusFilter) Match(deleted bool) bool {
	switch f {
	case StatusNormal:
		return !deleted
	case StatusDeleted:
		return deleted
	default:
		return true
	}
}

// String возвращает имя фильтра (normal, deleted, all).
func (f StatusFilter) String() string {
	switch f {
	case StatusNormal:
		return "normal"
	case StatusDeleted:
		return "deleted"
	case StatusAll:
		return "all"
	default:
		return fmt.Sprintf("StatusFilter(%d)", int(f))
	}
}

// ParseStatusFilter разбирает имя фильтра. Пустая строка — StatusNormal.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch strings.ToLower(s) {
	case "", "normal":
		return StatusNormal, nil
	case "deleted":
		return StatusDeleted, nil
	case "all":
		return StatusAll, nil
	default:
		return 0, fmt.Errorf("недопустимый фильтр статуса %q, допустимые: normal, deleted, all", s)
	}
}

// Metadata — метаданные одной версии ресурса.
// Всегда содержит ключевые поля, resource_file, resource_path и publish_date;
// может содержать произвольные поля вызывающей стороны.
type Metadata map[string]any

// String возвращает строковое значение поля или "".
func (m Metadata) String(field string) string {
	s, _ := m[field].(string)
	return s
}

// ResourceFile возвращает метку версии (resource_file).
func (m Metadata) ResourceFile() string {
	return m.String(FieldResourceFile)
}

// ResourcePath возвращает путь payload в хранилище.
func (m Metadata) ResourcePath() string {
	return m.String(FieldResourcePath)
}

// PublishDate возвращает дату публикации или нулевое время.
func (m Metadata) PublishDate() time.Time {
	t, _ := m[FieldPublishDate].(time.Time)
	return t
}

// Keys извлекает значения ключевых полей.
// Возвращает ErrInvalidResource, если поле отсутствует, не является строкой
// или не проходит CheckKeyValue.
func (m Metadata) Keys(ks KeySet) ([]string, error) {
	keys := make([]string, len(ks))
	for i, field := range ks {
		v, ok := m[field].(string)
		if !ok || v == "" {
			return nil, fmt.Errorf("%w: в метаданных отсутствует ключевое поле %s", ErrInvalidResource, field)
		}
		if err := CheckKeyValue(field, v); err != nil {
			return nil, err
		}
		keys[i] = v
	}
	return keys, nil
}

// Clone возвращает поверхностную копию метаданных.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	c := make(Metadata, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Equal сравнивает метаданные по значениям. Время сравнивается по моменту,
// числа — независимо от конкретного числового типа.
func (m Metadata) Equal(o Metadata) bool {
	if len(m) != len(o) {
		return false
	}
	for k, v := range m {
		ov, ok := o[k]
		if !ok || !valuesEqual(v, ov) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case Date:
		bv, ok := b.(Date)
		return ok && av.Equal(bv.Time)
	case Metadata:
		return valuesEqual(map[string]any(av), b)
	case map[string]any:
		var bm map[string]any
		switch bv := b.(type) {
		case map[string]any:
			bm = bv
		case Metadata:
			bm = bv
		default:
			return false
		}
		return Metadata(av).Equal(bm)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Record — лист дерева метаданных.
// Для неархивного репозитория Histories всегда пуст.
type Record struct {
	// Keys — значения ключевых полей, по которым найден лист
	Keys []string
	// Current — текущая версия
	Current Metadata
	// Histories — предыдущие версии, новые первыми
	Histories []Metadata
	// Deleted — ресурс логически удалён
	Deleted bool
}

// Version возвращает версию по метке resource_file.
// "" и "current" означают текущую версию.
func (r *Record) Version(resourceFile string) (Metadata, bool) {
	if resourceFile == "" || resourceFile == CurrentVersion {
		return r.Current, r.Current != nil
	}
	if r.Current != nil && r.Current.ResourceFile() == resourceFile {
		return r.Current, true
	}
	for _, h := range r.Histories {
		if h.ResourceFile() == resourceFile {
			return h, true
		}
	}
	return nil, false
}

// Versions возвращает текущую версию и всю историю.
func (r *Record) Versions() []Metadata {
	out := make([]Metadata, 0, 1+len(r.Histories))
	if r.Current != nil {
		out = append(out, r.Current)
	}
	return append(out, r.Histories...)
}

// Clone возвращает копию записи, не разделяющую карты метаданных с оригиналом.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := &Record{
		Keys:    slices.Clone(r.Keys),
		Current: r.Current.Clone(),
		Deleted: r.Deleted,
	}
	if len(r.Histories) > 0 {
		c.Histories = make([]Metadata, len(r.Histories))
		for i, h := range r.Histories {
			c.Histories[i] = h.Clone()
		}
	}
	return c
}
