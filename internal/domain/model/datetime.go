// datetime.go — JSON-кодек дат для документов метаданных.
//
// Даты хранятся как помеченные объекты, чтобы переживать цикл
// запись/чтение без потери типа:
//
//	{"_type": "datetime", "value": "2006-01-02 15:04:05.000000"}
//	{"_type": "date", "value": "2006-01-02"}
//
// Значение datetime всегда записывается в опорной временной зоне
// (по умолчанию фиксированная +08:00).
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Форматы помеченных дат.
const (
	DateTimeLayout = "2006-01-02 15:04:05.000000"
	DateLayout     = "2006-01-02"
)

const (
	tagType      = "_type"
	tagValue     = "value"
	typeDateTime = "datetime"
	typeDate     = "date"
)

var referenceZone atomic.Pointer[time.Location]

func init() {
	referenceZone.Store(time.FixedZone("AWST", 8*60*60))
}

// SetReferenceZone задаёт опорную временную зону кодека.
// Вызывается один раз при старте, до первой записи документов.
func SetReferenceZone(loc *time.Location) {
	if loc != nil {
		referenceZone.Store(loc)
	}
}

// ReferenceZone возвращает опорную временную зону кодека.
func ReferenceZone() *time.Location {
	return referenceZone.Load()
}

// Normalize приводит время к опорной зоне с точностью до микросекунд —
// ровно к тому значению, которое вернётся после чтения документа.
func Normalize(t time.Time) time.Time {
	return t.In(ReferenceZone()).Truncate(time.Microsecond)
}

// Date — календарная дата без времени.
type Date struct {
	time.Time
}

// NewDate создаёт дату в опорной зоне.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, ReferenceZone())}
}

// MarshalJSON кодирует дату помеченным объектом.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{tagType: typeDate, tagValue: d.Format(DateLayout)})
}

// UnmarshalJSON декодирует помеченный объект date.
func (d *Date) UnmarshalJSON(data []byte) error {
	v, err := decodeTagged(data, typeDate)
	if err != nil {
		return err
	}
	d.Time = v.(Date).Time
	return nil
}

// DateTime — время для типизированных документов (блокировка, журнал).
// В картах Metadata используется обычный time.Time.
type DateTime struct {
	time.Time
}

// MarshalJSON кодирует время помеченным объектом datetime.
func (t DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{tagType: typeDateTime, tagValue: t.In(ReferenceZone()).Format(DateTimeLayout)})
}

// UnmarshalJSON декодирует помеченный объект datetime.
func (t *DateTime) UnmarshalJSON(data []byte) error {
	v, err := decodeTagged(data, typeDateTime)
	if err != nil {
		return err
	}
	t.Time = v.(time.Time)
	return nil
}

func decodeTagged(data []byte, want string) (any, error) {
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("ошибка декодирования даты: %w", err)
	}
	if obj[tagType] != want {
		return nil, fmt.Errorf("ожидался тип %q, получен %q", want, obj[tagType])
	}
	v, ok := parseTagged(obj[tagType], obj[tagValue])
	if !ok {
		return nil, fmt.Errorf("некорректное значение %s: %q", want, obj[tagValue])
	}
	return v, nil
}

func parseTagged(typ, value string) (any, bool) {
	switch typ {
	case typeDateTime:
		t, err := time.ParseInLocation(DateTimeLayout, value, ReferenceZone())
		if err != nil {
			return nil, false
		}
		return t, true
	case typeDate:
		t, err := time.ParseInLocation(DateLayout, value, ReferenceZone())
		if err != nil {
			return nil, false
		}
		return Date{Time: t}, true
	}
	return nil, false
}

// EncodeValue подготавливает дерево значений к json.Marshal:
// time.Time заменяется помеченным объектом, вложенные карты и срезы
// обходятся рекурсивно. Остальные значения возвращаются как есть.
func EncodeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return map[string]any{tagType: typeDateTime, tagValue: x.In(ReferenceZone()).Format(DateTimeLayout)}
	case *time.Time:
		if x == nil {
			return nil
		}
		return EncodeValue(*x)
	case Metadata:
		return EncodeValue(map[string]any(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = EncodeValue(e)
		}
		return out
	case []Metadata:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = EncodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = EncodeValue(e)
		}
		return out
	default:
		return v
	}
}

// DecodeValue обходит результат json.Unmarshal в any и заменяет
// помеченные объекты на time.Time и Date.
func DecodeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 2 {
			typ, ok1 := x[tagType].(string)
			val, ok2 := x[tagValue].(string)
			if ok1 && ok2 {
				if parsed, ok := parseTagged(typ, val); ok {
					return parsed
				}
			}
		}
		for k, e := range x {
			x[k] = DecodeValue(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = DecodeValue(e)
		}
		return x
	default:
		return v
	}
}

// MarshalDocument сериализует документ: помеченные даты,
// отсортированные ключи, отступ 4 пробела.
func MarshalDocument(v any) ([]byte, error) {
	data, err := json.MarshalIndent(EncodeValue(v), "", "    ")
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации документа: %w", err)
	}
	return data, nil
}

// UnmarshalDocument разбирает документ в дерево значений с восстановленными датами.
// Пустой документ возвращает nil.
func UnmarshalDocument(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("ошибка десериализации документа: %w", err)
	}
	return DecodeValue(v), nil
}

// Now возвращает текущее время в опорной зоне с точностью до микросекунд.
func Now() time.Time {
	return Normalize(time.Now())
}
