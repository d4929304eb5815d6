package metadata

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/bigkaa/goartstore/data-storage/internal/domain/model"
)

// ShardFunc возвращает имя шарда по значению первого ключа ресурса.
type ShardFunc func(firstKey string) string

// Реестр именованных функций шардирования. Имя функции записывается
// в meta_metadata.json, чтобы репозиторий можно было открыть заново.
var (
	shardFuncsMu sync.RWMutex
	shardFuncs   = map[string]ShardFunc{
		"identity": func(k string) string { return k },
	}
)

// RegisterShardFunc регистрирует функцию шардирования под именем name.
// Имена со встроенными префиксами (prefix:, basename-prefix:) зарезервированы.
func RegisterShardFunc(name string, fn ShardFunc) {
	shardFuncsMu.Lock()
	defer shardFuncsMu.Unlock()
	shardFuncs[name] = fn
}

// ResolveShardFunc возвращает функцию по имени.
//
// Встроенные имена:
//   - identity — первый ключ целиком;
//   - prefix:N — первые N символов первого ключа;
//   - basename-prefix:N — первые N символов последнего сегмента пути первого ключа.
func ResolveShardFunc(name string) (ShardFunc, error) {
	if n, ok := strings.CutPrefix(name, "basename-prefix:"); ok {
		size, err := parsePrefixSize(name, n)
		if err != nil {
			return nil, err
		}
		return func(k string) string { return truncate(path.Base(k), size) }, nil
	}
	if n, ok := strings.CutPrefix(name, "prefix:"); ok {
		size, err := parsePrefixSize(name, n)
		if err != nil {
			return nil, err
		}
		return func(k string) string { return truncate(k, size) }, nil
	}

	shardFuncsMu.RLock()
	defer shardFuncsMu.RUnlock()
	fn, ok := shardFuncs[name]
	if !ok {
		return nil, fmt.Errorf("неизвестная функция шардирования %q", name)
	}
	return fn, nil
}

// ClientsMetaname — имя дерева метаданных клиентов-потребителей в корне репозитория.
const ClientsMetaname = "clients_metadata"

// CheckShardName проверяет имя шарда: шард хранится в {base}/{name}.json
// рядом со служебными документами репозитория и индексом indexName.
func CheckShardName(name, indexName string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: пустое имя шарда", model.ErrInvalidResource)
	case name == "." || name == ".." || strings.ContainsAny(name, "/\x00"):
		return fmt.Errorf("%w: недопустимое имя шарда %q", model.ErrInvalidResource, name)
	case name == indexName:
		return fmt.Errorf("%w: имя шарда %q совпадает с индексом шардов", model.ErrInvalidResource, name)
	case name == DefaultMetaname, name == DefaultIndexMetaname, name == ClientsMetaname,
		name+".json" == MetaMetadataName:
		return fmt.Errorf("%w: имя шарда %q зарезервировано", model.ErrInvalidResource, name)
	}
	return nil
}

func parsePrefixSize(name, n string) (int, error) {
	size, err := strconv.Atoi(n)
	if err != nil || size <= 0 {
		return 0, fmt.Errorf("некорректная функция шардирования %q: длина префикса должна быть положительным числом", name)
	}
	return size, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
