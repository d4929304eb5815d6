package metadata

import (
	"fmt"
	"maps"
	"slices"
)

// Узлы документа метаданных — вложенные map[string]any глубины len(keys).
// Все функции обхода работают с ключевым путём произвольной длины.

// child возвращает дочерний узел по ключу или nil.
func child(n map[string]any, key string) (map[string]any, error) {
	v, ok := n[key]
	if !ok {
		return nil, nil
	}
	c, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("повреждён документ метаданных: узел %q имеет тип %T", key, v)
	}
	return c, nil
}

// descend спускается по ключевому пути и возвращает узел или nil, если путь отсутствует.
func descend(root map[string]any, path []string) (map[string]any, error) {
	n := root
	for _, key := range path {
		c, err := child(n, key)
		if err != nil || c == nil {
			return nil, err
		}
		n = c
	}
	return n, nil
}

// ensure спускается по пути, создавая недостающие промежуточные узлы.
func ensure(root map[string]any, path []string) (map[string]any, error) {
	n := root
	for _, key := range path {
		c, err := child(n, key)
		if err != nil {
			return nil, err
		}
		if c == nil {
			c = make(map[string]any)
			n[key] = c
		}
		n = c
	}
	return n, nil
}

// prune удаляет лист по пути и все опустевшие узлы-предки.
func prune(root map[string]any, path []string) {
	chain := make([]map[string]any, 0, len(path))
	n := root
	for _, key := range path[:len(path)-1] {
		c, err := child(n, key)
		if err != nil || c == nil {
			return
		}
		chain = append(chain, n)
		n = c
	}
	delete(n, path[len(path)-1])

	for i := len(chain) - 1; i >= 0 && len(n) == 0; i-- {
		delete(chain[i], path[i])
		n = chain[i]
	}
}

// leafVisitor получает ключи листа и сам лист; false останавливает обход.
type leafVisitor func(keys []string, leaf map[string]any) bool

// walkLeaves обходит листья на глубине depth в порядке сортировки ключей.
func walkLeaves(n map[string]any, depth int, prefix []string, visit leafVisitor) (bool, error) {
	if depth == 0 {
		return visit(slices.Clone(prefix), n), nil
	}
	for _, key := range slices.Sorted(maps.Keys(n)) {
		c, err := child(n, key)
		if err != nil {
			return false, err
		}
		if c == nil {
			continue
		}
		cont, err := walkLeaves(c, depth-1, append(prefix, key), visit)
		if err != nil || !cont {
			return cont, err
		}
	}
	return true, nil
}
