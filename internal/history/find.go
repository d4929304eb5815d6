// Пакет history — журналы истории: метаданные с монотонно возрастающими
// идентификаторами (снимки по времени), бинарный поиск и выборки по диапазону.
package history

import (
	"fmt"
	"sort"
)

// Policy — правило выбора позиции в FindIndex.
type Policy int

const (
	// Equal — точное совпадение.
	Equal Policy = iota
	// Greater — ближайший элемент строго больше искомого.
	Greater
	// GreaterOrEqual — совпадение или ближайший больший.
	GreaterOrEqual
	// Less — ближайший элемент строго меньше искомого.
	Less
	// LessOrEqual — совпадение или ближайший меньший.
	LessOrEqual
)

func (p Policy) String() string {
	switch p {
	case Equal:
		return "equal"
	case Greater:
		return "greater"
	case GreaterOrEqual:
		return "greater_or_equal"
	case Less:
		return "less"
	case LessOrEqual:
		return "less_or_equal"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// FindIndex — бинарный поиск в отсортированной по возрастанию последовательности из n элементов.
// cmp(i) сравнивает i-й элемент с искомым (<0, 0, >0).
// Возвращает индекс элемента, удовлетворяющего policy, или -1.
func FindIndex(n int, cmp func(i int) int, policy Policy) int {
	// первый элемент >= искомого
	lo := sort.Search(n, func(i int) bool { return cmp(i) >= 0 })
	found := lo < n && cmp(lo) == 0

	switch policy {
	case Equal:
		if found {
			return lo
		}
		return -1
	case GreaterOrEqual:
		if lo < n {
			return lo
		}
		return -1
	case Greater:
		if found {
			lo++
		}
		if lo < n {
			return lo
		}
		return -1
	case Less:
		return lo - 1
	case LessOrEqual:
		if found {
			return lo
		}
		return lo - 1
	default:
		return -1
	}
}
