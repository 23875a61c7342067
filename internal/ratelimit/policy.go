// ratelimit вычисляет решения о допуске запросов по фиксированным окнам,
// опираясь на разделяемые счётчики store.RateCounterStore и статическую
// таблицу политик по маршрутам.
package ratelimit

import (
	"strings"
	"time"
)

// Policy — лимит одного маршрута: не более MaxRequests за окно Window.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

// PolicyTable — статическая таблица политик, ключ — паттерн маршрута
// вида "METHOD /path/prefix". При поиске выигрывает самый длинный
// (наиболее специфичный) подходящий паттерн; маршруты без совпадений
// получают щедрый default.
type PolicyTable struct {
	entries map[string]Policy
	def     Policy
}

// NewPolicyTable создаёт таблицу с политикой по умолчанию.
func NewPolicyTable(def Policy) *PolicyTable {
	return &PolicyTable{
		entries: make(map[string]Policy),
		def:     def,
	}
}

// Set регистрирует политику для паттерна маршрута.
// Вызывается при сборке роутера, до начала обслуживания запросов;
// таблица после этого только читается.
func (t *PolicyTable) Set(pattern string, p Policy) {
	t.entries[pattern] = p
}

// Default возвращает политику по умолчанию.
func (t *PolicyTable) Default() Policy { return t.def }

// Lookup возвращает политику для routeKey ("METHOD /path").
// Паттерн подходит при точном совпадении или как префикс по границе
// сегмента пути; из подходящих выбирается самый длинный.
func (t *PolicyTable) Lookup(routeKey string) Policy {
	best := -1
	policy := t.def

	for pattern, p := range t.entries {
		if !matches(routeKey, pattern) {
			continue
		}

		if len(pattern) > best {
			best = len(pattern)
			policy = p
		}
	}

	return policy
}

// matches — точное совпадение или префикс, заканчивающийся на границе
// сегмента ("GET /users" покрывает "GET /users/42", но не "GET /userservice").
func matches(routeKey, pattern string) bool {
	if routeKey == pattern {
		return true
	}

	if !strings.HasPrefix(routeKey, pattern) {
		return false
	}

	return strings.HasSuffix(pattern, "/") || routeKey[len(pattern)] == '/'
}
