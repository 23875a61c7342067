package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Тесты таблицы политик: точное совпадение, префикс по границе сегмента,
// выбор самого специфичного паттерна, default для незнакомых маршрутов.

func TestPolicyTable_Lookup(t *testing.T) {
	t.Parallel()

	def := Policy{MaxRequests: 300, Window: time.Minute}

	table := NewPolicyTable(def)
	table.Set("POST /auth/login", Policy{MaxRequests: 5, Window: time.Minute})
	table.Set("POST /auth", Policy{MaxRequests: 50, Window: time.Minute})
	table.Set("GET /catalog", Policy{MaxRequests: 100, Window: time.Minute})

	tests := []struct {
		name     string
		routeKey string
		want     Policy
	}{
		{name: "exact match", routeKey: "POST /auth/login", want: Policy{5, time.Minute}},
		{name: "longest pattern wins", routeKey: "POST /auth/login/extra", want: Policy{5, time.Minute}},
		{name: "prefix at segment boundary", routeKey: "GET /catalog/42", want: Policy{100, time.Minute}},
		{name: "prefix inside segment does not match", routeKey: "GET /catalogue", want: def},
		{name: "unknown route gets default", routeKey: "GET /healthz", want: def},
		{name: "method is part of the key", routeKey: "GET /auth/login", want: def},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, table.Lookup(tt.routeKey))
		})
	}
}

func TestPolicyTable_Default(t *testing.T) {
	t.Parallel()

	def := Policy{MaxRequests: 10, Window: time.Second}
	table := NewPolicyTable(def)

	require.Equal(t, def, table.Default())
	require.Equal(t, def, table.Lookup("GET /anything"))
}
