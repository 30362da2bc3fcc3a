package utils

import (
	"testing"
	"time"
)

func TestRenderMessage(t *testing.T) {
	tests := []struct {
		name     string
		template string
		leadName string
		want     string
	}{
		{"english placeholder", "Oi {{name}}!", "Maria", "Oi Maria!"},
		{"portuguese placeholder", "Olá {{nome}}, tudo bem?", "João", "Olá João, tudo bem?"},
		{"mixed case", "{{Name}} / {{NOME}}", "Ana", "Ana / Ana"},
		{"repeated placeholder", "{{name}} {{name}}", "Ana", "Ana Ana"},
		{"no placeholder", "Promoção de hoje!", "Maria", "Promoção de hoje!"},
		{"empty name falls back", "Oi {{name}}!", "", "Oi Contato!"},
		{"blank name falls back", "Oi {{nome}}!", "   ", "Oi Contato!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderMessage(tt.template, tt.leadName, "Contato"); got != tt.want {
				t.Errorf("RenderMessage(%q, %q) = %q, want %q", tt.template, tt.leadName, got, tt.want)
			}
		})
	}
}

func TestDayKeyUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	// 2025-03-11 01:30 UTC 在圣保罗还是 3 月 10 日
	utc := time.Date(2025, 3, 11, 1, 30, 0, 0, time.UTC)
	if got := DayKey(utc, loc); got != "2025-03-10" {
		t.Errorf("DayKey = %q, want 2025-03-10", got)
	}
	if got := DayKey(utc, time.UTC); got != "2025-03-11" {
		t.Errorf("DayKey in UTC = %q, want 2025-03-11", got)
	}
}
