package model

import (
	"testing"
)

func TestStringArrayValue(t *testing.T) {
	t.Run("empty array", func(t *testing.T) {
		var s StringArray
		v, err := s.Value()
		if err != nil {
			t.Fatalf("Value() error = %v", err)
		}
		if v != "[]" {
			t.Errorf("Value() = %v, want []", v)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		s := StringArray{"auth", "token", "session"}
		v, err := s.Value()
		if err != nil {
			t.Fatalf("Value() error = %v", err)
		}

		var got StringArray
		if err := got.Scan(v); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		if len(got) != 3 || got[0] != "auth" || got[2] != "session" {
			t.Errorf("round trip = %v, want %v", got, s)
		}
	})

	t.Run("scan nil", func(t *testing.T) {
		var s StringArray
		if err := s.Scan(nil); err != nil {
			t.Fatalf("Scan(nil) error = %v", err)
		}
		if s == nil || len(s) != 0 {
			t.Errorf("Scan(nil) = %v, want empty slice", s)
		}
	})
}

func TestJSONMapRoundTrip(t *testing.T) {
	m := JSONMap{"gitlab": "secret-1", "maxLines": float64(40)}
	v, err := m.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	var got JSONMap
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if got["gitlab"] != "secret-1" {
		t.Errorf("got[gitlab] = %v, want secret-1", got["gitlab"])
	}
	if got["maxLines"] != float64(40) {
		t.Errorf("got[maxLines] = %v, want 40", got["maxLines"])
	}
}

func TestFileRefListRoundTrip(t *testing.T) {
	refs := FileRefList{
		{Path: "src/a.ts", LineStart: 10, LineEnd: 20},
		{Path: "src/b.ts"},
	}
	v, err := refs.Value()
	if err != nil {
		t.Fatalf("Value() error = %v", err)
	}

	var got FileRefList
	if err := got.Scan(v); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Path != "src/a.ts" || got[0].LineStart != 10 || got[0].LineEnd != 20 {
		t.Errorf("got[0] = %+v", got[0])
	}
}

func TestTenantWebhookSecret(t *testing.T) {
	tenant := &Tenant{
		Slug:           "t1",
		WebhookSecrets: JSONMap{"gitlab": "s3cr3t"},
	}
	if got := tenant.WebhookSecret("gitlab"); got != "s3cr3t" {
		t.Errorf("WebhookSecret(gitlab) = %q, want s3cr3t", got)
	}
	if got := tenant.WebhookSecret("github"); got != "" {
		t.Errorf("WebhookSecret(github) = %q, want empty", got)
	}

	empty := &Tenant{Slug: "t2"}
	if got := empty.WebhookSecret("gitlab"); got != "" {
		t.Errorf("WebhookSecret on nil map = %q, want empty", got)
	}
}

func TestRunStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{RunStatusQueued, false},
		{RunStatusRunning, false},
		{RunStatusSucceeded, true},
		{RunStatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestAllModels(t *testing.T) {
	models := AllModels()
	if len(models) != 11 {
		t.Errorf("AllModels() returned %d models, want 11", len(models))
	}
	for i, m := range models {
		if m == nil {
			t.Errorf("AllModels()[%d] is nil", i)
		}
	}
}
