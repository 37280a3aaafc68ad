package config

import (
	"strings"
	"testing"
)

const minimalConfig = `
[classifier]
model = "glm-4-flash"

[sources.polygon]
type = "polygon"
enabled = true
`

func TestParseAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.App.Name != "newswire" {
		t.Errorf("App.Name = %q, want newswire", cfg.App.Name)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("Storage.Type = %q, want sqlite", cfg.Storage.Type)
	}
	c := cfg.Classifier
	if c.BatchSize != 5 || c.ProcessingLimit != 20 || c.ConcurrencyLimit != 1 || c.MaxRetries != 2 {
		t.Errorf("classifier defaults = %+v", c)
	}
	if c.Temperature != 0.3 {
		t.Errorf("Temperature = %v, want 0.3", c.Temperature)
	}
	if Duration(c.RetryDelay).Seconds() != 5 || Duration(c.DelayBetweenBatches).Seconds() != 2 || Duration(c.Timeout).Seconds() != 60 {
		t.Errorf("classifier durations = %s %s %s", c.RetryDelay, c.DelayBetweenBatches, c.Timeout)
	}
	if Duration(cfg.Fetch.BootstrapWindow).Hours() != 24 {
		t.Errorf("BootstrapWindow = %s, want 24h", cfg.Fetch.BootstrapWindow)
	}
	if len(cfg.Taxonomy.Allowed) != 14 {
		t.Errorf("default taxonomy has %d labels, want 14", len(cfg.Taxonomy.Allowed))
	}
	if cfg.Limiter.Type != "local" {
		t.Errorf("Limiter.Type = %q, want local", cfg.Limiter.Type)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want string
	}{
		{
			name: "no enabled sources",
			data: "[classifier]\nmodel = \"m\"\n",
			want: "at least one source",
		},
		{
			name: "missing model",
			data: "[sources.p]\ntype = \"polygon\"\nenabled = true\n",
			want: "classifier.model",
		},
		{
			name: "bad overlap",
			data: minimalConfig + "[fetch]\noverlap = \"soon\"\n",
			want: "fetch.overlap",
		},
		{
			name: "unknown source type",
			data: "[classifier]\nmodel = \"m\"\n[sources.x]\ntype = \"gopher\"\nenabled = true\n",
			want: "unsupported type",
		},
		{
			name: "reserved label in taxonomy",
			data: minimalConfig + "[taxonomy]\nallowed = [\"ERROR\"]\n",
			want: "reserved",
		},
		{
			name: "included outside allowed",
			data: minimalConfig + "[taxonomy]\nallowed = [\"A\"]\nincluded = [\"B\"]\n",
			want: "not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatalf("Parse() expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestGetters(t *testing.T) {
	t.Parallel()

	settings := map[string]interface{}{
		"category": "merger",
		"limit":    int64(50),
		"symbols":  []interface{}{"AAPL", "TSLA"},
		"enabled":  true,
		"timeout":  "15s",
	}

	if got := GetString(settings, "category", "general"); got != "merger" {
		t.Errorf("GetString = %q", got)
	}
	if got := GetString(settings, "missing", "general"); got != "general" {
		t.Errorf("GetString default = %q", got)
	}
	if got := GetInt(settings, "limit", 10); got != 50 {
		t.Errorf("GetInt = %d", got)
	}
	if got := GetStringSlice(settings, "symbols"); len(got) != 2 || got[1] != "TSLA" {
		t.Errorf("GetStringSlice = %v", got)
	}
	if !GetBool(settings, "enabled", false) {
		t.Errorf("GetBool = false")
	}
	if got := GetDuration(settings, "timeout", 0); got.Seconds() != 15 {
		t.Errorf("GetDuration = %v", got)
	}
}
