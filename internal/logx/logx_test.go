package logx

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestGetScopeFollowsSharedLevel(t *testing.T) {
	t.Cleanup(func() { Init("info", "text") })

	scoped := GetScope("presence")
	if scoped.Scope() != "presence" {
		t.Fatalf("scope = %q", scoped.Scope())
	}
	Init("error", "json")
	if scoped.Zap().Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("warn should be disabled after raising the level")
	}
	Init("debug", "text")
	if !scoped.Zap().Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug should be enabled after lowering the level")
	}
}
