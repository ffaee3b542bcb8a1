package config

import (
	"strings"
	"testing"
	"time"
)

func TestGetPath(t *testing.T) {
	cfg := Defaults()
	cfg.Discord.Token = "super-secret"

	got, err := cfg.GetPath("render.engine")
	if err != nil || got != "typst" {
		t.Fatalf("GetPath(render.engine) = %v, %v", got, err)
	}

	got, err = cfg.GetPath("render.timeout")
	if err != nil || got != (30 * time.Second).String() {
		t.Fatalf("GetPath(render.timeout) = %v, %v", got, err)
	}

	got, err = cfg.GetPath("discord.token")
	if err != nil || got != redactedValue {
		t.Fatalf("GetPath(discord.token) = %v, %v; want redacted", got, err)
	}

	if _, err := cfg.GetPath("render.nope"); err == nil {
		t.Fatal("GetPath(render.nope) error = nil")
	}
	if _, err := cfg.GetPath("render.engine.deeper"); err == nil {
		t.Fatal("GetPath through a scalar should fail")
	}
}

func TestRedactedDoesNotMutate(t *testing.T) {
	cfg := Defaults()
	cfg.Discord.Token = "t"
	cfg.API.Auth.APIKey = "k"
	cfg.API.Auth.Tokens = []APIToken{{Token: "scoped", Scopes: []string{"commands:ro"}}}

	out, err := cfg.YAML()
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"scoped", "token: t\n", "api_key: k\n"} {
		if strings.Contains(string(out), secret) {
			t.Errorf("YAML() leaked %q:\n%s", secret, out)
		}
	}
	if cfg.Discord.Token != "t" || cfg.API.Auth.Tokens[0].Token != "scoped" {
		t.Error("Redacted() mutated the original config")
	}
}
