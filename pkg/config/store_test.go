package config

import "testing"

func TestNewStore(t *testing.T) {
	cfg := testConfig(t)

	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	dep, ok := store.Deployment("gpt-4")
	if !ok {
		t.Fatal("Deployment(gpt-4) not found")
	}
	if dep.Kind != KindModel {
		t.Errorf("deployment kind = %q, want %q", dep.Kind, KindModel)
	}
	if dep.Model == nil || dep.Application != nil {
		t.Error("model deployment must carry Model and not Application")
	}
	if !dep.Proxied() {
		t.Error("Proxied() = false for deployment with one upstream")
	}
	if !dep.ForwardAuthToken {
		t.Error("ForwardAuthToken = false, want true")
	}

	app, ok := store.Deployment("local-app")
	if !ok {
		t.Fatal("Deployment(local-app) not found")
	}
	if app.Kind != KindApplication {
		t.Errorf("deployment kind = %q, want %q", app.Kind, KindApplication)
	}
	if app.Proxied() {
		t.Error("Proxied() = true for deployment without upstreams")
	}

	key, ok := store.KeyRecord("dial_api_key")
	if !ok {
		t.Fatal("KeyRecord(dial_api_key) not found")
	}
	if key.Project != "TEST-PROJECT" {
		t.Errorf("key project = %q, want TEST-PROJECT", key.Project)
	}

	role, ok := store.Role(key.Role)
	if !ok {
		t.Fatalf("Role(%q) not found", key.Role)
	}
	if !role.HasLimit("gpt-4") {
		t.Error("HasLimit(gpt-4) = false, want true")
	}
	if role.HasLimit("other") {
		t.Error("HasLimit(other) = true, want false")
	}
}

func TestNewStoreUnknownLookups(t *testing.T) {
	store, err := NewStore(testConfig(t))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if _, ok := store.Deployment("nonexistent-model"); ok {
		t.Error("Deployment(nonexistent-model) = found, want missing")
	}
	if _, ok := store.KeyRecord("wrong-key"); ok {
		t.Error("KeyRecord(wrong-key) = found, want missing")
	}
	if _, ok := store.Role("wrong-role"); ok {
		t.Error("Role(wrong-role) = found, want missing")
	}
}

func TestNewStoreRejectsUnknownRoleReference(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keys["stray"] = KeyConfig{Project: "p", Role: "missing"}

	if _, err := NewStore(cfg); err == nil {
		t.Fatal("NewStore() = nil error, want failure for key referencing unknown role")
	}
}

func TestStoreUpstreamOrderPreserved(t *testing.T) {
	cfg := testConfig(t)
	m := cfg.Models["gpt-4"]
	m.Upstreams = []UpstreamConfig{
		{Endpoint: "https://a.example.com/v1", Key: "ka"},
		{Endpoint: "https://b.example.com/v1", Key: "kb"},
		{Endpoint: "https://c.example.com/v1", Key: "kc"},
	}
	cfg.Models["gpt-4"] = m

	store, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	dep, _ := store.Deployment("gpt-4")
	want := []string{"https://a.example.com/v1", "https://b.example.com/v1", "https://c.example.com/v1"}
	if len(dep.Upstreams) != len(want) {
		t.Fatalf("upstreams = %d, want %d", len(dep.Upstreams), len(want))
	}
	for i, endpoint := range want {
		if dep.Upstreams[i].Endpoint != endpoint {
			t.Errorf("upstream[%d] = %q, want %q", i, dep.Upstreams[i].Endpoint, endpoint)
		}
	}
}
