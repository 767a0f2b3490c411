package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aimmlab/xascat/pkg/access"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "db_path: /tmp/catalog.db\n"))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("Expected default listen addr, got %s", cfg.ListenAddr)
	}
	if cfg.DBPath != "/tmp/catalog.db" {
		t.Errorf("Expected overridden db path, got %s", cfg.DBPath)
	}
	if cfg.Access.Mode != "flat" {
		t.Errorf("Expected default flat mode, got %s", cfg.Access.Mode)
	}
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
listen_addr: ":9000"
db_path: catalog.db
data_dir: blobs
log:
  level: debug
  pretty: true
api_keys:
  - key: secret-alice
    principal: alice
  - key: secret-root
    principal: root
    admin: true
access:
  mode: dataset
  per_principal:
    alice:
      core: rw
    bob:
      default: r
datasets:
  core: ["XAS"]
`))
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}

	principals := cfg.Principals()
	if p := principals["secret-alice"]; p.ID != "alice" || p.Admin {
		t.Errorf("Expected alice principal, got %+v", p)
	}
	if p := principals["secret-root"]; !p.Admin {
		t.Errorf("Expected admin principal, got %+v", p)
	}

	policy, err := cfg.Policy()
	if err != nil {
		t.Fatalf("Failed to build policy: %v", err)
	}
	if !policy.Permissions(access.Principal{ID: "alice"}, "core").Has(access.Write) {
		t.Errorf("Expected alice to write core")
	}
	set := policy.Permissions(access.Principal{ID: "bob"}, "sandbox")
	if !set.Has(access.Read) || set.Has(access.Write) {
		t.Errorf("Expected bob's default read-only grant to apply, got %v", set)
	}

	if specs := cfg.Datasets["core"]; len(specs) != 1 || specs[0] != "XAS" {
		t.Errorf("Expected core allow-list, got %v", specs)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []string{
		"access:\n  mode: ldap\n",
		"log:\n  level: loud\n",
		"api_keys:\n  - key: k\n",
		"api_keys:\n  - key: k\n    principal: a\n  - key: k\n    principal: b\n",
		"listen_addr: \"\"\n",
	}
	for _, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("Expected error for %q", body)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Errorf("Expected error for missing file")
	}
}
