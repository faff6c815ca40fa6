package taxonomy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinLookup(t *testing.T) {
	c := Builtin()

	res := c.Lookup("Stakeholder")
	if res.Fallback {
		t.Error("Stakeholder should resolve without fallback")
	}
	if res.Type.Name != "Stakeholder" {
		t.Errorf("resolved %q", res.Type.Name)
	}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	c := Builtin()
	if res := c.Lookup("  resource "); res.Fallback || res.Type.Name != "Resource" {
		t.Errorf("lookup failed: %+v", res)
	}
}

func TestLookupMissFallsBackExplicitly(t *testing.T) {
	c := Builtin()

	res := c.Lookup("Cryptid")
	if !res.Fallback {
		t.Error("miss should set Fallback")
	}
	if res.Type.Name != DefaultTypeName {
		t.Errorf("fallback resolved %q, want %q", res.Type.Name, DefaultTypeName)
	}
}

func TestLoadMissingFileUsesBuiltin(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res := c.Lookup("Research"); res.Fallback {
		t.Error("builtin Research type missing")
	}
}

func TestLoadCustomCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	body := `
- name: Vendor
  definition: An external supplier.
  icon: truck
  fields:
    - name: content
      label: Vendor
      type: text
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res := c.Lookup("Vendor"); res.Fallback || res.Type.Icon != "truck" {
		t.Errorf("Vendor lookup: %+v", res)
	}
	// Default entry is injected even when the file omits it
	if res := c.Lookup("nothing"); !res.Fallback || res.Type.Name != DefaultTypeName {
		t.Errorf("fallback lookup: %+v", res)
	}
}

func TestLoadMalformedCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	if err := os.WriteFile(path, []byte("{not yaml: ["), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed catalog should fail to load")
	}
}
