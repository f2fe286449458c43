package artifacts

import "testing"

func TestKeyLayout(t *testing.T) {
	got := ArtifactKey("proj-1", "run-1", "sbom", "bom.json")
	want := "projects/proj-1/runs/run-1/sbom/bom.json"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	got = PatchKey("proj-1", "af-1")
	want = "projects/proj-1/autofix/af-1/patch.diff"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestNewMinioStoreValidation(t *testing.T) {
	if _, err := NewMinioStore(nil, "bucket"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
