package universe

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	got, err := Parse(strings.NewReader("aapl\n\n  MSFT \r\nbrk.b\n\n"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"AAPL", "MSFT", "BRK.B"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("Expected error for missing universe file")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clean-tickers.txt")
	if err := os.WriteFile(path, []byte("NVDA\nAMD\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil || len(got) != 2 {
		t.Errorf("Expected 2 tickers, got %v (%v)", got, err)
	}
}
