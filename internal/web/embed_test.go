package web

import (
	"io"
	"strings"
	"testing"
)

func TestEmbeddedUI(t *testing.T) {
	index, err := ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if !strings.Contains(string(index), `src="/app.js"`) {
		t.Fatalf("index does not load app.js")
	}
	for _, name := range []string{"/app.js", "/app.css"} {
		f, err := Static().Open(name)
		if err != nil {
			t.Fatalf("open %s: %v", name, err)
		}
		data, _ := io.ReadAll(f)
		_ = f.Close()
		if len(data) == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
}
