package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dgnsrekt/narrator/internal/cache"
)

func TestPrintCacheStats(t *testing.T) {
	var b bytes.Buffer
	printCacheStats(&b, "/tmp/segments", cache.ManagerStats{
		Memory: cache.Stats{Capacity: 64 << 20},
		Disk:   cache.Stats{Capacity: 512 << 20, Size: 3 << 20, Items: 1234},
	})

	out := b.String()
	for _, want := range []string{"/tmp/segments", "1,234", "3.0 MiB of 512 MiB", "64 MiB"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
