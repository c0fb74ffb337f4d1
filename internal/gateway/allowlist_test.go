package gateway

import (
	"sync"
	"testing"
)

func TestAllowList_Allowed(t *testing.T) {
	a := NewAllowList([]string{"/api/auth/**", "/health", "/metrics"})

	tests := []struct {
		path string
		want bool
	}{
		{"/api/auth/login", true},
		{"/api/auth", true},
		{"/api/auth/internal/validate-key", true},
		{"/health", true},
		{"/metrics", true},
		{"/health/deep", false},
		{"/api/authx", false},
		{"/api/catalog/anime", false},
		{"/api/auth/../catalog/anime", false},
		{"/api/auth/./login", true},
		{"//api//auth//login", true},
		{"", false},
		{"/", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := a.Allowed(tt.path); got != tt.want {
				t.Errorf("Allowed(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestAllowList_RootWildcard(t *testing.T) {
	a := NewAllowList([]string{"/**"})
	for _, p := range []string{"/", "/anything/at/all"} {
		if !a.Allowed(p) {
			t.Errorf("Allowed(%q) = false with /**", p)
		}
	}
}

func TestAllowList_Set(t *testing.T) {
	a := NewAllowList([]string{"/health"})
	if a.Allowed("/public/x") {
		t.Fatal("unexpected match before Set")
	}
	a.Set([]string{"/public/**", " ", ""})
	if !a.Allowed("/public/x") || a.Allowed("/health") {
		t.Fatal("Set did not replace the patterns")
	}
	if got := a.Patterns(); len(got) != 1 || got[0] != "/public/**" {
		t.Fatalf("Patterns() = %v", got)
	}
}

func TestAllowList_ConcurrentSet(t *testing.T) {
	a := NewAllowList([]string{"/health"})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				a.Set([]string{"/health", "/api/auth/**"})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if !a.Allowed("/health") {
					t.Error("/health dropped during Set")
					return
				}
			}
		}()
	}
	wg.Wait()
}
