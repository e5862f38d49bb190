package cache

import "testing"

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.1, -0.25, 3.5, 0}
	buf := encodeVector(vec)
	got := decodeVector(buf)

	if len(got) != len(vec) {
		t.Fatalf("len = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("index %d: got %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestRedisKeyIsNamespaced(t *testing.T) {
	if got := redisKey("abc"); got != "smartrag:embcache:abc" {
		t.Errorf("redisKey = %q, want namespaced key", got)
	}
}
