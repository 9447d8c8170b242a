package httpmiddleware

import "testing"

func TestTokenBucketExhaustion(t *testing.T) {
	l := NewSimpleTokenBucket(3, 3)
	for i := 0; i < 3; i++ {
		if !l.allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.allow("1.2.3.4") {
		t.Error("request past capacity should be rejected")
	}
	// Other clients are unaffected.
	if !l.allow("5.6.7.8") {
		t.Error("separate key must have its own bucket")
	}
}

func TestTokenBucketDefaultCapacity(t *testing.T) {
	l := NewSimpleTokenBucket(0, 60)
	if l.capacity != 60 {
		t.Errorf("capacity = %d, want rate fallback 60", l.capacity)
	}
}
