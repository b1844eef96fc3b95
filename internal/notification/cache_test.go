package notification

import "testing"

func TestDeferredCacheLifecycle(t *testing.T) {
	t.Parallel()

	var c deferredCache
	a, b := &Data{ID: "a"}, &Data{ID: "b"}
	if !c.offer(a) {
		t.Fatal("offer while caching should queue")
	}
	if !c.beginFlush() {
		t.Fatal("first beginFlush should win")
	}
	if c.beginFlush() {
		t.Fatal("second beginFlush must lose")
	}
	// Offers during the drain queue behind the backlog.
	if !c.offer(b) {
		t.Fatal("offer while draining should queue")
	}
	for _, want := range []string{"a", "b"} {
		d, ok := c.next()
		if !ok || d.ID != want {
			t.Fatalf("next = %v, %v; want %s", d, ok, want)
		}
	}
	if _, ok := c.next(); ok {
		t.Fatal("queue should be empty")
	}
	if c.offer(&Data{ID: "c"}) {
		t.Fatal("offer after drain must dispatch directly")
	}
	if st, n := c.snapshot(); st != stateFlushed || n != 0 || st.String() != "flushed" {
		t.Fatalf("snapshot = %v, %d", st, n)
	}
}
