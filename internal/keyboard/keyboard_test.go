package keyboard

import "testing"

func TestPushKeyStatusDataSequence(t *testing.T) {
	d := New()
	d.PushKey('a', false)

	status, err := d.Read(statusAddr)
	if err != nil {
		t.Fatalf("status read: %v", err)
	}
	if status != 1 {
		t.Fatalf("status = %d, want 1", status)
	}

	data, err := d.Read(dataAddr)
	if err != nil {
		t.Fatalf("data read: %v", err)
	}
	if data != 'a' {
		t.Fatalf("data = %q, want 'a'", data)
	}

	status, err = d.Read(statusAddr)
	if err != nil {
		t.Fatalf("status read 2: %v", err)
	}
	if status != 0 {
		t.Fatalf("status after drain = %d, want 0", status)
	}

	// Sticky last key: data still reads 'a' with an empty queue.
	data, err = d.Read(dataAddr)
	if err != nil {
		t.Fatalf("data read 2: %v", err)
	}
	if data != 'a' {
		t.Fatalf("sticky data = %q, want 'a'", data)
	}
}

func TestStatusAndDataWordReadsAreZeroPadded(t *testing.T) {
	d := New()
	d.PushKey('z', false)

	for _, off := range []uint32{1, 2, 3} {
		b, err := d.Read(statusAddr + off)
		if err != nil {
			t.Fatalf("status+%d read: %v", off, err)
		}
		if b != 0 {
			t.Fatalf("status+%d = %d, want 0", off, b)
		}
		b, err = d.Read(dataAddr + off)
		if err != nil {
			t.Fatalf("data+%d read: %v", off, err)
		}
		if b != 0 {
			t.Fatalf("data+%d = %d, want 0", off, b)
		}
	}
}

func TestHoldMapTracksPressAndRelease(t *testing.T) {
	d := New()
	const code = 5

	held, err := d.Read(holdBase + code)
	if err != nil {
		t.Fatalf("hold read: %v", err)
	}
	if held != 0 {
		t.Fatalf("hold before press = %d, want 0", held)
	}

	d.PushKey(code, false)
	held, err = d.Read(holdBase + code)
	if err != nil {
		t.Fatalf("hold read after press: %v", err)
	}
	if held != 1 {
		t.Fatalf("hold after press = %d, want 1", held)
	}

	d.PushKey(code, true)
	held, err = d.Read(holdBase + code)
	if err != nil {
		t.Fatalf("hold read after release: %v", err)
	}
	if held != 0 {
		t.Fatalf("hold after release = %d, want 0", held)
	}
}

func TestReleaseDoesNotEnqueueData(t *testing.T) {
	d := New()
	d.PushKey('q', true)

	status, err := d.Read(statusAddr)
	if err != nil {
		t.Fatalf("status read: %v", err)
	}
	if status != 0 {
		t.Fatalf("status after release-only = %d, want 0", status)
	}
}

func TestUnmappedWithinSelectorFails(t *testing.T) {
	d := New()
	if _, err := d.Read(holdBase + holdCount); err == nil {
		t.Fatal("expected unmapped error past the hold map")
	}
}

func TestWriteIsAlwaysRejected(t *testing.T) {
	d := New()
	if err := d.Write(statusAddr, 1); err == nil {
		t.Fatal("expected write to keyboard selector to fail")
	}
}
