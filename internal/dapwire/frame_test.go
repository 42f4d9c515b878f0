package dapwire

import (
	"bytes"
	"fmt"
	"testing"
)

func TestFramerRoundTrip(t *testing.T) {
	bodies := [][]byte{
		[]byte(`{"seq":1,"type":"request","command":"initialize"}`),
		[]byte(`{"seq":2,"type":"event","event":"output"}`),
	}

	var wire []byte
	for _, b := range bodies {
		wire = append(wire, EncodeFrame(b)...)
	}

	f := NewFramer(nil)
	f.Feed(wire)

	for i, want := range bodies {
		got, ok, err := f.Next()
		if err != nil {
			t.Fatalf("frame %d: unexpected error: %v", i, err)
		}
		if !ok {
			t.Fatalf("frame %d: expected a complete frame", i)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: got %q, want %q", i, got, want)
		}
	}

	if _, ok, _ := f.Next(); ok {
		t.Fatal("expected no more frames")
	}
}

func TestFramerPartialRead(t *testing.T) {
	body := []byte(`{"seq":1,"type":"request","command":"launch"}`)
	wire := EncodeFrame(body)

	f := NewFramer(nil)
	f.Feed(wire[:10])
	if _, ok, _ := f.Next(); ok {
		t.Fatal("expected incomplete frame to not be ready")
	}

	f.Feed(wire[10:])
	got, ok, err := f.Next()
	if err != nil || !ok {
		t.Fatalf("expected complete frame after feeding the rest, ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got %q, want %q", got, body)
	}
}

func TestFramerInvalidContentLengthIsDiscarded(t *testing.T) {
	f := NewFramer(nil)

	// 非数字的 Content-Length，后面紧跟一条合法帧。
	f.Feed([]byte("Content-Length: notanumber\r\n\r\n"))
	good := []byte(`{"seq":3,"type":"event","event":"thread"}`)
	f.Feed(EncodeFrame(good))

	got, ok, err := f.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected the framer to recover and find the valid frame")
	}
	if !bytes.Equal(got, good) {
		t.Fatalf("got %q, want %q", got, good)
	}
}

func TestFramerNegativeContentLengthIsDiscarded(t *testing.T) {
	f := NewFramer(nil)
	f.Feed([]byte("Content-Length: -5\r\n\r\n"))
	good := []byte(`{"seq":4,"type":"response","request_seq":1,"success":true,"command":"next"}`)
	f.Feed(EncodeFrame(good))

	got, ok, err := f.Next()
	if err != nil || !ok {
		t.Fatalf("expected recovery, ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, good) {
		t.Fatalf("got %q, want %q", got, good)
	}
}

func TestFramerCaseInsensitiveHeader(t *testing.T) {
	f := NewFramer(nil)
	body := []byte(`{"seq":1,"type":"event","event":"initialized"}`)
	f.Feed([]byte(fmt.Sprintf("content-length: %d\r\n\r\n", len(body))))
	f.Feed(body)

	got, ok, err := f.Next()
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got %q, want %q", got, body)
	}
}

func TestFramerMultipleFramesInOneFeed(t *testing.T) {
	a := []byte(`{"seq":1,"type":"event","event":"a"}`)
	b := []byte(`{"seq":2,"type":"event","event":"b"}`)
	c := []byte(`{"seq":3,"type":"event","event":"c"}`)

	f := NewFramer(nil)
	f.Feed(append(append(EncodeFrame(a), EncodeFrame(b)...), EncodeFrame(c)...))

	for _, want := range [][]byte{a, b, c} {
		got, ok, err := f.Next()
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
}
