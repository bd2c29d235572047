package audio

import (
	"errors"
	"testing"
)

func TestRingBuffer_Write(t *testing.T) {
	rb := NewRingBuffer(10)

	// Write data that fits
	dropped := rb.Write([]float32{0.1, 0.2, 0.3, 0.4, 0.5})
	if dropped != 0 {
		t.Errorf("Expected no dropped samples, got %d", dropped)
	}
	if rb.Available() != 5 {
		t.Errorf("Expected available 5, got %d", rb.Available())
	}

	// Write more data
	rb.Write([]float32{0.6, 0.7, 0.8})
	if rb.Available() != 8 {
		t.Errorf("Expected available 8, got %d", rb.Available())
	}
}

func TestRingBuffer_RoundTrip(t *testing.T) {
	rb := NewRingBuffer(16)

	var written []float32
	chunks := [][]float32{{1, 2, 3}, {4}, {5, 6, 7, 8, 9}, {10, 11, 12, 13, 14, 15, 16}}
	for _, c := range chunks {
		rb.Write(c)
		written = append(written, c...)
	}

	got, err := rb.Read(len(written))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	for i := range written {
		if got[i] != written[i] {
			t.Fatalf("Sample %d: expected %v, got %v", i, written[i], got[i])
		}
	}
	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty after reading everything")
	}
}

func TestRingBuffer_Overwrite(t *testing.T) {
	rb := NewRingBuffer(5)

	// Write N > capacity samples across several writes
	rb.Write([]float32{1, 2, 3})
	dropped := rb.Write([]float32{4, 5, 6, 7})
	if dropped != 2 {
		t.Errorf("Expected 2 dropped samples, got %d", dropped)
	}
	if !rb.IsFull() {
		t.Error("Expected buffer to be full")
	}

	got, err := rb.Read(5)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	expected := []float32{3, 4, 5, 6, 7}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Expected %v at position %d, got %v", expected[i], i, got[i])
		}
	}
}

func TestRingBuffer_OversizedWrite(t *testing.T) {
	rb := NewRingBuffer(4)

	data := make([]float32, 11)
	for i := range data {
		data[i] = float32(i)
	}
	dropped := rb.Write(data)
	if dropped != 7 {
		t.Errorf("Expected 7 dropped samples, got %d", dropped)
	}

	got, err := rb.Read(4)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	expected := []float32{7, 8, 9, 10}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Expected %v at position %d, got %v", expected[i], i, got[i])
		}
	}
}

func TestRingBuffer_ReadInsufficient(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]float32{1, 2, 3})

	got, err := rb.Read(5)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}
	if got != nil {
		t.Errorf("Expected no samples, got %v", got)
	}
	// State must be untouched
	if rb.Available() != 3 {
		t.Errorf("Expected available 3 after failed read, got %d", rb.Available())
	}

	got, err = rb.Read(3)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got[0] != 1 || got[2] != 3 {
		t.Errorf("Read incorrect data: %v", got)
	}
}

func TestRingBuffer_ReadEmpty(t *testing.T) {
	rb := NewRingBuffer(10)

	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty initially")
	}

	got, err := rb.Read(0)
	if err != nil {
		t.Errorf("Expected zero-length read to succeed, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected 0 samples, got %d", len(got))
	}

	if _, err := rb.Read(1); err == nil {
		t.Error("Expected error reading from empty buffer")
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]float32{1, 2, 3, 4, 5})

	rb.Clear()
	if rb.Available() != 0 {
		t.Errorf("Expected available 0 after clear, got %d", rb.Available())
	}
	if rb.Capacity() != 10 {
		t.Errorf("Expected capacity 10 after clear, got %d", rb.Capacity())
	}
}

func TestRingBuffer_WrapAround(t *testing.T) {
	rb := NewRingBuffer(5)

	rb.Write([]float32{1, 2, 3, 4})
	if _, err := rb.Read(2); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	// Write 3 more (wraps around the end of the backing array)
	rb.Write([]float32{5, 6, 7})
	if rb.Available() != 5 {
		t.Errorf("Expected available 5, got %d", rb.Available())
	}

	got, err := rb.Read(5)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	expected := []float32{3, 4, 5, 6, 7}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("Expected %v at position %d, got %v", expected[i], i, got[i])
		}
	}
}
