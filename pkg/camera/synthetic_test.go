package camera

import (
	"context"
	"testing"
)

func TestSyntheticDrawsFrames(t *testing.T) {
	s := NewSynthetic(32, 24, 0)
	s.Draw = func(n int, pix []uint8) {
		pix[0] = uint8(n + 1)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if f.Width != 32 || f.Height != 24 {
			t.Fatalf("frame is %dx%d, want 32x24", f.Width, f.Height)
		}
		if got := f.Gray[0]; got != uint8(i+1) {
			t.Errorf("frame %d pixel = %d, want %d", i, got, i+1)
		}
	}
}

func TestSyntheticFailAfter(t *testing.T) {
	s := NewSynthetic(16, 16, 0)
	s.FailAfter = 2

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := s.Next(ctx); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if _, err := s.Next(ctx); err == nil {
		t.Fatal("expected capture fault after FailAfter frames")
	}
}

func TestSyntheticClose(t *testing.T) {
	s := NewSynthetic(16, 16, 5)
	s.Close()

	if _, err := s.Next(context.Background()); err != ErrSourceClosed {
		t.Fatalf("err = %v, want ErrSourceClosed", err)
	}
	// Close is idempotent.
	s.Close()
}

func TestSyntheticContextCancel(t *testing.T) {
	s := NewSynthetic(16, 16, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Next(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
