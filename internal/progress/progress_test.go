package progress

import (
	"bytes"
	"sync"
	"testing"
)

func TestNilBarIsNoop(t *testing.T) {
	var p *Bar = New(false, nil, "x")
	if p != nil {
		t.Fatal("disabled bar should be nil")
	}
	p.Start(10)
	p.Add(3)
	p.Finish()
}

func TestBarConcurrentAdd(t *testing.T) {
	var buf bytes.Buffer
	p := New(true, &buf, "comparing")
	p.Start(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Add(1)
			}
		}()
	}
	wg.Wait()
	p.Finish()
	// Finish twice is harmless.
	p.Finish()
}

func TestBarZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	p := New(true, &buf, "comparing")
	p.Start(0)
	p.Add(5)
	p.Finish()
	if buf.Len() != 0 {
		t.Errorf("expected no output for an empty run, got %q", buf.String())
	}
}

func TestSpinnerStop(t *testing.T) {
	var buf bytes.Buffer
	stop := StartSpinner(true, &buf, "embedding")
	stop()
	stop()

	StartSpinner(false, nil, "noop")()
}
