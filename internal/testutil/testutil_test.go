package testutil

import (
	"errors"
	"os"
	"testing"
)

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	t.Parallel()
	AssertError(t, errors.New("test error"))
}

func TestAssertClose(t *testing.T) {
	t.Parallel()
	AssertClose(t, 1.0000001, 1, 1e-6)
	AssertClose(t, -2, -2, 0)
	AssertAllClose(t, []float64{1, 2, 3}, []float64{1, 2, 3.0000001}, 1e-6)
}

func TestWriteTempFile(t *testing.T) {
	t.Parallel()
	path := WriteTempFile(t, "x.txt", []byte("hello"))
	data, err := os.ReadFile(path)
	AssertNoError(t, err)
	if string(data) != "hello" {
		t.Errorf("read %q, want %q", data, "hello")
	}
}
