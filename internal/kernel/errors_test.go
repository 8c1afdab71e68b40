package kernel

import (
	"errors"
	"os"
	"testing"
)

func TestInterfaceErrorUnwrap(t *testing.T) {
	err := newInterfaceError(SubsystemRoute, "wg-welt", os.ErrNotExist)

	if !errors.Is(err, os.ErrNotExist) {
		t.Error("InterfaceError does not unwrap to its cause")
	}
	want := "Route: interface wg-welt: file does not exist"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
