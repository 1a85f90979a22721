package preflight

import (
	"context"
	"errors"
	"testing"
	"time"

	"gridup"
)

type fakeProber struct {
	version   string
	loaded    bool
	installed bool
	probeErr  error
}

func (f *fakeProber) DriverVersion(context.Context) (string, error) {
	if f.probeErr != nil {
		return "", f.probeErr
	}
	return f.version, nil
}
func (f *fakeProber) ModuleLoaded(context.Context) (bool, error)    { return f.loaded, nil }
func (f *fakeProber) DriverInstalled(context.Context) (bool, error) { return f.installed, nil }

func quietNTP(string) (time.Duration, error) { return 0, nil }

func TestRunRejectsUnsupportedPlatform(t *testing.T) {
	tests := []struct {
		goos, goarch string
	}{
		{"darwin", "arm64"},
		{"windows", "amd64"},
		{"linux", "riscv64"},
	}
	for _, tt := range tests {
		v := New(&fakeProber{}, WithPlatform(tt.goos, tt.goarch), WithNTPOffset(quietNTP))
		_, err := v.Run(context.Background(), gridup.Config{})
		if !errors.Is(err, gridup.ErrValidation) {
			t.Errorf("Run on %s/%s: err = %v, want ErrValidation", tt.goos, tt.goarch, err)
		}
	}
}

func TestRunReturnsDriverVersionWhenLoaded(t *testing.T) {
	v := New(&fakeProber{version: "535.183.01", loaded: true},
		WithPlatform("linux", "amd64"), WithNTPOffset(quietNTP))

	got, err := v.Run(context.Background(), gridup.Config{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "535.183.01" {
		t.Errorf("driver version = %q, want 535.183.01", got)
	}
}

func TestRunDetectsRebootRequired(t *testing.T) {
	// Installed but not loaded: resolvable only by operator reboot.
	v := New(&fakeProber{installed: true}, WithPlatform("linux", "amd64"), WithNTPOffset(quietNTP))

	_, err := v.Run(context.Background(), gridup.Config{})
	if !errors.Is(err, gridup.ErrRebootRequired) {
		t.Fatalf("err = %v, want ErrRebootRequired", err)
	}
}

func TestRunFailsWithoutAnyDriver(t *testing.T) {
	v := New(&fakeProber{}, WithPlatform("linux", "amd64"), WithNTPOffset(quietNTP))

	_, err := v.Run(context.Background(), gridup.Config{})
	if !errors.Is(err, gridup.ErrPrerequisite) {
		t.Fatalf("err = %v, want ErrPrerequisite", err)
	}
}

func TestRunSkipsDriverChecksWhenHardwareSkipped(t *testing.T) {
	v := New(&fakeProber{}, WithPlatform("linux", "arm64"), WithNTPOffset(quietNTP))

	got, err := v.Run(context.Background(), gridup.Config{SkipHardware: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "" {
		t.Errorf("driver version = %q, want empty", got)
	}
}

func TestRunToleratesNTPFailure(t *testing.T) {
	v := New(&fakeProber{version: "525.60", loaded: true},
		WithPlatform("linux", "amd64"),
		WithNTPOffset(func(string) (time.Duration, error) {
			return 0, errors.New("pool unreachable")
		}))

	if _, err := v.Run(context.Background(), gridup.Config{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
