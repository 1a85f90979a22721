package nfs

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const (
	procMounts = "/proc/self/mounts"
	fstabPath  = "/etc/fstab"
)

// Mounts implements sharedfs.MountTable against the kernel mount table
// and fstab.
type Mounts struct {
	mountsPath string
	fstab      string
}

// MountsOption configures Mounts.
type MountsOption func(*Mounts)

// WithTablePaths overrides the mount table and fstab locations, for
// tests.
func WithTablePaths(mounts, fstab string) MountsOption {
	return func(m *Mounts) {
		m.mountsPath = mounts
		m.fstab = fstab
	}
}

func NewMounts(opts ...MountsOption) *Mounts {
	m := &Mounts{mountsPath: procMounts, fstab: fstabPath}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsMounted checks the kernel mount table for target. State is read from
// the kernel, never inferred from command failure text.
func (m *Mounts) IsMounted(target string) (bool, error) {
	f, err := os.Open(m.mountsPath)
	if err != nil {
		return false, fmt.Errorf("read mount table: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && unescapeMountPath(fields[1]) == target {
			return true, nil
		}
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("scan mount table: %w", err)
	}
	return false, nil
}

// Persist appends an fstab entry unless one for target already exists.
func (m *Mounts) Persist(endpoint, target, options string) error {
	if options == "" {
		options = "defaults"
	}
	entry := fmt.Sprintf("%s %s nfs %s 0 0", endpoint, target, options)

	current, err := os.ReadFile(m.fstab)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read fstab: %w", err)
	}
	for _, line := range strings.Split(string(current), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && !strings.HasPrefix(fields[0], "#") && fields[1] == target {
			return nil
		}
	}

	f, err := os.OpenFile(m.fstab, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open fstab: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, entry); err != nil {
		return fmt.Errorf("append fstab entry: %w", err)
	}
	return nil
}

// unescapeMountPath decodes the octal escapes /proc/self/mounts uses for
// spaces and tabs in mount points.
func unescapeMountPath(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return r.Replace(s)
}
