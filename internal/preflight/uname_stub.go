//go:build !linux

package preflight

func kernelRelease() string { return "" }
