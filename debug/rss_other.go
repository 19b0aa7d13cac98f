//go:build !windows && !unix

package debug

func workingSet() (uint64, error) { return 0, errUnsupported }
