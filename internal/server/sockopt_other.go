//go:build !unix

package server

import "syscall"

// reuseAddr is a no-op where the runtime's defaults already apply.
func reuseAddr(_, _ string, _ syscall.RawConn) error {
	return nil
}
