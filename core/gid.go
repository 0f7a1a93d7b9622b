package core

import (
	"bytes"
	"runtime"
	"strconv"
)

// currentGoroutineID parses the running goroutine's id from its stack
// header ("goroutine N [running]:"). Used only to detect blocking waits
// issued from the scheduling loop goroutine, which must fail fast instead
// of deadlocking the loop.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}

	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
