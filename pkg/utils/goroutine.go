package utils

import (
	"log"
	"runtime/debug"
)

// GoSafe runs fn in a goroutine and keeps a panic from taking the process down.
func GoSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("recovered panic in goroutine: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}

func ToPointer[T any](v T) *T {
	return &v
}
