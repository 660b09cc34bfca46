package domain

import "time"

// timeNow is replaced in tests that depend on creation order.
var timeNow = func() time.Time { return time.Now().UTC() }

func ptr[T any](v T) *T { return &v }

// must panics on errors that the caller's own guards already rule out.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
