package async

// Promise runs f in its own goroutine and delivers its result on the
// returned channel. The channel is buffered, so an abandoned promise does
// not leak its goroutine.
func Promise[R any](f func() R) <-chan R {
	out := make(chan R, 1)
	go func() {
		out <- f()
		close(out)
	}()
	return out
}
