package utils

import "io"

// maxDrain bounds how much of an unread response body is discarded.
const maxDrain = 4 << 10

// Close closes c and ignores any error.
// Use for best-effort cleanup in defer where error handling is not critical.
func Close(c io.Closer) {
	_ = c.Close()
}

// DrainAndClose discards a small unread remainder of an HTTP response body
// before closing it, so the keep-alive connection can be reused.
func DrainAndClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, maxDrain))
	_ = rc.Close()
}
