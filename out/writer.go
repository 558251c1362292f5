package out

import (
	"bufio"
	"bytes"
	"io"
)

type BufferWriter struct {
	b *bytes.Buffer
	w *bufio.Writer
}

func NewBufferWriter() *BufferWriter {
	var b bytes.Buffer
	return &BufferWriter{&b, bufio.NewWriter(&b)}
}

func (bw *BufferWriter) Write(p []byte) (nn int, err error) {
	return bw.w.Write(p)
}

func (bw *BufferWriter) String() string {
	bw.w.Flush()
	return bw.b.String()
}

// Reply writes msg to w, reporting whether anything was written. Empty
// messages are skipped so callers can suppress the line terminator too.
func Reply(w io.Writer, msg string) bool {
	if msg == "" {
		return false
	}
	_, err := w.Write([]byte(msg))
	return err == nil
}

// ReplyNL writes msg followed by a newline, skipping empty messages.
func ReplyNL(w io.Writer, msg string) bool {
	if Reply(w, msg) {
		return Reply(w, "\n")
	}
	return false
}
