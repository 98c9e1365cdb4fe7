package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// HeaderProcessTime carries the handler time in seconds.
const HeaderProcessTime = "X-Process-Time"

// FormatSeconds renders d as a decimal number of seconds, exact to the nanosecond.
func FormatSeconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return decimal.New(d.Nanoseconds(), -9).String()
}

// Timing sets X-Process-Time on every response. Headers are committed on the
// first body write, so the value is measured at that moment, or after the
// chain returns when the handler never wrote. A panicking handler gets no
// header.
func Timing() gin.HandlerFunc {
	return func(c *gin.Context) {
		tw := &timingWriter{ResponseWriter: c.Writer, start: time.Now()}
		c.Writer = tw
		defer func() { c.Writer = tw.ResponseWriter }()

		c.Next()

		if !tw.Written() {
			tw.stamp()
		}
	}
}

type timingWriter struct {
	gin.ResponseWriter
	start   time.Time
	stamped bool
}

func (w *timingWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	w.Header().Set(HeaderProcessTime, FormatSeconds(time.Since(w.start)))
}

func (w *timingWriter) WriteHeaderNow() {
	if !w.Written() {
		w.stamp()
	}
	w.ResponseWriter.WriteHeaderNow()
}

func (w *timingWriter) Write(data []byte) (int, error) {
	if !w.Written() {
		w.stamp()
	}
	return w.ResponseWriter.Write(data)
}

func (w *timingWriter) WriteString(s string) (int, error) {
	if !w.Written() {
		w.stamp()
	}
	return w.ResponseWriter.WriteString(s)
}

func (w *timingWriter) Flush() {
	if !w.Written() {
		w.stamp()
	}
	w.ResponseWriter.Flush()
}
