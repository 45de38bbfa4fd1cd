package status

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/rx380-logger/internal/meter"
	"github.com/nerrad567/rx380-logger/internal/scheduler"
	"github.com/nerrad567/rx380-logger/internal/sink"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

// Console writes one line per pipeline event to w, for an operator
// watching the terminal. Write errors are ignored.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	loc *time.Location
}

// NewConsole creates a Console printing timestamps in loc (UTC if nil).
func NewConsole(w io.Writer, loc *time.Location) *Console {
	if loc == nil {
		loc = time.UTC
	}
	return &Console{w: w, loc: loc}
}

// OnReading prints the reading's channels in map order.
func (c *Console) OnReading(r meter.Reading) {
	var b strings.Builder
	b.WriteString(r.Timestamp().In(c.loc).Format(consoleTimeLayout))
	values := r.Values()
	for i, ch := range r.Channels() {
		fmt.Fprintf(&b, " %s=%g", ch, values[i])
	}
	c.println(b.String())
}

// OnReadError implements scheduler.Observer.
func (c *Console) OnReadError(err error) {
	c.println("read error: " + err.Error())
}

// OnFlush prints failed sinks only; a clean flush is silent.
func (c *Console) OnFlush(result sink.FlushResult) {
	for _, f := range result.Failures {
		c.println(fmt.Sprintf("sink %s failed writing %d rows: %v", f.Sink, f.Rows, f.Err))
	}
}

// OnStateChange implements scheduler.Observer.
func (c *Console) OnStateChange(from, to scheduler.State) {
	c.println(fmt.Sprintf("state: %s -> %s", from, to))
}

func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	//nolint:errcheck // console output is best effort
	io.WriteString(c.w, line+"\n")
}
