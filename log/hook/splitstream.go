package hook

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// splitHook writes entries at threshold or more severe to errWriter and
// the rest to outWriter.
type splitHook struct {
	mu        sync.Mutex
	outWriter io.Writer
	errWriter io.Writer
	threshold logrus.Level
}

func (h *splitHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *splitHook) Fire(entry *logrus.Entry) error {
	serialized, err := entry.Logger.Formatter.Format(entry)
	if err != nil {
		return err
	}

	writer := h.outWriter
	if entry.Level <= h.threshold {
		writer = h.errWriter
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = writer.Write(serialized)
	return err
}

// RegisterSplitLogger replaces the logger's output with two streams:
// entries at threshold or more severe go to errWriter, everything else to
// outWriter.
func RegisterSplitLogger(logger *logrus.Logger, outWriter io.Writer, errWriter io.Writer, threshold logrus.Level) {
	logger.SetOutput(io.Discard)
	logger.AddHook(&splitHook{
		outWriter: outWriter,
		errWriter: errWriter,
		threshold: threshold,
	})
}
