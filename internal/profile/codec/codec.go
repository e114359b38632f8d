package codec

import (
	"github.com/bitmark-inc/logger"
)

// Codec encodes and decodes profiles. The logger is optional; a nil logger
// silences per-field decode warnings.
type Codec struct {
	log *logger.L
}

// New returns a codec that reports tolerated decode problems to log.
func New(log *logger.L) *Codec {
	return &Codec{log: log}
}

func (c *Codec) warnf(format string, args ...interface{}) {
	if c == nil || c.log == nil {
		return
	}
	c.log.Warnf(format, args...)
}
