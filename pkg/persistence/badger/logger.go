package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// badgerLoggerAdapter routes badger's printf logging into zap. Badger's info
// output is compaction chatter, so it is demoted to debug.
type badgerLoggerAdapter struct {
	logger *zap.Logger
}

var _ badgerdb.Logger = (*badgerLoggerAdapter)(nil)

func (b *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	b.logger.Error(message(format, args))
}

func (b *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	b.logger.Warn(message(format, args))
}

func (b *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	b.logger.Debug(message(format, args))
}

func (b *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	b.logger.Debug(message(format, args))
}

// badger terminates most lines with a newline
func message(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
