package cotask

// Logger is the minimal structured-logging surface the kernel asks of its
// host. *logrus.Logger and *logrus.Entry from github.com/sirupsen/logrus
// both satisfy it. A nil Logger is treated as the no-op implementation, so
// wiring up logging is entirely optional.
type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Warnf(string, ...any)  {}

func logOf(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}
