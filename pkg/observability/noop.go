package observability

// NoopLogger discards everything. Used in tests and as a safe default
// when a component is constructed without a logger.
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger { return &NoopLogger{} }

func (n *NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (n *NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (n *NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (n *NoopLogger) Error(msg string, fields map[string]interface{}) {}
func (n *NoopLogger) Fatal(msg string, fields map[string]interface{}) {}

func (n *NoopLogger) Debugf(format string, args ...interface{}) {}
func (n *NoopLogger) Infof(format string, args ...interface{})  {}
func (n *NoopLogger) Warnf(format string, args ...interface{})  {}
func (n *NoopLogger) Errorf(format string, args ...interface{}) {}

func (n *NoopLogger) WithPrefix(prefix string) Logger    { return n }
func (n *NoopLogger) With(map[string]interface{}) Logger { return n }
