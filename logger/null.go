package logger

// NullLogger discards everything. Tests use it to keep output quiet.
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (NullLogger) Error(string, ...any) {}
func (NullLogger) Info(string, ...any)  {}
func (NullLogger) Debug(string, ...any) {}
