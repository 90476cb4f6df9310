package connector

import "log/slog"

// ConnectionStats represents database connection pool statistics.
type ConnectionStats struct {
	OpenConnections int
	InUse           int
	Idle            int
	Acquires        int64
}

// LogValue lets the stats be logged as a group.
func (s ConnectionStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("open", s.OpenConnections),
		slog.Int("in_use", s.InUse),
		slog.Int("idle", s.Idle),
		slog.Int64("acquires", s.Acquires),
	)
}
