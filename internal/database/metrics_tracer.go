package database

import (
	"context"
	"strings"
	"time"

	"github.com/JohnnyButtersfingers/my-hamballer-game/internal/metrics"
	"github.com/jackc/pgx/v5"
)

// MetricsTracer records latency and errors of every query, labelled by a
// short query name.
type MetricsTracer struct{}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

type queryContextKey struct{}

type queryContext struct {
	startTime time.Time
	queryName string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		startTime: time.Now(),
		queryName: queryName(data.SQL),
	})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	metrics.DBQueryDuration.WithLabelValues(qctx.queryName).Observe(time.Since(qctx.startTime).Seconds())
	if data.Err != nil {
		metrics.DBErrorsTotal.WithLabelValues(qctx.queryName).Inc()
	}
}

// queryName reads the "-- name: X" marker the repositories put on their
// statements, falling back to the lowercased leading keyword so label
// cardinality stays bounded.
func queryName(sql string) string {
	sql = strings.TrimSpace(sql)
	if rest, ok := strings.CutPrefix(sql, "-- name:"); ok {
		name, _, _ := strings.Cut(rest, "\n")
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}

	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	switch keyword := strings.ToLower(fields[0]); keyword {
	case "select", "insert", "update", "delete", "with", "create", "drop", "alter", "truncate", "begin", "commit", "rollback":
		return keyword
	default:
		return "other"
	}
}
