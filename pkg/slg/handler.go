package slg

import (
	"io"
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
)

// NewHandler writes text records to w and, when influx is set, ships the same records
// as points.
func NewHandler(w io.Writer, level slog.Level, influx PointWriter) slog.Handler {
	text := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	if influx == nil {
		return text
	}

	return slogmulti.Fanout(text, &InfluxDBHandler{InfluxDBWriter: influx, Level: level})
}
