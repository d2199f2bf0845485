package slg

import (
	"context"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	slogcommon "github.com/samber/slog-common"
)

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// PointWriter is the part of influxdb2 api.WriteAPI the handler needs.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// NewInfluxWriter returns a non-blocking writer and a func that flushes and closes it.
func NewInfluxWriter(cfg *InfluxConfig) (PointWriter, func()) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	writer := client.WriteAPI(cfg.Org, cfg.Bucket)

	return writer, func() {
		writer.Flush()
		client.Close()
	}
}

var _ slog.Handler = (*InfluxDBHandler)(nil)

// InfluxDBHandler stores every record as a "syslog" point tagged with its level.
type InfluxDBHandler struct {
	InfluxDBWriter PointWriter
	Level          slog.Leveler

	attrs  []slog.Attr
	groups []string
}

func (h *InfluxDBHandler) Enabled(ctx context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.Level != nil {
		minLevel = h.Level.Level()
	}

	return level >= minLevel
}

func (h *InfluxDBHandler) Handle(ctx context.Context, record slog.Record) error {
	recordAttrs := make([]slog.Attr, 0, record.NumAttrs())
	record.Attrs(func(a slog.Attr) bool {
		recordAttrs = append(recordAttrs, a)
		return true
	})

	attrs := slogcommon.AppendAttrsToGroup(h.groups, h.attrs, recordAttrs...)

	fields := make(map[string]any, len(attrs)+1)
	flatten(fields, "", attrs)

	fields["message"] = record.Message

	point := write.NewPoint("syslog", map[string]string{
		"level": record.Level.String(),
	}, fields, record.Time)

	h.InfluxDBWriter.WritePoint(point)

	return nil
}

func (h *InfluxDBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &InfluxDBHandler{
		InfluxDBWriter: h.InfluxDBWriter,
		Level:          h.Level,

		attrs:  slogcommon.AppendAttrsToGroup(h.groups, h.attrs, attrs...),
		groups: h.groups,
	}
}

func (h *InfluxDBHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	return &InfluxDBHandler{
		InfluxDBWriter: h.InfluxDBWriter,
		Level:          h.Level,

		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
	}
}

// flatten turns nested groups into dotted field keys, influx fields are flat.
func flatten(fields map[string]any, prefix string, attrs []slog.Attr) {
	for _, a := range attrs {
		a.Value = a.Value.Resolve()

		key := a.Key
		switch {
		case key == "":
			key = prefix
		case prefix != "":
			key = prefix + "." + key
		}

		if a.Value.Kind() == slog.KindGroup {
			flatten(fields, key, a.Value.Group())
			continue
		}

		if a.Key == "" {
			continue
		}

		switch a.Value.Kind() {
		case slog.KindString:
			fields[key] = a.Value.String()
		case slog.KindInt64:
			fields[key] = a.Value.Int64()
		case slog.KindUint64:
			fields[key] = a.Value.Uint64()
		case slog.KindFloat64:
			fields[key] = a.Value.Float64()
		case slog.KindBool:
			fields[key] = a.Value.Bool()
		default:
			fields[key] = a.Value.String()
		}
	}
}
