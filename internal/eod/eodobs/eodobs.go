package eodobs

import (
	"context"
	"time"

	"aitradebot/internal/interfaces"
	"aitradebot/internal/logger"
	"aitradebot/internal/trace"

	"go.opentelemetry.io/otel/attribute"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
	now        func() time.Time
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{summarizer: summarizer, now: time.Now}
}

func (oes *observableEodSummarizer) SummarizeDay(t time.Time) (string, error) {
	return oes.observe("eod.SummarizeDay", t, func() (string, error) {
		return oes.summarizer.SummarizeDay(t)
	})
}

func (oes *observableEodSummarizer) SummarizeToday() (string, error) {
	return oes.observe("eod.SummarizeToday", oes.now(), oes.summarizer.SummarizeToday)
}

func (oes *observableEodSummarizer) observe(op string, day time.Time, fn func() (string, error)) (string, error) {
	ctx, span := trace.StartSpan(context.Background(), op)
	defer span.End()

	date := day.UTC().Format("2006-01-02")
	span.SetAttributes(attribute.String("date", date))
	start := time.Now()

	csvPath, err := fn()
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 2, "EOD summary failed", err, "date", date)
		return "", err
	}
	if csvPath == "" {
		logger.InfoSkip(ctx, 2, "No fills journaled for EOD summary", "date", date)
		return "", nil
	}

	span.SetAttributes(attribute.String("csv_path", csvPath))
	logger.InfoSkip(ctx, 2, "EOD summary written",
		"date", date,
		"csv_path", csvPath,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return csvPath, nil
}
