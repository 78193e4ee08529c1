package eod

import (
	"time"

	"aitradebot/internal/interfaces"
	"aitradebot/internal/store"
)

func NewSummarizer(cfg *store.Config) interfaces.EodSummarizer {
	return &eodSummarizer{dir: cfg.Journal.Dir, now: time.Now}
}
