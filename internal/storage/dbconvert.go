package storage

import (
	"rpcguard/internal/models"
	"sort"
	"time"
)

// SQLite has no native timestamp type; times are stored as UTC unix
// nanoseconds so that range comparisons in SQL stay numeric.

func timeToSQLite(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func sqliteToTime(v int64) time.Time {
	return time.Unix(0, v).UTC()
}

// Redis sorted-set scores are float64; millisecond precision fits exactly.

func timeToScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func scoreToTime(score float64) time.Time {
	return time.UnixMilli(int64(score)).UTC()
}

func sortStrings(ids []string) {
	sort.Strings(ids)
}

func sortEntries(entries []models.BlacklistEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Identifier < entries[j].Identifier
	})
}
