package poller

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Snapshot is the change-detection view of one polled entity: its
// identity plus only the fields whose change should reach consumers.
// Volatile fields that churn without meaning (internal timestamps,
// raw payloads) are deliberately excluded so they never trigger an
// update.
type Snapshot struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Active         bool       `json:"active"`
	Status         string     `json:"status,omitempty"`
	CompletedCalls int        `json:"completed_calls"`
	TotalCalls     int        `json:"total_calls"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
}

// Fingerprint computes an order-sensitive digest of the relevant
// fields of every snapshot in the collection. Two collections with the
// same fingerprint are considered unchanged for synchronization
// purposes.
func Fingerprint(snapshots []Snapshot) string {
	var b strings.Builder
	for _, s := range snapshots {
		b.WriteString(s.ID)
		b.WriteByte('|')
		b.WriteString(s.Name)
		b.WriteByte('|')
		b.WriteString(strconv.FormatBool(s.Active))
		b.WriteByte('|')
		b.WriteString(s.Status)
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(s.CompletedCalls))
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(s.TotalCalls))
		b.WriteByte('|')
		b.WriteString(formatTime(s.LastRunAt))
		b.WriteByte('|')
		b.WriteString(formatTime(s.NextRunAt))
		b.WriteByte(';')
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
