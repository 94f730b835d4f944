// Package numbering generates human-readable case numbers of the form
// PREFIX-YYMM-NNNN, where NNNN restarts every calendar month.
//
// The sequence lives in the case_sequences table and is advanced with a
// single INSERT … ON CONFLICT DO UPDATE … RETURNING, so two transactions
// in the same month serialize on the counter row instead of both reading
// the same "latest" case number. Numbers reserved for a case whose insert
// later fails are not reused; gaps are expected.
package numbering

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
)

// MaxSequence is the largest suffix that fits the four-digit format.
const MaxSequence = 9999

var reNumber = regexp.MustCompile(`^([A-Z0-9]{2,16})-(\d{2})(0[1-9]|1[0-2])-(\d{4})$`)

// ErrExhausted is returned once a month has used all 9999 numbers.
var ErrExhausted = apperr.Conflict("case number range for this month is exhausted")

// Period returns the YYMM scope of t in UTC.
func Period(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%02d%02d", t.Year()%100, int(t.Month()))
}

// Format renders a case number.
func Format(prefix string, t time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, Period(t), seq)
}

// Parsed is a decomposed case number.
type Parsed struct {
	Prefix string
	Period string
	Seq    int
}

// Parse splits a case number into its parts.
func Parse(number string) (Parsed, error) {
	m := reNumber.FindStringSubmatch(number)
	if m == nil {
		return Parsed{}, fmt.Errorf("malformed case number %q", number)
	}
	seq, err := strconv.Atoi(m[4])
	if err != nil {
		return Parsed{}, fmt.Errorf("malformed case number %q: %w", number, err)
	}
	return Parsed{Prefix: m[1], Period: m[2] + m[3], Seq: seq}, nil
}

// Valid reports whether number is well formed with a non-zero sequence.
func Valid(number string) bool {
	p, err := Parse(number)
	return err == nil && p.Seq > 0
}

// Generator hands out case numbers for one organizational prefix.
type Generator struct {
	Prefix string
}

func NewGenerator(prefix string) Generator {
	return Generator{Prefix: strings.ToUpper(strings.TrimSpace(prefix))}
}

// nextSQL bumps the counter for (prefix, period). A missing counter row is
// seeded from the highest suffix already present in cases for that scope;
// suffixes that do not parse are ignored, so an empty or unreadable history
// starts at 1.
const nextSQL = `
INSERT INTO case_sequences (prefix, period, last_value)
VALUES (?, ?, COALESCE((
	SELECT MAX(CAST(substring(case_number FROM '-([0-9]{4})$') AS INTEGER))
	FROM cases
	WHERE case_number LIKE ?
), 0) + 1)
ON CONFLICT (prefix, period)
DO UPDATE SET last_value = case_sequences.last_value + 1
RETURNING last_value`

// Next reserves the next number for the month containing at. Run outside
// the case transaction, the reservation commits at once: the counter row is
// locked only for the statement, and a retried insert draws a fresh number.
func (g Generator) Next(ctx context.Context, tx *gorm.DB, at time.Time) (string, error) {
	if g.Prefix == "" {
		return "", apperr.Invariant("case number prefix is not configured", nil)
	}
	period := Period(at)
	pattern := g.Prefix + "-" + period + "-%"

	var seq int
	if err := tx.WithContext(ctx).Raw(nextSQL, g.Prefix, period, pattern).Scan(&seq).Error; err != nil {
		return "", fmt.Errorf("advance case sequence: %w", err)
	}
	if seq > MaxSequence {
		return "", ErrExhausted
	}

	number := Format(g.Prefix, at, seq)
	if !Valid(number) {
		return "", apperr.Invariant("generated malformed case number "+number, nil)
	}
	return number, nil
}
