package report

import (
	"fmt"
	"strings"

	"github.com/oscarsierraproject/covid19pl/internal/history"
	"github.com/oscarsierraproject/covid19pl/internal/model"
)

// Subject is the subject line of the daily digest email.
const Subject = "Report: COVID19 cases in Poland"

var digestHeader = []string{
	"Summary of COVID19 cases in Poland.",
	"LEGEND: Value in '()' is a ONE day difference.",
	"",
}

var rawDigestHeader = []string{
	"Summary of COVID19 cases in Poland.",
	"Only one snapshot gathered so far, no daily difference yet.",
	"",
}

// Sentence describes one province's latest figures in plain text.
func Sentence(c history.Change) string {
	return fmt.Sprintf("%s: %d(%+d) new cases, %d(%+d) dead, %d total cases.",
		c.Province,
		c.Current.Total, c.Delta.Total,
		c.Current.Dead, c.Delta.Dead,
		c.Current.TotalSum,
	)
}

// DigestBody renders the email body: a legend followed by one sentence per
// province.
func DigestBody(changes []history.Change) string {
	lines := make([]string, 0, len(digestHeader)+len(changes))
	lines = append(lines, digestHeader...)
	for _, c := range changes {
		lines = append(lines, Sentence(c))
	}
	return strings.Join(lines, "\n") + "\n"
}

// RawSentence describes one record as the source published it.
func RawSentence(r model.Record) string {
	return fmt.Sprintf("%s: %d cases, %d dead.", r.Province, r.Total, r.Dead)
}

// RawDigestBody renders the email body for a single snapshot, which has
// nothing to compare against.
func RawDigestBody(lib *model.Library) string {
	lines := make([]string, 0, len(rawDigestHeader)+len(lib.Records))
	lines = append(lines, rawDigestHeader...)
	for _, r := range lib.Records {
		lines = append(lines, RawSentence(r))
	}
	return strings.Join(lines, "\n") + "\n"
}
