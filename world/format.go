package world

import (
	"fmt"
	"strings"

	"github.com/gookit/color"

	"github.com/timewinder-dev/dreamvm/faultlog"
)

func FormatStats(st Stats) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(color.Cyan.Sprint("=== World statistics ==="))
	b.WriteString("\n")
	b.WriteString(color.Bold.Sprint("Ticks run: "))
	b.WriteString(fmt.Sprintf("%d\n", st.Ticks))
	b.WriteString(color.Bold.Sprint("Thread wake-ups: "))
	b.WriteString(fmt.Sprintf("%d\n", st.Resumed))
	b.WriteString(color.Bold.Sprint("Live objects and lists: "))
	b.WriteString(fmt.Sprintf("%d\n", st.Live))
	b.WriteString(color.Bold.Sprint("Still pending: "))
	b.WriteString(fmt.Sprintf("%d\n", st.Pending))
	b.WriteString(color.Bold.Sprint("Faults: "))
	if st.Faults > 0 {
		b.WriteString(color.Red.Sprintf("%d\n", st.Faults))
	} else {
		b.WriteString(color.Green.Sprintf("%d\n", st.Faults))
	}
	return b.String()
}

// FormatFaults renders fault records, one block per record.
func FormatFaults(recs []faultlog.Record) string {
	var b strings.Builder
	for _, r := range recs {
		b.WriteString(color.Gray.Sprint(r.Time.Format("2006-01-02 15:04:05")))
		b.WriteString(" ")
		b.WriteString(color.Red.Sprint(r.Kind))
		if r.NoWait {
			b.WriteString(color.Yellow.Sprint(" (nowait)"))
		}
		b.WriteString(fmt.Sprintf(" %s in %s", r.Message, r.Proc))
		if r.Loc != "" {
			b.WriteString(" at " + r.Loc)
		}
		b.WriteString(color.Gray.Sprintf(" [%s]\n", r.Thread))
		for _, line := range r.Trace {
			b.WriteString("    " + line + "\n")
		}
	}
	return b.String()
}
