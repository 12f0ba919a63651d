package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/sells-group/foodtruck-cli/internal/jobs"
	"github.com/sells-group/foodtruck-cli/internal/model"
	"github.com/sells-group/foodtruck-cli/internal/monitoring"
	"github.com/sells-group/foodtruck-cli/internal/pipeline"
)

func formatResult(out io.Writer, res *pipeline.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "PIPELINE\t%s\n", res.Type)
	_, _ = fmt.Fprintf(w, "PHASE\t%s\n", res.Phase)
	_, _ = fmt.Fprintf(w, "URLS DISCOVERED\t%d\n", res.Summary.URLsDiscovered)
	_, _ = fmt.Fprintf(w, "JOBS CREATED\t%d\n", res.Summary.JobsCreated)
	_, _ = fmt.Fprintf(w, "URLS PROCESSED\t%d\n", res.Summary.URLsProcessed)
	_, _ = fmt.Fprintf(w, "TRUCKS CREATED\t%d\n", res.Summary.TrucksCreated)
	_, _ = fmt.Fprintf(w, "TRUCKS UPDATED\t%d\n", res.Summary.TrucksUpdated)
	_, _ = fmt.Fprintf(w, "ERRORS\t%d\n", res.Summary.Errors)
	_, _ = fmt.Fprintf(w, "DURATION\t%s\n", time.Duration(res.Summary.DurationMS)*time.Millisecond)
	if res.Error != "" {
		_, _ = fmt.Fprintf(w, "FAILURE\t%s\n", res.Error)
	}
	_ = w.Flush()

	for _, e := range res.Errors {
		_, _ = fmt.Fprintf(out, "  - %s\n", e)
	}
}

func formatStatus(out io.Writer, st *pipeline.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "JOBS\tCOUNT")
	for _, s := range []model.JobStatus{model.JobPending, model.JobRunning, model.JobCompleted, model.JobFailed} {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s, st.Jobs[s])
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "URLS\tCOUNT")
	urlStatuses := make([]string, 0, len(st.DiscoveredURLs))
	for s := range st.DiscoveredURLs {
		urlStatuses = append(urlStatuses, string(s))
	}
	sort.Strings(urlStatuses)
	for _, s := range urlStatuses {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s, st.DiscoveredURLs[model.DiscoveredStatus(s)])
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "TRUCKS\t%d\n", st.Trucks)
	_ = w.Flush()

	if len(st.Usage) > 0 {
		_, _ = fmt.Fprintln(out)
		formatUsage(out, st.Usage)
	}
}

func formatUsage(out io.Writer, usage []monitoring.ServiceUsage) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SERVICE\tDATE\tREQUESTS\tTOKENS\tUSED")
	for _, u := range usage {
		tokens := fmt.Sprintf("%d", u.TokensUsed)
		if u.TokenLimit > 0 {
			tokens = fmt.Sprintf("%d/%d", u.TokensUsed, u.TokenLimit)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%.0f%%\n",
			u.Service, u.Date, u.RequestsUsed, u.RequestLimit, tokens, u.Ratio()*100)
	}
	_ = w.Flush()
}

func formatJobs(out io.Writer, list []model.ScrapingJob) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tURL\tSTATUS\tPRIORITY\tRETRIES\tSCHEDULED\tLAST ERROR")
	for _, j := range list {
		lastErr := ""
		if n := len(j.Errors); n > 0 {
			lastErr = truncate(j.Errors[n-1], 60)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d\t%s\t%s\n",
			j.ID, truncate(j.TargetURL, 50), j.Status, j.Priority, j.RetryCount, j.MaxRetries,
			j.ScheduledAt.Format(time.RFC3339), lastErr)
	}
	_ = w.Flush()
}

func formatTasks(out io.Writer, tasks []jobs.TaskStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tINTERVAL\tENABLED\tSUCCESS\tERRORS")
	for _, t := range tasks {
		_, _ = fmt.Fprintf(w, "%s\t%dm\t%t\t%d\t%d\n", t.ID, t.IntervalMins, t.Enabled, t.SuccessCount, t.ErrorCount)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
