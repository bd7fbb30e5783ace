// Package metrics exposes pipeline counters in the Prometheus text format
// without pulling in a client library; the counters are few and per-process.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	jobsCompleted    atomic.Int64
	jobsFailed       atomic.Int64
	listingsNew      atomic.Int64
	listingsUpdated  atomic.Int64
	messagesDeadLet  atomic.Int64
	emailJobsHandled atomic.Int64
)

func ObserveJobCompleted(newCount, updatedCount int) {
	jobsCompleted.Add(1)
	listingsNew.Add(int64(newCount))
	listingsUpdated.Add(int64(updatedCount))
}

func ObserveJobFailed() {
	jobsFailed.Add(1)
}

func ObserveDeadLetter() {
	messagesDeadLet.Add(1)
}

func ObserveEmailJob() {
	emailJobsHandled.Add(1)
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP gimmescrapes_jobs_completed_total Number of scrape jobs completed since process start.\n")
	fmt.Fprintf(w, "# TYPE gimmescrapes_jobs_completed_total counter\n")
	fmt.Fprintf(w, "gimmescrapes_jobs_completed_total %d\n", jobsCompleted.Load())

	fmt.Fprintf(w, "# HELP gimmescrapes_jobs_failed_total Number of scrape jobs failed since process start.\n")
	fmt.Fprintf(w, "# TYPE gimmescrapes_jobs_failed_total counter\n")
	fmt.Fprintf(w, "gimmescrapes_jobs_failed_total %d\n", jobsFailed.Load())

	fmt.Fprintf(w, "# HELP gimmescrapes_listings_new_total Number of listings inserted since process start.\n")
	fmt.Fprintf(w, "# TYPE gimmescrapes_listings_new_total counter\n")
	fmt.Fprintf(w, "gimmescrapes_listings_new_total %d\n", listingsNew.Load())

	fmt.Fprintf(w, "# HELP gimmescrapes_listings_updated_total Number of listings updated since process start.\n")
	fmt.Fprintf(w, "# TYPE gimmescrapes_listings_updated_total counter\n")
	fmt.Fprintf(w, "gimmescrapes_listings_updated_total %d\n", listingsUpdated.Load())

	fmt.Fprintf(w, "# HELP gimmescrapes_messages_dead_lettered_total Number of messages routed to a dead-letter topic since process start.\n")
	fmt.Fprintf(w, "# TYPE gimmescrapes_messages_dead_lettered_total counter\n")
	fmt.Fprintf(w, "gimmescrapes_messages_dead_lettered_total %d\n", messagesDeadLet.Load())

	fmt.Fprintf(w, "# HELP gimmescrapes_email_jobs_handled_total Number of email jobs handled since process start.\n")
	fmt.Fprintf(w, "# TYPE gimmescrapes_email_jobs_handled_total counter\n")
	fmt.Fprintf(w, "gimmescrapes_email_jobs_handled_total %d\n", emailJobsHandled.Load())
}

func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WritePrometheus(w)
	}
}
