// Command mock-endpoints runs a fake HTTP email provider for local testing.
// Point the server at it with MAIL_PROVIDER=http and PROVIDER_URL to
// exercise the retry engine against controllable failure modes.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

var requestCount atomic.Int64

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	// Successful provider — always accepts
	http.HandleFunc("/send/success", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logRequest(r, count, 200)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
	})

	// Slow provider — delays 3 seconds before accepting
	http.HandleFunc("/send/slow", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		time.Sleep(3 * time.Second)
		logRequest(r, count, 200)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "sent (slow)"})
	})

	// Degraded provider — always returns 503, a transient failure
	http.HandleFunc("/send/unavailable", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logRequest(r, count, 503)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "service temporarily unavailable"})
	})

	// Rejecting provider — always returns 400 invalid email, a permanent failure
	http.HandleFunc("/send/reject", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logRequest(r, count, 400)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid email address"})
	})

	// Flaky provider — fails with 503 on every other request
	http.HandleFunc("/send/flaky", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		w.Header().Set("Content-Type", "application/json")
		if count%2 == 1 {
			logRequest(r, count, 503)
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "service temporarily unavailable"})
			return
		}
		logRequest(r, count, 200)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
	})

	// Stats endpoint — shows request count
	http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"total_requests": requestCount.Load()})
	})

	log.Printf("Mock email provider starting on :%s", port)
	log.Printf("  POST /send/success      -> 200 sent")
	log.Printf("  POST /send/slow         -> 200 sent (3s delay)")
	log.Printf("  POST /send/unavailable  -> 503 transient failure")
	log.Printf("  POST /send/reject       -> 400 permanent failure")
	log.Printf("  POST /send/flaky        -> alternates 503 / 200")
	log.Printf("  GET  /stats             -> request count")

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func logRequest(r *http.Request, count int64, status int) {
	var req sendRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	fmt.Printf("[#%d] %s %s -> %d | to=%s subject=%q\n",
		count,
		r.Method,
		r.URL.Path,
		status,
		req.To,
		truncate(req.Subject, 32),
	)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
