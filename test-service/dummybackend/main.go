// dummybackend stands in for the bundled backend in integration tests.
// It is configured through environment variables so that the launcher can
// invoke it exactly like an interpreter: dummybackend server.js
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

type marker struct {
	Dir  string   `json:"dir"`
	Args []string `json:"args"`
	PID  int      `json:"pid"`
}

func main() {
	// Noise that the launcher must swallow
	fmt.Println("dummybackend-start")
	fmt.Fprintln(os.Stderr, "dummybackend-stderr")

	if path := os.Getenv("DUMMY_MARKER"); path != "" {
		dir, _ := os.Getwd()
		data, _ := json.Marshal(marker{Dir: dir, Args: os.Args[1:], PID: os.Getpid()})
		if err := os.WriteFile(path, data, 0644); err != nil {
			fmt.Fprintln(os.Stderr, "write marker:", err)
			os.Exit(3)
		}
	}

	if addr := os.Getenv("DUMMY_HEALTH_ADDR"); addr != "" {
		delay, _ := strconv.Atoi(os.Getenv("DUMMY_HEALTH_DELAY_MS"))
		go func() {
			time.Sleep(time.Duration(delay) * time.Millisecond)
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"status":"OK"}`))
			})
			if err := http.ListenAndServe(addr, mux); err != nil {
				fmt.Fprintln(os.Stderr, "listen:", err)
				os.Exit(4)
			}
		}()
	}

	sleepMs := 30000
	if v, err := strconv.Atoi(os.Getenv("DUMMY_SLEEP_MS")); err == nil {
		sleepMs = v
	}
	exitCode, _ := strconv.Atoi(os.Getenv("DUMMY_EXIT_CODE"))

	time.Sleep(time.Duration(sleepMs) * time.Millisecond)
	fmt.Println("dummybackend-exit", exitCode)
	os.Exit(exitCode)
}
