// scraper-sim is a tiny, dependency-free scraper simulator for exercising a
// running tarpit. It reuses HTTP connections (keep-alive) and supports
// concurrency so demo scripts run fast on Windows (Git Bash), Ubuntu (WSL),
// and macOS without relying on external tools.
//
// Modes:
//   - crawl: walk distinct generated paths the way a naive crawler would
//   - burst: hammer a single path to trip the frequency and hop heuristics
//
// Usage examples:
//
//	scraper-sim -base=http://127.0.0.1:8001 -mode=crawl -n=200 -c=4
//	scraper-sim -base=http://127.0.0.1:8001 -mode=burst -path=/docs/api -n=300 -c=16 -ua=scrapy/2.11
//
// Notes:
//   - The tarpit streams slowly on purpose; -timeout bounds the whole run,
//     -req_timeout bounds a single page.
//   - Prints a one-line summary with pages, bytes and approximate throughput.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type modeType string

const (
	modeCrawl modeType = "crawl"
	modeBurst modeType = "burst"
)

func main() {
	var (
		base  = flag.String("base", "http://127.0.0.1:8001", "Base URL including scheme and host, e.g. http://127.0.0.1:8001")
		path  = flag.String("path", "/docs", "Request path for burst mode, or the crawl root")
		modeS = flag.String("mode", string(modeCrawl), "Mode: crawl|burst")
		ua    = flag.String("ua", "scraper-sim/1.0", "User-Agent header to present")
		N     = flag.Int("n", 200, "Total requests to send")
		conc  = flag.Int("c", 4, "Number of concurrent workers")
		// Timeouts & transport tuning
		timeout    = flag.Duration("timeout", 5*time.Minute, "Overall timeout for the simulator run")
		reqTimeout = flag.Duration("req_timeout", 30*time.Second, "Timeout for a single page fetch")
		connIdle   = flag.Duration("idle_timeout", 30*time.Second, "HTTP idle connection timeout")
		maxIdle    = flag.Int("max_idle", 64, "Max idle connections total")
	)
	flag.Parse()

	m := modeType(strings.ToLower(*modeS))
	if m != modeCrawl && m != modeBurst {
		fmt.Fprintf(os.Stderr, "unknown -mode=%s (want crawl|burst)\n", *modeS)
		os.Exit(2)
	}
	if *N <= 0 || *conc <= 0 {
		fmt.Fprintln(os.Stderr, "-n and -c must be > 0")
		os.Exit(2)
	}

	baseURL := strings.TrimRight(*base, "/")
	p := *path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        *maxIdle,
		MaxIdleConnsPerHost: *maxIdle,
		IdleConnTimeout:     *connIdle,
	}
	client := &http.Client{Transport: tr, Timeout: *reqTimeout}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	var pages, bytesRead, denied int64

	worker := func(id, count int) {
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				return
			default:
			}
			target := baseURL + p
			if m == modeCrawl {
				// Distinct paths per request so every page is a fresh render.
				target = fmt.Sprintf("%s%s/section-%d/item-%d", baseURL, p, id, i)
			}
			req, _ := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			req.Header.Set("User-Agent", *ua)
			resp, err := client.Do(req)
			if err != nil {
				// Brief backoff on errors to avoid hot spinning.
				time.Sleep(10 * time.Millisecond)
				continue
			}
			n, _ := io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			atomic.AddInt64(&bytesRead, n)
			if resp.StatusCode == http.StatusForbidden {
				atomic.AddInt64(&denied, 1)
			} else {
				atomic.AddInt64(&pages, 1)
			}
		}
	}

	// Split N across conc workers.
	per := *N / *conc
	rem := *N - per**conc
	var wg sync.WaitGroup
	wg.Add(*conc)
	for w := 0; w < *conc; w++ {
		count := per
		if w == *conc-1 {
			count += rem
		}
		go func(id, n int) {
			defer wg.Done()
			worker(id, n)
		}(w, count)
	}
	wg.Wait()
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	fmt.Printf("ScraperSim: mode=%s N=%d c=%d Pages=%d Denied=%d Bytes=%d Duration=%s Throughput=%.1f req/s\n",
		m, *N, *conc, pages, denied, bytesRead, elapsed.Truncate(time.Millisecond), float64(*N)/elapsed.Seconds())
}
