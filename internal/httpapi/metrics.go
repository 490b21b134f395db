package httpapi

import (
	"bufio"
	"bytes"
	"math/big"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServeMetrics wraps promhttp's handler, post-processing the scraped
// payload to match original_source's format_metrics_payload: drop
// "# TYPE blockchain_chain_id" comment lines, and rewrite any
// scientific-notation value to fixed-point decimal.
func ServeMetrics(gatherer prometheus.Gatherer) http.Handler {
	inner := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &bytes.Buffer{}
		rw := &captureWriter{ResponseWriter: w, body: recorder}
		inner.ServeHTTP(rw, r)

		if rw.statusCode != 0 && rw.statusCode != http.StatusOK {
			w.WriteHeader(rw.statusCode)
			w.Write(recorder.Bytes())
			return
		}

		formatted := formatMetricsPayload(recorder.Bytes())
		w.Write(formatted)
	})
}

type captureWriter struct {
	http.ResponseWriter
	body       *bytes.Buffer
	statusCode int
}

func (c *captureWriter) WriteHeader(code int) {
	c.statusCode = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	return c.body.Write(b)
}

// formatMetricsPayload strips suppressed TYPE comment lines and rewrites
// scientific-notation metric values to fixed-point decimal.
func formatMetricsPayload(payload []byte) []byte {
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "# TYPE blockchain_chain_id") {
			continue
		}

		out.WriteString(rewriteScientificNotation(line))
		out.WriteByte('\n')
	}

	return out.Bytes()
}

func rewriteScientificNotation(line string) string {
	if strings.HasPrefix(line, "#") {
		return line
	}

	idx := strings.LastIndex(line, " ")
	if idx < 0 {
		return line
	}

	metric, value := line[:idx], line[idx+1:]
	if !strings.ContainsAny(value, "eE") {
		return line
	}

	f, ok := new(big.Float).SetString(value)
	if !ok {
		return line
	}

	return metric + " " + f.Text('f', -1)
}
