package bench

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"oidbs/internal/adapter"
	"oidbs/internal/gen"
	"oidbs/internal/metrics"
	"oidbs/internal/model"
)

// queryWorkload rotates through the model's query catalog on one
// connection.
type queryWorkload struct {
	querier  adapter.Querier
	endpoint *url.URL
	queries  []model.Query
	timeout  timeoutPolicy

	conn adapter.QueryConn
	next int
}

func (w *queryWorkload) Connect(ctx context.Context) error {
	cctx, cancel := w.timeout.connect(ctx)
	defer cancel()
	conn, err := w.querier.Connect(cctx, w.endpoint)
	if err != nil {
		return err
	}
	w.conn = conn
	return nil
}

func (w *queryWorkload) Step(ctx context.Context) (metrics.OpKind, error) {
	q := w.queries[w.next%len(w.queries)]
	w.next++
	_, err := w.conn.Execute(ctx, q.SQL)
	return metrics.OpQuery, err
}

func (w *queryWorkload) Close() error {
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

// ingestWorkload publishes generator output for one row range. The stream
// position survives reconnects, so a reset does not re-publish rows.
type ingestWorkload struct {
	ingestor adapter.Ingestor
	endpoint *url.URL
	clientID string
	topic    string
	stream   *gen.Stream
	batch    int
	timeout  timeoutPolicy

	conn adapter.IngestConn
	buf  bytes.Buffer
}

func (w *ingestWorkload) Connect(ctx context.Context) error {
	cctx, cancel := w.timeout.connect(ctx)
	defer cancel()
	conn, err := w.ingestor.Connect(cctx, w.endpoint, w.clientID)
	if err != nil {
		return err
	}
	w.conn = conn
	return nil
}

func (w *ingestWorkload) Step(ctx context.Context) (metrics.OpKind, error) {
	w.buf.Reset()
	n := 0
	for n < w.batch {
		rec, ok := w.stream.Next()
		if !ok {
			break
		}
		if n > 0 {
			w.buf.WriteByte('\n')
		}
		w.buf.WriteString(rec.CSV())
		n++
	}
	if n == 0 {
		return metrics.OpPublish, io.EOF
	}
	return metrics.OpPublish, w.conn.Publish(ctx, w.topic, w.buf.Bytes())
}

func (w *ingestWorkload) Close() error {
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

// importWorkload publishes a device's share of dataset shard files, line
// batches per publish, like the ingest path but reading from disk.
type importWorkload struct {
	ingestor adapter.Ingestor
	endpoint *url.URL
	clientID string
	topic    string
	files    []string
	batch    int
	timeout  timeoutPolicy

	conn    adapter.IngestConn
	file    *os.File
	scanner *bufio.Scanner
	nextIdx int
	buf     bytes.Buffer
}

func (w *importWorkload) Connect(ctx context.Context) error {
	cctx, cancel := w.timeout.connect(ctx)
	defer cancel()
	conn, err := w.ingestor.Connect(cctx, w.endpoint, w.clientID)
	if err != nil {
		return err
	}
	w.conn = conn
	return nil
}

// nextLine advances through the assigned shards. io.EOF after the last
// line of the last shard.
func (w *importWorkload) nextLine() (string, error) {
	for {
		if w.scanner != nil {
			if w.scanner.Scan() {
				return w.scanner.Text(), nil
			}
			if err := w.scanner.Err(); err != nil {
				return "", fmt.Errorf("read %s: %w", w.file.Name(), err)
			}
			w.file.Close()
			w.scanner = nil
		}
		if w.nextIdx >= len(w.files) {
			return "", io.EOF
		}
		f, err := os.Open(w.files[w.nextIdx])
		if err != nil {
			return "", err
		}
		w.nextIdx++
		w.file = f
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
		w.scanner = sc
	}
}

func (w *importWorkload) Step(ctx context.Context) (metrics.OpKind, error) {
	w.buf.Reset()
	n := 0
	for n < w.batch {
		line, err := w.nextLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A corrupt local dataset is not the target's fault; treat it
			// as fatal for this device so it cannot skew the numbers.
			return metrics.OpPublish, adapter.Errf(adapter.Fatal, "dataset: %v", err)
		}
		if n > 0 {
			w.buf.WriteByte('\n')
		}
		w.buf.WriteString(line)
		n++
	}
	if n == 0 {
		return metrics.OpPublish, io.EOF
	}
	return metrics.OpPublish, w.conn.Publish(ctx, w.topic, w.buf.Bytes())
}

func (w *importWorkload) Close() error {
	var err error
	if w.conn != nil {
		err = w.conn.Close()
		w.conn = nil
	}
	if w.file != nil && w.scanner != nil {
		w.file.Close()
		w.scanner = nil
	}
	return err
}

// timeoutPolicy scopes connection establishment; publish/query rely on the
// run context and adapter-level deadlines.
type timeoutPolicy struct {
	connectTimeout time.Duration
}

func (p timeoutPolicy) connect(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.connectTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.connectTimeout)
}
