package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/terminal/pkg/protocol"
)

type benchCounters struct {
	burstsSent     atomic.Uint64
	burstsComplete atomic.Uint64
	burstBytes     atomic.Uint64
	responseBytes  atomic.Uint64
	responses      atomic.Uint64
	paintsTotal    atomic.Uint64
}

type benchErrors struct {
	bootstrapFailures   atomic.Uint64
	burstWriteFailures  atomic.Uint64
	frameDecodeFailures atomic.Uint64
	criticalResponses   atomic.Uint64
	tokenMissing        atomic.Uint64
	totalErrors         atomic.Uint64
}

// tagCounts counts received paints by component tag.
type tagCounts struct {
	mu     sync.Mutex
	counts map[string]uint64
}

func (t *tagCounts) add(tag string) {
	t.mu.Lock()
	if t.counts == nil {
		t.counts = make(map[string]uint64)
	}
	t.counts[tag]++
	t.mu.Unlock()
}

func (t *tagCounts) snapshot() map[string]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]uint64, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

var keyPattern = regexp.MustCompile(`data-vango-key="([^"]+)"`)

var errCritical = errors.New("critical notification")

// pushClient is one simulated browser: it bootstraps a session, opens the
// push channel of the main root and types tokens into the load text field.
type pushClient struct {
	id       int
	baseURL  string
	cfg      benchConfig
	counters *benchCounters
	errs     *benchErrors
	tags     *tagCounts
	samples  chan<- time.Duration

	key     string
	syncID  uint64
	fieldID string
}

func (c *pushClient) run(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	if err := c.bootstrap(ctx, jar); err != nil {
		c.errs.bootstrapFailures.Add(1)
		return fmt.Errorf("bootstrap: %w", err)
	}

	dialer := websocket.Dialer{Jar: jar, HandshakeTimeout: 5 * time.Second}
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/PUSH/" + loadRoot
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.errs.bootstrapFailures.Add(1)
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// The first burst paints the whole root and tells us the field's ID.
	if _, err := c.exchange(conn, &protocol.Burst{SecurityKey: c.key, RepaintAll: true}, ""); err != nil {
		c.errs.bootstrapFailures.Add(1)
		return fmt.Errorf("initial paint: %w", err)
	}
	if c.fieldID == "" {
		c.errs.bootstrapFailures.Add(1)
		return errors.New("initial paint has no text field")
	}

	period := time.Duration(float64(time.Second) / c.cfg.RPS)
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		seq++
		token := makeToken(c.id, seq, c.cfg.PayloadBytes)
		start := time.Now()

		burst := &protocol.Burst{
			SyncID:      c.syncID,
			SecurityKey: c.key,
			Changes: []protocol.VariableChange{
				{PaintableID: c.fieldID, Name: "text", Value: token},
			},
		}
		if c.cfg.EventTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.cfg.EventTimeout))
		}
		found, err := c.exchange(conn, burst, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isTimeout(err) {
				c.errs.tokenMissing.Add(1)
			}
			return err
		}
		if !found {
			c.errs.tokenMissing.Add(1)
			return errors.New("token not observed in paints")
		}

		c.counters.burstsComplete.Add(1)
		c.samples <- time.Since(start)

		if sleep := period - time.Since(start); sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

// bootstrap loads the root page with jar and extracts the UIDL key.
func (c *pushClient) bootstrap(ctx context.Context, jar http.CookieJar) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+loadRoot, nil)
	if err != nil {
		return err
	}
	resp, err := (&http.Client{Jar: jar, Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	m := keyPattern.FindSubmatch(body)
	if m == nil {
		return errors.New("no UIDL key in page")
	}
	c.key = string(m[1])
	return nil
}

// exchange sends one burst and reads its response. It reports whether a
// label painted token.
func (c *pushClient) exchange(conn *websocket.Conn, b *protocol.Burst, token string) (bool, error) {
	payload, err := protocol.EncodeBurst(b)
	if err != nil {
		return false, err
	}
	data := protocol.NewFrame(protocol.FrameBurst, payload).Encode()
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		c.errs.burstWriteFailures.Add(1)
		return false, fmt.Errorf("burst write: %w", err)
	}
	c.counters.burstsSent.Add(1)
	c.counters.burstBytes.Add(uint64(len(data)))

	mt, msg, err := conn.ReadMessage()
	if err != nil {
		return false, err
	}
	if mt == websocket.TextMessage {
		c.errs.criticalResponses.Add(1)
		return false, fmt.Errorf("%w: %s", errCritical, msg)
	}
	c.counters.responses.Add(1)
	c.counters.responseBytes.Add(uint64(len(msg)))

	frame, err := protocol.DecodeFrame(msg)
	if err != nil {
		c.errs.frameDecodeFailures.Add(1)
		return false, err
	}
	resp, err := protocol.DecodeResponse(frame.Payload)
	if err != nil {
		c.errs.frameDecodeFailures.Add(1)
		return false, err
	}
	c.syncID = resp.SyncID

	found := false
	for _, pc := range resp.Changes {
		c.tags.add(pc.Tag)
		c.counters.paintsTotal.Add(1)
		switch pc.Tag {
		case "textfield":
			if c.fieldID == "" {
				c.fieldID = pc.PaintableID
			}
		case "label":
			if text, _ := pc.Attributes["text"].(string); token != "" && text == token {
				found = true
			}
		}
	}
	return found, nil
}

func makeToken(clientID int, seq uint64, payloadBytes int) string {
	if payloadBytes <= 0 {
		return ""
	}
	seed := (uint64(clientID) << 32) ^ seq
	base := strconv.FormatUint(seed, 36)
	if len(base) >= payloadBytes {
		return base[len(base)-payloadBytes:]
	}
	return base + strings.Repeat("x", payloadBytes-len(base))
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
