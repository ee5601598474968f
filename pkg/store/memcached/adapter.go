package memcached

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nimburion/catalog/pkg/observability/logger"
)

const memcachedAbsoluteTTLThreshold = 30 * 24 * time.Hour

// Adapter is a lightweight Memcached text-protocol cache. Keys are spread over the
// configured servers by FNV hash.
type Adapter struct {
	addresses []string
	timeout   time.Duration
	logger    logger.Logger
	dial      func(ctx context.Context, network, address string) (net.Conn, error)
}

// Config holds the memcached servers and per-operation timeout.
type Config struct {
	Addresses        []string
	OperationTimeout time.Duration
}

// NewAdapter creates a memcached adapter. No connection is opened until the first operation.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	normalized := make([]string, 0, len(cfg.Addresses))
	for _, addr := range cfg.Addresses {
		trimmed := strings.TrimSpace(addr)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	if len(normalized) == 0 {
		return nil, errors.New("at least one memcached address is required")
	}
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	log.Info("memcached adapter configured", "servers", len(normalized), "operation_timeout", timeout)
	return &Adapter{
		addresses: normalized,
		timeout:   timeout,
		logger:    log,
		dial:      (&net.Dialer{Timeout: timeout}).DialContext,
	}, nil
}

// Get fetches a value by key. A missing key is (nil, false, nil).
func (c *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	conn, err := c.connect(ctx, key)
	if err != nil {
		return nil, false, err
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	if _, writeErr := fmt.Fprintf(conn, "get %s\r\n", key); writeErr != nil {
		return nil, false, writeErr
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, false, err
	}
	line = strings.TrimSpace(line)
	if line == "END" {
		return nil, false, nil
	}
	// VALUE <key> <flags> <bytes>
	parts := strings.Fields(line)
	if len(parts) != 4 || parts[0] != "VALUE" {
		return nil, false, fmt.Errorf("unexpected memcached response: %s", line)
	}
	size, err := strconv.Atoi(parts[3])
	if err != nil {
		return nil, false, fmt.Errorf("invalid memcached size: %w", err)
	}
	payload := make([]byte, size+2) // include trailing CRLF
	if _, readErr := io.ReadFull(reader, payload); readErr != nil {
		return nil, false, readErr
	}
	endLine, err := reader.ReadString('\n')
	if err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(endLine) != "END" {
		return nil, false, fmt.Errorf("unexpected memcached terminator: %s", strings.TrimSpace(endLine))
	}
	return payload[:size], true, nil
}

// Set stores a value with TTL. A non-positive ttl never expires.
func (c *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	conn, err := c.connect(ctx, key)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, writeErr := fmt.Fprintf(conn, "set %s 0 %d %d\r\n", key, ttlToSeconds(ttl), len(value)); writeErr != nil {
		return writeErr
	}
	if _, writeErr := conn.Write(value); writeErr != nil {
		return writeErr
	}
	if _, writeErr := io.WriteString(conn, "\r\n"); writeErr != nil {
		return writeErr
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return err
	}
	if strings.TrimSpace(line) != "STORED" {
		return fmt.Errorf("memcached set failed: %s", strings.TrimSpace(line))
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (c *Adapter) Delete(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		errs = append(errs, c.deleteOne(ctx, key))
	}
	return errors.Join(errs...)
}

func (c *Adapter) deleteOne(ctx context.Context, key string) error {
	conn, err := c.connect(ctx, key)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, writeErr := fmt.Fprintf(conn, "delete %s\r\n", key); writeErr != nil {
		return writeErr
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return err
	}
	switch strings.TrimSpace(line) {
	case "DELETED", "NOT_FOUND":
		return nil
	default:
		return fmt.Errorf("unexpected memcached delete response: %s", strings.TrimSpace(line))
	}
}

// HealthCheck asks every server for its version.
func (c *Adapter) HealthCheck(ctx context.Context) error {
	for _, address := range c.addresses {
		if err := c.version(ctx, address); err != nil {
			c.logger.Error("memcached health check failed", "address", address, "error", err)
			return fmt.Errorf("memcached health check failed for %s: %w", address, err)
		}
	}
	return nil
}

func (c *Adapter) version(ctx context.Context, address string) error {
	conn, err := c.dialAddress(ctx, address)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, "version\r\n"); err != nil {
		return err
	}
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, "VERSION ") {
		return fmt.Errorf("unexpected memcached version response: %s", strings.TrimSpace(line))
	}
	return nil
}

// Close is a no-op: each operation uses a short-lived TCP connection.
func (c *Adapter) Close() error {
	return nil
}

func (c *Adapter) connect(ctx context.Context, key string) (net.Conn, error) {
	return c.dialAddress(ctx, c.pickAddress(key))
}

func (c *Adapter) dialAddress(ctx context.Context, address string) (net.Conn, error) {
	conn, err := c.dial(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(c.timeout)
	if deadlineFromCtx, ok := ctx.Deadline(); ok && deadlineFromCtx.Before(deadline) {
		deadline = deadlineFromCtx
	}
	_ = conn.SetDeadline(deadline)
	return conn, nil
}

func (c *Adapter) pickAddress(key string) string {
	if len(c.addresses) == 1 {
		return c.addresses[0]
	}
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(key))
	index := int(hash.Sum32() % uint32(len(c.addresses)))
	return c.addresses[index]
}

func ttlToSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	if ttl > memcachedAbsoluteTTLThreshold {
		return int(time.Now().Add(ttl).Unix())
	}

	seconds := int(math.Ceil(ttl.Seconds()))
	if seconds <= 0 {
		return 1
	}
	return seconds
}
