package redis

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"smartlauncher/internal/config"
)

func TestEscapeGlob(t *testing.T) {
	cases := map[string]string{
		"transfer_":  "transfer_",
		"a*b":        `a\*b`,
		"x?[y]":      `x\?\[y\]`,
		`back\slash`: `back\\slash`,
	}
	for in, want := range cases {
		if got := escapeGlob(in); got != want {
			t.Fatalf("escapeGlob(%q): want %q got %q", in, want, got)
		}
	}
}

func TestNilClientIsNotInitialized(t *testing.T) {
	var c *Client
	if _, err := c.Get(context.Background(), "k"); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close on nil client: %v", err)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	a := newTestClient(t, "launcher-a:")
	b := newTestClient(t, "launcher-b:")
	ctx := context.Background()

	if err := a.Set(ctx, "transfer_1", []byte("one"), time.Minute); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, err := b.Get(ctx, "transfer_1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss across namespaces, got %v", err)
	}

	keys, err := a.ScanPrefix(ctx, "transfer_")
	if err != nil {
		t.Fatalf("ScanPrefix error: %v", err)
	}
	if len(keys) != 1 || keys[0] != "transfer_1" {
		t.Fatalf("unexpected keys %v", keys)
	}

	v, err := a.GetDel(ctx, "transfer_1")
	if err != nil || string(v) != "one" {
		t.Fatalf("GetDel: %q %v", v, err)
	}
	if _, err := a.GetDel(ctx, "transfer_1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("second GetDel should miss, got %v", err)
	}
}

func newTestClient(t *testing.T, namespace string) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	client, err := NewRedisClient(&config.Config{Redis: config.RedisConfig{Host: host, Port: port, Namespace: namespace}})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	keys, err := client.ScanPrefix(ctx, "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := client.Del(ctx, keys...); err != nil {
		t.Fatalf("clear namespace: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
