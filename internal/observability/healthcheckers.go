package observability

import (
	"context"
	"errors"
	"fmt"

	bbolt "go.etcd.io/bbolt"
)

// BoltHealthChecker checks a bbolt database with a read transaction.
type BoltHealthChecker struct {
	name string
	db   *bbolt.DB
}

func NewBoltHealthChecker(name string, db *bbolt.DB) *BoltHealthChecker {
	return &BoltHealthChecker{name: name, db: db}
}

func (c *BoltHealthChecker) Name() string { return c.name }

func (c *BoltHealthChecker) HealthCheck(_ context.Context) error {
	if c.db == nil {
		return errors.New("database not initialized")
	}
	if err := c.db.View(func(*bbolt.Tx) error { return nil }); err != nil {
		return fmt.Errorf("database read failed: %w", err)
	}
	return nil
}

func (c *BoltHealthChecker) ReadinessCheck(ctx context.Context) error {
	return c.HealthCheck(ctx)
}

// FuncChecker adapts a plain function to both checker interfaces.
type FuncChecker struct {
	name  string
	check func(ctx context.Context) error
}

func NewFuncChecker(name string, check func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, check: check}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) HealthCheck(ctx context.Context) error { return c.check(ctx) }

func (c *FuncChecker) ReadinessCheck(ctx context.Context) error { return c.check(ctx) }
