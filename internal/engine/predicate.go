package engine

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Predicate evaluates whether a record's fields satisfy a condition.
type Predicate func(fields map[string]any) (bool, error)

// CompilePredicates parses simple expressions into executable predicates.
// Supported operators: ==, !=, >=, <=, >, <, in, contains.
// Examples:
//
//	"amount > 100"
//	"to_network in tron,solana"
//	"txn_type == Deposit"
//	"units >= 1_000 * 1e6"
func CompilePredicates(exprs []string) ([]Predicate, error) {
	var preds []Predicate
	for _, raw := range exprs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := compile(raw)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func compile(expr string) (Predicate, error) {
	if strings.Contains(expr, " in ") {
		parts := strings.SplitN(expr, " in ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid in expression: %s", expr)
		}
		field := strings.TrimSpace(parts[0])
		rawList := strings.Split(parts[1], ",")
		values := make(map[string]struct{}, len(rawList))
		for _, v := range rawList {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			values[strings.ToLower(v)] = struct{}{}
		}
		return func(fields map[string]any) (bool, error) {
			arg, ok := fields[field]
			if !ok {
				return false, nil
			}
			_, hit := values[strings.ToLower(fmt.Sprint(arg))]
			return hit, nil
		}, nil
	}

	if strings.Contains(expr, " contains ") {
		parts := strings.SplitN(expr, " contains ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid contains expression: %s", expr)
		}
		field := strings.TrimSpace(parts[0])
		needle := strings.TrimSpace(parts[1])
		return func(fields map[string]any) (bool, error) {
			val, ok := fields[field]
			if !ok {
				return false, nil
			}
			return strings.Contains(fmt.Sprint(val), needle), nil
		}, nil
	}

	var op string
	switch {
	case strings.Contains(expr, "=="):
		op = "=="
	case strings.Contains(expr, "!="):
		op = "!="
	case strings.Contains(expr, ">="):
		op = ">="
	case strings.Contains(expr, "<="):
		op = "<="
	case strings.Contains(expr, ">"):
		op = ">"
	case strings.Contains(expr, "<"):
		op = "<"
	default:
		return nil, fmt.Errorf("unsupported expression: %s", expr)
	}

	parts := strings.SplitN(expr, op, 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid expression: %s", expr)
	}
	field := strings.TrimSpace(parts[0])
	rhsRaw := strings.TrimSpace(parts[1])
	if field == "" || rhsRaw == "" {
		return nil, fmt.Errorf("invalid expression: %s", expr)
	}

	numRHS, rhsIsNum := evaluateNumber(rhsRaw)

	return func(fields map[string]any) (bool, error) {
		val, ok := fields[field]
		if !ok {
			return false, nil
		}

		if rhsIsNum {
			lhs, ok := toNumber(val)
			if !ok {
				return false, nil
			}
			cmp := lhs.Cmp(numRHS)
			switch op {
			case "==":
				return cmp == 0, nil
			case "!=":
				return cmp != 0, nil
			case ">":
				return cmp > 0, nil
			case "<":
				return cmp < 0, nil
			case ">=":
				return cmp >= 0, nil
			case "<=":
				return cmp <= 0, nil
			}
		}

		// String comparisons; enum values match case-insensitively.
		lhs := fmt.Sprint(val)
		switch op {
		case "==":
			return strings.EqualFold(lhs, rhsRaw), nil
		case "!=":
			return !strings.EqualFold(lhs, rhsRaw), nil
		default:
			return false, nil
		}
	}, nil
}

// evaluateNumber evaluates a numeric expression exactly, supporting:
// - Simple numbers: "100", "1e6", "1_000_000", "0.5"
// - Helper functions: "wei(1e18)", "microAlgos(1e6)", "lamports(1e9)", "sun(1e6)"
// - Multiplication: "1_000_000 * 1e6"
func evaluateNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "_", "")

	if strings.Contains(s, "*") {
		parts := strings.Split(s, "*")
		if len(parts) != 2 {
			return decimal.Zero, false
		}
		a, ok1 := evaluateNumber(parts[0])
		b, ok2 := evaluateNumber(parts[1])
		if !ok1 || !ok2 {
			return decimal.Zero, false
		}
		return a.Mul(b), true
	}

	// Base unit helpers are identity functions that document intent.
	for _, fn := range []string{"wei(", "microAlgos(", "lamports(", "sun("} {
		if strings.HasPrefix(s, fn) && strings.HasSuffix(s, ")") {
			return evaluateNumber(s[len(fn) : len(s)-1])
		}
	}

	v, err := decimal.NewFromString(s)
	return v, err == nil
}

func toNumber(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0), true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case decimal.Decimal:
		return n, true
	case *big.Int:
		if n == nil {
			return decimal.Zero, false
		}
		return decimal.NewFromBigInt(n, 0), true
	case string:
		return evaluateNumber(n)
	default:
		return decimal.Zero, false
	}
}

// TokenBucket is a simple per-route rate limiter.
type TokenBucket struct {
	capacity float64
	rate     float64 // tokens per second

	tokens     float64
	lastUpdate time.Time
}

// NewTokenBucket creates a token bucket with capacity and refill rate.
func NewTokenBucket(capacity, rate float64) *TokenBucket {
	return &TokenBucket{
		capacity: capacity,
		rate:     rate,
		tokens:   capacity,
	}
}

// Allow consumes one token if available, refilling based on elapsed time.
func (b *TokenBucket) Allow(now time.Time) bool {
	if b.lastUpdate.IsZero() {
		b.lastUpdate = now
	}
	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.rate)
		b.lastUpdate = now
	}
	if b.tokens >= 1 {
		b.tokens -= 1
		return true
	}
	return false
}
