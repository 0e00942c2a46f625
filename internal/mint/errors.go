package mint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/netx"
	"github.com/sony/gobreaker"
)

// Mint error codes the wallet reacts to.
const (
	CodeTokenAlreadySpent = 11001
	CodeQuoteIssued       = 20002
	CodeQuoteExpired      = 20007
)

// Error is a protocol error reported by the mint.
type Error struct {
	Code   int    `json:"code"`
	Detail string `json:"detail"`
	Status int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("mint error %d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("mint error: %s", e.Detail)
}

func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeTokenAlreadySpent:
		return common.ErrAlreadySpent
	case CodeQuoteIssued:
		return common.ErrQuoteIssued
	case CodeQuoteExpired:
		return common.ErrQuoteExpired
	}
	return nil
}

// classify turns transport, breaker and HTTP failures into wallet errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
	}

	var se *netx.StatusError
	if errors.As(err, &se) {
		if se.Temporary() {
			return fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, se)
		}
		me := &Error{Status: se.Code}
		if jerr := json.Unmarshal(se.Body, me); jerr != nil || (me.Code == 0 && me.Detail == "") {
			me.Detail = string(se.Body)
		}
		return me
	}

	var me *Error
	if errors.As(err, &me) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrNetworkUnavailable, err)
}
