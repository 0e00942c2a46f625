package mint

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/nutkeeper/internal/common"
	"github.com/dmitrijs2005/nutkeeper/internal/netx"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"spent", &netx.StatusError{Code: 400, Body: []byte(`{"code":11001,"detail":"Token already spent."}`)}, common.ErrAlreadySpent},
		{"quote expired", &netx.StatusError{Code: 400, Body: []byte(`{"code":20007,"detail":"expired"}`)}, common.ErrQuoteExpired},
		{"quote issued", &netx.StatusError{Code: 400, Body: []byte(`{"code":20002,"detail":"issued"}`)}, common.ErrQuoteIssued},
		{"server error", &netx.StatusError{Code: 502}, common.ErrNetworkUnavailable},
		{"breaker open", gobreaker.ErrOpenState, common.ErrNetworkUnavailable},
		{"transport", errors.New("dial tcp: connection refused"), common.ErrNetworkUnavailable},
		{"cancelled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.in), tt.want)
		})
	}
}

func TestClassify_PlainBody(t *testing.T) {
	err := classify(&netx.StatusError{Code: 404, Body: []byte("not found")})
	var me *Error
	assert.True(t, errors.As(err, &me))
	assert.Equal(t, "not found", me.Detail)
	assert.Equal(t, 404, me.Status)
	assert.Nil(t, me.Unwrap())
}
