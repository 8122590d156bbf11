package ports

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentFilter_Offset(t *testing.T) {
	tests := []struct {
		name   string
		filter PaymentFilter
		want   int
	}{
		{"first page", PaymentFilter{Page: 1, Limit: 20}, 0},
		{"third page", PaymentFilter{Page: 3, Limit: 20}, 40},
		{"zero page", PaymentFilter{Page: 0, Limit: 20}, 0},
		{"zero limit", PaymentFilter{Page: 5, Limit: 0}, 0},
		{"overflow saturates", PaymentFilter{Page: math.MaxInt, Limit: 20}, math.MaxInt},
		{"largest exact page", PaymentFilter{Page: math.MaxInt/20 + 1, Limit: 20}, math.MaxInt / 20 * 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Offset())
		})
	}
}
