package booking

import (
	"testing"

	"staybook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProrate(t *testing.T) {
	cases := []struct {
		name     string
		total    int64
		in, out  int
		extendTo int
		want     int64
	}{
		{"whole days", 400, 1, 5, 8, 300},
		{"one extra day", 400, 1, 5, 6, 100},
		{"rounds down below half", 100, 1, 4, 5, 33},
		{"rounds half up", 200, 1, 4, 5, 67},
		{"exact half", 5, 1, 3, 4, 3},
		{"free stay", 0, 1, 5, 9, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Prorate(tc.total, day(tc.in), day(tc.out), day(tc.extendTo))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Prorate(400, day(1), day(5), day(5))
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = Prorate(400, day(5), day(5), day(7))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestApplyCoupon(t *testing.T) {
	cases := []struct {
		name         string
		amount       int64
		coupon       *models.Coupon
		wantAmount   int64
		wantDiscount int64
	}{
		{"no coupon", 400, nil, 400, 0},
		{"percent", 400, &models.Coupon{Valid: true, PercentOff: 10}, 360, 40},
		{"percent rounds", 333, &models.Coupon{Valid: true, PercentOff: 15}, 283, 50},
		{"fixed", 400, &models.Coupon{Valid: true, AmountOff: 150}, 250, 150},
		{"fixed capped at total", 100, &models.Coupon{Valid: true, AmountOff: 150}, 0, 100},
		{"valid without discount", 400, &models.Coupon{Valid: true}, 400, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount, discount, err := ApplyCoupon(tc.amount, tc.coupon)
			require.NoError(t, err)
			assert.Equal(t, tc.wantAmount, amount)
			assert.Equal(t, tc.wantDiscount, discount)
		})
	}

	_, _, err := ApplyCoupon(400, &models.Coupon{Valid: false, PercentOff: 50})
	assert.Equal(t, KindValidation, KindOf(err))
}
