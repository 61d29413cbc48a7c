package booking

import (
	"math"
	"time"

	"staybook/models"
)

// ApplyCoupon returns the discounted amount and the discount taken. The
// result never goes below zero.
func ApplyCoupon(amount int64, coupon *models.Coupon) (int64, int64, error) {
	if coupon == nil {
		return amount, 0, nil
	}
	if !coupon.Valid {
		return 0, 0, NewValidationError("coupon is not valid")
	}

	var discount int64
	switch {
	case coupon.PercentOff > 0:
		discount = int64(math.Round(float64(amount) * coupon.PercentOff / 100))
	case coupon.AmountOff > 0:
		discount = coupon.AmountOff
	}
	if discount > amount {
		discount = amount
	}
	return amount - discount, discount, nil
}

// Prorate prices an extension of [checkIn, checkOut) to newCheckOut at the
// reservation's daily rate, rounded half away from zero to the minor unit.
func Prorate(total int64, checkIn, checkOut, newCheckOut time.Time) (int64, error) {
	originalDays := int64(models.Nights(checkIn, checkOut))
	if originalDays <= 0 {
		return 0, NewValidationError("reservation has no nights to prorate")
	}
	if !newCheckOut.After(checkOut) {
		return 0, NewValidationError("new checkout must be after the current checkout")
	}
	additionalDays := int64(models.Nights(checkIn, newCheckOut)) - originalDays

	num := total * additionalDays
	return (2*num + originalDays) / (2 * originalDays), nil
}
