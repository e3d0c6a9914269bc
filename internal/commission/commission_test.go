package commission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasteflow/wasteflow/internal/apperr"
)

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func TestApplyPercentage(t *testing.T) {
	res, err := Apply(10000, Input{Type: TypePercentage, Rate: f64(8.5)})
	require.NoError(t, err)
	assert.Equal(t, int64(850), res.Amount)
	assert.Equal(t, int64(9150), res.NetAmount)
	assert.False(t, res.IsManual)

	// Fractional results round down, never up.
	res, err = Apply(9999, Input{Type: TypePercentage, Rate: f64(8.5)})
	require.NoError(t, err)
	assert.Equal(t, int64(849), res.Amount)
	assert.Equal(t, int64(9150), res.NetAmount)

	res, err = Apply(10000, Input{Type: TypePercentage, Rate: f64(100)})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), res.Amount)
	assert.Equal(t, int64(0), res.NetAmount)
}

func TestApplyPercentageValidation(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"missing rate", Input{Type: TypePercentage}},
		{"zero rate", Input{Type: TypePercentage, Rate: f64(0)}},
		{"negative rate", Input{Type: TypePercentage, Rate: f64(-5)}},
		{"rate above 100", Input{Type: TypePercentage, Rate: f64(100.1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(10000, tt.in)
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "commission_rate", verr.Field)
		})
	}
}

func TestApplyFixedAmount(t *testing.T) {
	res, err := Apply(10000, Input{Type: TypeFixedAmount, Amount: i64(1200)})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), res.Amount)
	assert.Equal(t, int64(8800), res.NetAmount)
	assert.Nil(t, res.Rate)
	assert.False(t, res.IsManual)

	// A fixed amount above the base legally drives net negative.
	res, err = Apply(1000, Input{Type: TypeFixedAmount, Amount: i64(1500)})
	require.NoError(t, err)
	assert.Equal(t, int64(-500), res.NetAmount)

	_, err = Apply(10000, Input{Type: TypeFixedAmount})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "commission_amount", verr.Field)

	_, err = Apply(10000, Input{Type: TypeFixedAmount, Amount: i64(-1)})
	require.ErrorAs(t, err, &verr)
}

func TestApplyManual(t *testing.T) {
	res, err := Apply(10000, Input{Type: TypeManual, Amount: i64(700), Rate: f64(7)})
	require.NoError(t, err)
	assert.True(t, res.IsManual)
	assert.Equal(t, int64(700), res.Amount)
	assert.Equal(t, int64(9300), res.NetAmount)
	// Rate is informational only, carried through untouched.
	require.NotNil(t, res.Rate)
	assert.Equal(t, 7.0, *res.Rate)

	_, err = Apply(10000, Input{Type: TypeManual})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "commission_amount", verr.Field)
}

func TestApplyUnknownType(t *testing.T) {
	_, err := Apply(10000, Input{Type: "TIERED"})
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "commission_type", verr.Field)
}

func TestValidType(t *testing.T) {
	assert.True(t, ValidType(TypePercentage))
	assert.True(t, ValidType(TypeFixedAmount))
	assert.True(t, ValidType(TypeManual))
	assert.False(t, ValidType("percentage"))
	assert.False(t, ValidType(""))
}
