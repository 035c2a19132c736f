package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    Money
		wantErr bool
	}{
		{in: "1200", want: 120000},
		{in: "1200.5", want: 120050},
		{in: "1200.50", want: 120050},
		{in: "0.01", want: 1},
		{in: "-3.10", want: -310},
		{in: "92233720368547758.07", want: math.MaxInt64},
		{in: "-92233720368547758.08", want: math.MinInt64},
		{in: "1.005", wantErr: true},
		{in: "92233720368547758.08", wantErr: true},
		{in: "-92233720368547758.09", wantErr: true},
		{in: "100000000000000000000", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoney_StringAndJSON(t *testing.T) {
	assert.Equal(t, "1000.00", Major(1000).String())
	assert.Equal(t, "0.07", Money(7).String())
	assert.Equal(t, "-2.50", Money(-250).String())

	b, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Amount: 123456})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":1234.56}`, string(b))

	var in struct {
		A Money `json:"a"`
		B Money `json:"b"`
		C Money `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":10.5,"b":"99.99","c":null}`), &in))
	assert.Equal(t, Money(1050), in.A)
	assert.Equal(t, Money(9999), in.B)
	assert.Equal(t, Money(0), in.C)

	err = json.Unmarshal([]byte(`{"a":1.234}`), &in)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	err = json.Unmarshal([]byte(`{"a":100000000000000000000}`), &in)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMoney_ApplyBasisPoints(t *testing.T) {
	// 18% of 1000.00
	assert.Equal(t, Major(180), Major(1000).ApplyBasisPoints(1800))
	// 5% of 0.10 = 0.005, rounds half-up to 0.01
	assert.Equal(t, Money(1), Money(10).ApplyBasisPoints(500))
	assert.Equal(t, Money(0), Major(50).ApplyBasisPoints(0))
}

func TestMoney_NoDriftAcrossManyLines(t *testing.T) {
	var total Money
	for i := 0; i < 1000; i++ {
		total += MustMoney("0.10")
	}
	assert.Equal(t, Major(100), total)
	assert.Equal(t, "100.00", total.String())
}
