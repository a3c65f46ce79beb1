package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func validCard() Instrument {
	return Instrument{
		Method: MethodCard,
		Card: &CardDetails{
			Number: "4532015112830366", // passes Luhn
			Expiry: "09/27",
			CVV:    "123",
			Holder: "Awa Ndiaye",
		},
	}
}

func TestValidate_MobileMoneyVariants(t *testing.T) {
	for _, method := range []Method{MethodMobileMoney, MethodOrangeMoney} {
		in := Instrument{
			Method:      method,
			MobileMoney: &MobileMoneyDetails{Phone: "+221771234567", ConfirmationCode: "4512"},
		}
		assert.NoError(t, in.Validate(testNow), string(method))
	}
}

func TestValidate_MobileMoneyBadPhone(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"too short": "123",
		"letters":   "77abc4567",
		"too long":  "1234567890123456",
	}
	for name, phone := range cases {
		t.Run(name, func(t *testing.T) {
			in := Instrument{
				Method:      MethodMobileMoney,
				MobileMoney: &MobileMoneyDetails{Phone: phone, ConfirmationCode: "4512"},
			}
			var iiErr *InvalidInstrumentError
			require.ErrorAs(t, in.Validate(testNow), &iiErr)
			assert.Equal(t, "phone", iiErr.Field)
		})
	}
}

func TestValidate_MobileMoneyBadCode(t *testing.T) {
	in := Instrument{
		Method:      MethodOrangeMoney,
		MobileMoney: &MobileMoneyDetails{Phone: "771234567", ConfirmationCode: "12"},
	}
	var iiErr *InvalidInstrumentError
	require.ErrorAs(t, in.Validate(testNow), &iiErr)
	assert.Equal(t, "confirmation_code", iiErr.Field)
}

func TestValidate_MissingDetails(t *testing.T) {
	var iiErr *InvalidInstrumentError

	in := Instrument{Method: MethodMobileMoney}
	require.ErrorAs(t, in.Validate(testNow), &iiErr)

	in = Instrument{Method: MethodCard}
	require.ErrorAs(t, in.Validate(testNow), &iiErr)
}

func TestValidate_UnknownMethod(t *testing.T) {
	in := Instrument{Method: "barter"}
	var iiErr *InvalidInstrumentError
	require.ErrorAs(t, in.Validate(testNow), &iiErr)
	assert.Equal(t, "method", iiErr.Field)
}

func TestValidate_Card(t *testing.T) {
	assert.NoError(t, validCard().Validate(testNow))

	// Spaced numbers are accepted.
	in := validCard()
	in.Card.Number = "4532 0151 1283 0366"
	assert.NoError(t, in.Validate(testNow))
}

func TestValidate_CardLuhnFailure(t *testing.T) {
	in := validCard()
	in.Card.Number = "4532015112830367"

	var iiErr *InvalidInstrumentError
	require.ErrorAs(t, in.Validate(testNow), &iiErr)
	assert.Equal(t, "number", iiErr.Field)
	assert.Equal(t, "failed checksum", iiErr.Reason)
}

func TestValidate_CardExpiry(t *testing.T) {
	// Valid through the end of the expiry month.
	in := validCard()
	in.Card.Expiry = "03/26"
	assert.NoError(t, in.Validate(testNow))

	in.Card.Expiry = "02/26"
	var iiErr *InvalidInstrumentError
	require.ErrorAs(t, in.Validate(testNow), &iiErr)
	assert.Equal(t, "expiry", iiErr.Field)

	in.Card.Expiry = "13/26"
	require.ErrorAs(t, in.Validate(testNow), &iiErr)

	in.Card.Expiry = "2026-03"
	require.ErrorAs(t, in.Validate(testNow), &iiErr)
}

func TestValidate_CardCVVAndHolder(t *testing.T) {
	var iiErr *InvalidInstrumentError

	in := validCard()
	in.Card.CVV = "12"
	require.ErrorAs(t, in.Validate(testNow), &iiErr)
	assert.Equal(t, "cvv", iiErr.Field)

	in = validCard()
	in.Card.Holder = "   "
	require.ErrorAs(t, in.Validate(testNow), &iiErr)
	assert.Equal(t, "holder", iiErr.Field)
}
