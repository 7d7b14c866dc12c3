package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegkarev/testcase-search/internal/core/domain"
)

func TestNormalizeLowercasesAndStripsPunctuation(t *testing.T) {
	tokens := Normalize("Open the Checkout page, THEN click 'Pay Now'!")

	assert.Equal(t, []string{"open", "checkout", "page", "click", "pay", "now"}, tokens)
}

func TestNormalizeIdempotentOnOwnOutput(t *testing.T) {
	first := Normalize("Login screen: enter VALID credentials & submit.")
	second := Normalize(strings.Join(first, " "))

	assert.Equal(t, first, second)
}

func TestNormalizeDropsStopWordsAndDuplicates(t *testing.T) {
	tokens := Normalize("the cart and the cart and the cart")

	assert.Equal(t, []string{"cart"}, tokens)
}

func TestNewDigestStableUnderTokenReordering(t *testing.T) {
	a := &domain.TestCase{
		Description: "payment succeeds with saved card",
		Steps:       []domain.Step{{Number: 1, Action: "open checkout"}},
	}
	b := &domain.TestCase{
		Description: "open checkout",
		Steps:       []domain.Step{{Number: 1, Action: "payment succeeds with saved card"}},
	}

	fa, fb := New(a), New(b)
	assert.Equal(t, fa.Digest, fb.Digest)
	// token order still reflects record order
	assert.NotEqual(t, fa.Tokens, fb.Tokens)
}

func TestNewDigestChangesWithContent(t *testing.T) {
	a := New(&domain.TestCase{Description: "login with valid password"})
	b := New(&domain.TestCase{Description: "login with invalid password"})

	assert.NotEqual(t, a.Digest, b.Digest)
}

func TestNewInsensitiveToWhitespaceAndCasing(t *testing.T) {
	a := New(&domain.TestCase{
		Description:   "Verify  Checkout   totals",
		Prerequisites: "Cart has items",
		Steps:         []domain.Step{{Number: 1, Action: "Open cart", Expected: "Totals shown"}},
	})
	b := New(&domain.TestCase{
		Description:   "verify checkout totals",
		Prerequisites: "cart has ITEMS",
		Steps:         []domain.Step{{Number: 1, Action: "open CART", Expected: "totals  shown"}},
	})

	require.Equal(t, a.Digest, b.Digest)
	assert.Equal(t, a.Set, b.Set)
}

func TestDigestHexWidth(t *testing.T) {
	fp := New(&domain.TestCase{Description: "x"})
	assert.Len(t, fp.DigestHex(), 16)
}
