package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVariant(t *testing.T) {
	productID := uuid.New()

	t.Run("creates variant with valid inputs", func(t *testing.T) {
		v, err := NewVariant(productID, "4012", 1395, "USD")
		require.NoError(t, err)
		require.NotNil(t, v)

		assert.Equal(t, productID, v.ProductID)
		assert.Equal(t, "4012", v.ExternalID)
		assert.Equal(t, int64(1395), v.BasePriceMinorUnits)
		assert.Equal(t, "USD", v.BaseCurrency)
		assert.Equal(t, EntityStatusActive, v.Status)
		assert.NotNil(t, v.Attributes)
	})

	t.Run("fails with nil product", func(t *testing.T) {
		_, err := NewVariant(uuid.Nil, "4012", 1395, "USD")
		require.Error(t, err)
	})

	t.Run("fails with negative price", func(t *testing.T) {
		_, err := NewVariant(productID, "4012", -1, "USD")
		require.Error(t, err)
	})

	t.Run("fails with lowercase currency", func(t *testing.T) {
		_, err := NewVariant(productID, "4012", 1395, "usd")
		require.Error(t, err)
	})

	t.Run("fails with short currency", func(t *testing.T) {
		_, err := NewVariant(productID, "4012", 1395, "US")
		require.Error(t, err)
	})

	t.Run("allows zero price", func(t *testing.T) {
		v, err := NewVariant(productID, "4012", 0, "USD")
		require.NoError(t, err)
		assert.Zero(t, v.BasePriceMinorUnits)
	})
}

func TestAttributeMap(t *testing.T) {
	t.Run("value marshals to JSON", func(t *testing.T) {
		m := AttributeMap{"size": "L", "color": "Black"}

		v, err := m.Value()
		require.NoError(t, err)
		assert.Contains(t, v.(string), `"size":"L"`)
	})

	t.Run("nil map marshals to empty object", func(t *testing.T) {
		var m AttributeMap

		v, err := m.Value()
		require.NoError(t, err)
		assert.Equal(t, "{}", v)
	})

	t.Run("scan round-trips bytes and strings", func(t *testing.T) {
		var fromBytes AttributeMap
		require.NoError(t, fromBytes.Scan([]byte(`{"size":"L"}`)))
		assert.Equal(t, "L", fromBytes["size"])

		var fromString AttributeMap
		require.NoError(t, fromString.Scan(`{"color":"Black"}`))
		assert.Equal(t, "Black", fromString["color"])
	})

	t.Run("scan of nil yields empty map", func(t *testing.T) {
		var m AttributeMap
		require.NoError(t, m.Scan(nil))
		assert.Empty(t, m)
	})

	t.Run("scan rejects unsupported types", func(t *testing.T) {
		var m AttributeMap
		require.Error(t, m.Scan(42))
	})

	t.Run("equal compares dimensions", func(t *testing.T) {
		a := AttributeMap{"size": "L", "color": "Black"}

		assert.True(t, a.Equal(AttributeMap{"color": "Black", "size": "L"}))
		assert.False(t, a.Equal(AttributeMap{"size": "L"}))
		assert.False(t, a.Equal(AttributeMap{"size": "L", "color": "White"}))
	})
}

func TestVariant_MergeFrom(t *testing.T) {
	newPersisted := func(t *testing.T) *Variant {
		t.Helper()
		v, err := NewVariant(uuid.New(), "4012", 1395, "USD")
		require.NoError(t, err)
		v.SKU = "TS-BLK-L"
		v.Attributes = AttributeMap{"size": "L", "color": "Black"}
		return v
	}

	t.Run("applies price change", func(t *testing.T) {
		v := newPersisted(t)
		in := &Variant{BasePriceMinorUnits: 1495}

		changed := v.MergeFrom(in)

		assert.True(t, changed)
		assert.Equal(t, int64(1495), v.BasePriceMinorUnits)
	})

	t.Run("zero incoming price is not a change", func(t *testing.T) {
		v := newPersisted(t)
		in := &Variant{SKU: "TS-BLK-L"}

		changed := v.MergeFrom(in)

		assert.False(t, changed)
		assert.Equal(t, int64(1395), v.BasePriceMinorUnits)
	})

	t.Run("attribute change is a change", func(t *testing.T) {
		v := newPersisted(t)
		in := &Variant{Attributes: AttributeMap{"size": "XL", "color": "Black"}}

		changed := v.MergeFrom(in)

		assert.True(t, changed)
		assert.Equal(t, "XL", v.Attributes["size"])
	})

	t.Run("equal attributes are a no-op", func(t *testing.T) {
		v := newPersisted(t)
		in := &Variant{Attributes: AttributeMap{"color": "Black", "size": "L"}}

		changed := v.MergeFrom(in)

		assert.False(t, changed)
	})

	t.Run("currency change is a change", func(t *testing.T) {
		v := newPersisted(t)
		in := &Variant{BaseCurrency: "EUR"}

		changed := v.MergeFrom(in)

		assert.True(t, changed)
		assert.Equal(t, "EUR", v.BaseCurrency)
	})

	t.Run("re-reported removed variant is revived", func(t *testing.T) {
		v := newPersisted(t)
		v.MarkRemoved()
		in := &Variant{SKU: "TS-BLK-L"}

		changed := v.MergeFrom(in)

		assert.True(t, changed)
		assert.True(t, v.IsActive())
	})
}
