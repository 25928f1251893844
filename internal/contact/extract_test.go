package contact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const samplePage = `<html><head>
<style>.x{background:url(a@b-style.com)}</style>
<script>gtag('config'); var dsn = "https://abc@sentry.io/1";</script>
</head><body>
<a href="mailto:Sales@Acme-Industrial.com?subject=RFQ">Sales@Acme-Industrial.com</a>
<img src="/img/logo@2x.png">
<p>Write to noreply@acme-industrial.com or john@example.com or someone@gmail.com</p>
<p data-contact="export@acme-industrial.com">Tel: +1 650 253 0000</p>
<p>Fax: +1 650 253 0000</p>
</body></html>`

func TestExtractFiltersNoiseAndDeduplicates(t *testing.T) {
	got := Extract(strings.NewReader(samplePage), "US")

	assert.Equal(t, []string{"sales@acme-industrial.com", "export@acme-industrial.com"}, got.Emails)
	assert.Equal(t, []string{"+16502530000"}, got.Phones)
}

func TestIsFalsePositive(t *testing.T) {
	assert.True(t, IsFalsePositive("logo@2x.png"))
	assert.True(t, IsFalsePositive("info@wixpress.com"))
	assert.True(t, IsFalsePositive("no-reply@acme.com"))
	assert.False(t, IsFalsePositive("sales@acme.com"))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "", NormalizePhone("123-456", ""))
	assert.Equal(t, "", NormalizePhone("12+34567890", ""))
	assert.Equal(t, "+16502530000", NormalizePhone("+1 (650) 253-0000", ""))
	assert.Equal(t, "+16502530000", NormalizePhone("650 253 0000", "US"))
	assert.Equal(t, "98765432", NormalizePhone("9876-5432", ""))
}

func TestRegionForCountry(t *testing.T) {
	assert.Equal(t, "GB", RegionForCountry("UK"))
	assert.Equal(t, "CN", RegionForCountry(" China "))
	assert.Equal(t, "DE", RegionForCountry("de"))
	assert.Equal(t, "", RegionForCountry("Atlantis"))
}
