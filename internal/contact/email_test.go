package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"Sales@Acme.com":                  "sales@acme.com",
		"mailto:info@acme.com?subject=RFQ": "info@acme.com",
		" <export@acme.co.uk>. ":          "export@acme.co.uk",
		"not-an-email":                    "",
		"":                                "",
		"a@b":                             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeEmail(in), "input %q", in)
	}
}

func TestIsBusinessEmail(t *testing.T) {
	assert.True(t, IsBusinessEmail("sales@acme-industrial.com"))
	assert.True(t, IsBusinessEmail("export@factory.com.cn"))
	assert.True(t, IsBusinessEmail("export@163.com"))
	assert.False(t, IsBusinessEmail("buyer@gmail.com"))
	assert.False(t, IsBusinessEmail("Owner@Hotmail.com"))
	assert.False(t, IsBusinessEmail("x@123.com"))
	assert.False(t, IsBusinessEmail("garbage"))
}

func TestRegistrableDomain(t *testing.T) {
	assert.Equal(t, "acme.co.uk", RegistrableDomain("shop.acme.co.uk"))
	assert.Equal(t, "acme.com", RegistrableDomain("www.acme.com"))
	assert.Equal(t, "acme.com", RegistrableDomain("ACME.com."))
	assert.Equal(t, "", RegistrableDomain(""))
	assert.Equal(t, "acme.com", RegistrableDomain(EmailDomain("sales@mail.acme.com")))
}
