package validate

import (
	"testing"

	"github.com/go-identity-quota/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	assert.True(t, Email("alice@example.com"))
	assert.True(t, Email("a.b+c@sub.example.org"))
	assert.False(t, Email(""))
	assert.False(t, Email("not-an-email"))
	assert.False(t, Email("a@"))
}

func TestStruct_ReportsMissingFields(t *testing.T) {
	err := Struct(&domain.RegisterRequest{Email: "a@b.com"})
	assert.ErrorContains(t, err, "Password")
	assert.ErrorContains(t, err, "Name")

	assert.NoError(t, Struct(&domain.RegisterRequest{Email: "a@b.com", Password: "pw", Name: "A"}))
}
