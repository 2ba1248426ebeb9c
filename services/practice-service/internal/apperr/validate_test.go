package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

type sampleInput struct {
	Plan  string `json:"plan" validate:"required,oneof=free starter"`
	Note  string `json:"note" validate:"max=5"`
	Email string `json:"email" validate:"omitempty,email"`
}

func TestFromValidation(t *testing.T) {
	v := NewValidator()

	e := FromValidation(v.Struct(sampleInput{}))
	require.NotNil(t, e)
	assert.Equal(t, "plan is required", e.Message())

	e = FromValidation(v.Struct(sampleInput{Plan: "gold"}))
	assert.Equal(t, "plan must be one of: free, starter", e.Message())

	e = FromValidation(v.Struct(sampleInput{Plan: "free", Note: "too long"}))
	assert.Equal(t, "note must be at most 5 characters", e.Message())
	assert.Equal(t, "note darf höchstens 5 Zeichen lang sein", e.Localize(language.German))

	e = FromValidation(v.Struct(sampleInput{Plan: "free", Email: "nope"}))
	assert.Equal(t, "email is invalid", e.Message())

	assert.Nil(t, FromValidation(v.Struct(sampleInput{Plan: "starter"})))
	assert.ErrorIs(t, FromValidation(errors.New("boom")), ErrValidation)
}
