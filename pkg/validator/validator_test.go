package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createRequest struct {
	Name          string `validate:"required,min=1,max=255"`
	DiscountType  string `validate:"required,oneof=percentage fixed"`
	DiscountValue int64  `validate:"required,gt=0"`
}

func TestValidate_Valid(t *testing.T) {
	err := Validate(createRequest{
		Name:          "Summer Sale",
		DiscountType:  "percentage",
		DiscountValue: 2000,
	})
	assert.NoError(t, err)
}

func TestValidate_MissingRequired(t *testing.T) {
	err := Validate(createRequest{
		DiscountType:  "percentage",
		DiscountValue: 2000,
	})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "is required", valErr.Fields()["Name"])
	assert.Contains(t, err.Error(), "Name")
}

func TestValidate_OneOf(t *testing.T) {
	err := Validate(createRequest{
		Name:          "Summer Sale",
		DiscountType:  "bogo",
		DiscountValue: 2000,
	})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "must be one of: percentage fixed", valErr.Fields()["DiscountType"])
}

func TestValidate_GreaterThan(t *testing.T) {
	err := Validate(createRequest{
		Name:          "Summer Sale",
		DiscountType:  "fixed",
		DiscountValue: -100,
	})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "must be greater than 0", valErr.Fields()["DiscountValue"])
}

func TestValidate_MultipleFailures(t *testing.T) {
	err := Validate(createRequest{})
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Len(t, valErr.Fields(), 3)
}
