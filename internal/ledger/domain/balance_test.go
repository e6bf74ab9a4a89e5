package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBalanced(t *testing.T) {
	ok := []VoucherLine{
		{AccountID: 1, Debit: 11000},
		{AccountID: 2, Credit: 10000},
		{AccountID: 3, Credit: 1000},
	}
	assert.NoError(t, ValidateBalanced(ok))
}

func TestValidateBalanced_TooFewLines(t *testing.T) {
	assert.ErrorIs(t, ValidateBalanced(nil), ErrInvalidVoucherLines)
	assert.ErrorIs(t, ValidateBalanced([]VoucherLine{{AccountID: 1, Debit: 100}}), ErrInvalidVoucherLines)
}

func TestValidateBalanced_NegativeAmount(t *testing.T) {
	lines := []VoucherLine{
		{AccountID: 1, Debit: -100},
		{AccountID: 2, Credit: -100},
	}
	assert.ErrorIs(t, ValidateBalanced(lines), ErrInvalidLineAmount)
}

func TestValidateBalanced_ExactlyOneSidePerLine(t *testing.T) {
	bothSides := []VoucherLine{
		{AccountID: 1, Debit: 100, Credit: 100},
		{AccountID: 2, Credit: 100},
	}
	assert.ErrorIs(t, ValidateBalanced(bothSides), ErrInvalidLineAmount)

	emptyLine := []VoucherLine{
		{AccountID: 1, Debit: 100},
		{AccountID: 2},
	}
	assert.ErrorIs(t, ValidateBalanced(emptyLine), ErrInvalidLineAmount)
}

func TestValidateBalanced_SumsMustMatch(t *testing.T) {
	lines := []VoucherLine{
		{AccountID: 1, Debit: 100},
		{AccountID: 2, Credit: 99},
	}
	assert.ErrorIs(t, ValidateBalanced(lines), ErrUnbalancedVoucher)
}
