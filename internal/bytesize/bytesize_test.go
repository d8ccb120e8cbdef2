package bytesize_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/schauderb/gitlab-to-github-full-org-migration/internal/bytesize"
)

const (
	megabyteSuffixTestCaseNameConstant      = "megabyte_suffix"
	gigabyteSuffixTestCaseNameConstant      = "gigabyte_suffix"
	lowercaseKiloTestCaseNameConstant       = "lowercase_kilo_suffix"
	bareByteCountTestCaseNameConstant       = "bare_byte_count"
	binarySuffixTestCaseNameConstant        = "explicit_binary_suffix"
	fractionalValueTestCaseNameConstant     = "fractional_value"
	unknownSuffixTestCaseNameConstant       = "unknown_suffix"
	missingNumberTestCaseNameConstant       = "missing_number"
	emptyValueTestCaseNameConstant          = "empty_value"
	negativeValueTestCaseNameConstant       = "negative_value"
	whitespacePaddedTestCaseNameConstant    = "whitespace_padded_value"
	terabyteSuffixTestCaseNameConstant      = "terabyte_suffix"
	suffixOnlyByteTrailerTestCaseNameSuffix = "byte_trailer_only"
)

func TestParseBytes(testInstance *testing.T) {
	testCases := []struct {
		name          string
		input         string
		expectedBytes int64
		expectError   bool
	}{
		{name: megabyteSuffixTestCaseNameConstant, input: "100MB", expectedBytes: 104857600},
		{name: gigabyteSuffixTestCaseNameConstant, input: "2GB", expectedBytes: 2147483648},
		{name: lowercaseKiloTestCaseNameConstant, input: "750k", expectedBytes: 768000},
		{name: bareByteCountTestCaseNameConstant, input: "524288000", expectedBytes: 524288000},
		{name: binarySuffixTestCaseNameConstant, input: "1GiB", expectedBytes: 1073741824},
		{name: fractionalValueTestCaseNameConstant, input: "1.5M", expectedBytes: 1572864},
		{name: terabyteSuffixTestCaseNameConstant, input: "1T", expectedBytes: 1099511627776},
		{name: whitespacePaddedTestCaseNameConstant, input: "  64K ", expectedBytes: 65536},
		{name: suffixOnlyByteTrailerTestCaseNameSuffix, input: "512B", expectedBytes: 512},
		{name: unknownSuffixTestCaseNameConstant, input: "100XB", expectError: true},
		{name: missingNumberTestCaseNameConstant, input: "MB", expectError: true},
		{name: emptyValueTestCaseNameConstant, input: "", expectError: true},
		{name: negativeValueTestCaseNameConstant, input: "-5M", expectError: true},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subtest *testing.T) {
			parsedBytes, parseError := bytesize.ParseBytes(testCase.input)
			if testCase.expectError {
				parseFailure := bytesize.ParseError{}
				require.ErrorAs(subtest, parseError, &parseFailure)
				require.Equal(subtest, testCase.input, parseFailure.Input)
				return
			}
			require.NoError(subtest, parseError)
			require.Equal(subtest, testCase.expectedBytes, parsedBytes)
		})
	}
}
