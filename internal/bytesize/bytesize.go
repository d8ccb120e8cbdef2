// Package bytesize parses human-readable byte thresholds with binary unit suffixes.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kibibyteMultiplierConstant = int64(1) << 10
	mebibyteMultiplierConstant = int64(1) << 20
	gibibyteMultiplierConstant = int64(1) << 30
	tebibyteMultiplierConstant = int64(1) << 40

	kilobyteSuffixConstant = "K"
	megabyteSuffixConstant = "M"
	gigabyteSuffixConstant = "G"
	terabyteSuffixConstant = "T"

	byteSuffixTrailerConstant         = "B"
	binarySuffixInfixConstant         = "I"
	emptyInputMessageConstant         = "empty size value"
	unknownSuffixMessageTemplate      = "unknown size suffix %q"
	invalidNumberMessageTemplate      = "invalid numeric value %q"
	negativeValueMessageConstant      = "size must not be negative"
	parseErrorMessageTemplateConstant = "cannot parse size %q: %s"
)

// ParseError reports a size string that could not be interpreted.
type ParseError struct {
	Input  string
	Reason string
}

// Error implements the error interface.
func (failure ParseError) Error() string {
	return fmt.Sprintf(parseErrorMessageTemplateConstant, failure.Input, failure.Reason)
}

// ParseBytes converts values such as "100MB", "2GiB", "750k", or "524288000"
// into a byte count. Unit suffixes are binary: K, M, G, and T multiply by
// powers of 1024, with optional "B" or "iB" trailers and any letter casing.
func ParseBytes(sizeValue string) (int64, error) {
	trimmedValue := strings.TrimSpace(sizeValue)
	if len(trimmedValue) == 0 {
		return 0, ParseError{Input: sizeValue, Reason: emptyInputMessageConstant}
	}

	numericPortion := trimmedValue
	suffixPortion := ""
	for index, character := range trimmedValue {
		if (character >= '0' && character <= '9') || character == '.' || (index == 0 && character == '-') {
			continue
		}
		numericPortion = trimmedValue[:index]
		suffixPortion = trimmedValue[index:]
		break
	}

	multiplier, suffixError := resolveMultiplier(suffixPortion)
	if suffixError != nil {
		return 0, ParseError{Input: sizeValue, Reason: suffixError.Error()}
	}

	numericValue, numericError := strconv.ParseFloat(numericPortion, 64)
	if numericError != nil {
		return 0, ParseError{Input: sizeValue, Reason: fmt.Sprintf(invalidNumberMessageTemplate, numericPortion)}
	}
	if numericValue < 0 {
		return 0, ParseError{Input: sizeValue, Reason: negativeValueMessageConstant}
	}

	return int64(numericValue * float64(multiplier)), nil
}

func resolveMultiplier(suffixPortion string) (int64, error) {
	normalizedSuffix := strings.ToUpper(strings.TrimSpace(suffixPortion))
	normalizedSuffix = strings.TrimSuffix(normalizedSuffix, byteSuffixTrailerConstant)
	normalizedSuffix = strings.TrimSuffix(normalizedSuffix, binarySuffixInfixConstant)

	switch normalizedSuffix {
	case "":
		return 1, nil
	case kilobyteSuffixConstant:
		return kibibyteMultiplierConstant, nil
	case megabyteSuffixConstant:
		return mebibyteMultiplierConstant, nil
	case gigabyteSuffixConstant:
		return gibibyteMultiplierConstant, nil
	case terabyteSuffixConstant:
		return tebibyteMultiplierConstant, nil
	default:
		return 0, fmt.Errorf(unknownSuffixMessageTemplate, suffixPortion)
	}
}
