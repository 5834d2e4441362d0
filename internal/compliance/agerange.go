package compliance

import (
	"regexp"
	"strconv"
	"strings"
)

var integerRun = regexp.MustCompile(`\d+`)

// maxAgeDigits bounds an age value; longer runs are treated as unparseable
// so the month conversion cannot overflow.
const maxAgeDigits = 4

// ParseAgeRange converts free text such as "11–18 yrs", "4-6 years" or
// "12–15 months" into a [start, end] interval in months.
//
// The first integer is the start, the second (if any) the end; a single
// integer yields start == end. Values are years unless the text mentions
// "month". Blank or unparseable text yields (0, 0) and never an error.
func ParseAgeRange(text string) (startMonths, endMonths int) {
	if strings.TrimSpace(text) == "" {
		return 0, 0
	}

	runs := integerRun.FindAllString(text, 2)
	if len(runs) == 0 {
		return 0, 0
	}
	for _, run := range runs {
		if len(run) > maxAgeDigits {
			return 0, 0
		}
	}

	start, err := strconv.Atoi(runs[0])
	if err != nil {
		return 0, 0
	}
	end := start
	if len(runs) > 1 {
		if end, err = strconv.Atoi(runs[1]); err != nil {
			return 0, 0
		}
	}

	if !strings.Contains(strings.ToLower(text), "month") {
		start *= 12
		end *= 12
	}
	return start, end
}
