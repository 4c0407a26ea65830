package filter

// Operators.
const (
	Equals                  uint8 = iota // int
	GreaterThan                          // int
	GreaterThanOrEqual                   // int
	LessThan                             // int
	LessThanOrEqual                      // int
	FloatEquals                          // float
	FloatGreaterThan                     // float
	FloatGreaterThanOrEqual              // float
	FloatLessThan                        // float
	FloatLessThanOrEqual                 // float
	SameAs                               // string
	Contains                             // string
	StartsWith                           // string
	EndsWith                             // string
	In                                   // string
	Matches                              // regex
	Is                                   // bool
	Exists                               // any
	errorPresent            uint8 = 255
)

var operatorNames = map[string]uint8{
	"==":         Equals,
	">":          GreaterThan,
	">=":         GreaterThanOrEqual,
	"<":          LessThan,
	"<=":         LessThanOrEqual,
	"f==":        FloatEquals,
	"f>":         FloatGreaterThan,
	"f>=":        FloatGreaterThanOrEqual,
	"f<":         FloatLessThan,
	"f<=":        FloatLessThanOrEqual,
	"sameas":     SameAs,
	"s==":        SameAs,
	"contains":   Contains,
	"co":         Contains,
	"startswith": StartsWith,
	"sw":         StartsWith,
	"endswith":   EndsWith,
	"ew":         EndsWith,
	"in":         In,
	"matches":    Matches,
	"re":         Matches,
	"is":         Is,
	"exists":     Exists,
	"ex":         Exists,
}

// ParseOperator returns the operator with the given name.
func ParseOperator(name string) (operator uint8, ok bool) {
	operator, ok = operatorNames[name]
	return
}

func getOpName(operator uint8) string {
	// Prefer the longest name, aliases are shorter.
	var name string
	for opName, op := range operatorNames {
		if op == operator && len(opName) > len(name) {
			name = opName
		}
	}
	if name == "" {
		return "[unknown]"
	}
	return name
}
