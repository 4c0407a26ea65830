package log

const colorReset = "\033[0m"

var severityColors = map[Severity]string{
	DebugLevel:    "\033[36m",
	InfoLevel:     "\033[34m",
	WarningLevel:  "\033[33m",
	ErrorLevel:    "\033[31m",
	CriticalLevel: "\033[35m",
}

// color returns the terminal color of the severity, if it has one.
func (s Severity) color() string {
	return severityColors[s]
}

func endColor() string {
	return colorReset
}
