package debug

import (
	"runtime"
	"strings"
)

// CallerName returns the package-qualified name of the calling function (e.g. "referral.(*Service).handleProcessMessage"),
// for use as span name. Anonymous function suffixes (".func1") are stripped, so closures are named after their parent.
// skip counts stack frames above the caller of CallerName.
func CallerName(skip ...int) string {
	skipFrames := 1
	if len(skip) > 0 {
		skipFrames += skip[0]
	}
	pc, _, _, ok := runtime.Caller(skipFrames)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	name := fn.Name()
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		name = name[idx+1:]
	}
	for {
		idx := strings.LastIndex(name, ".func")
		if idx == -1 || !isDigits(name[idx+len(".func"):]) {
			break
		}
		name = name[:idx]
	}
	return name
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
