package validation

import "github.com/dhcw/wpas-referral-proxy/lib/fhirerr"

// Validator validates a value of type T, collecting all failures in the returned Outcome.
type Validator[T any] interface {
	Validate(t T) Outcome
}

// Outcome is the ordered list of errors found by a validator. An empty Outcome means validation succeeded.
type Outcome struct {
	Errors []fhirerr.Error
}

func (o Outcome) IsSuccessful() bool {
	return len(o.Errors) == 0
}

// Add appends an error to the outcome.
func (o *Outcome) Add(kind fhirerr.Kind, message string) {
	o.Errors = append(o.Errors, fhirerr.New(kind, message))
}

// Append appends all errors of another outcome.
func (o *Outcome) Append(other Outcome) {
	o.Errors = append(o.Errors, other.Errors...)
}

// Messages returns the diagnostics of all errors, in order.
func (o Outcome) Messages() []string {
	result := make([]string, 0, len(o.Errors))
	for _, err := range o.Errors {
		result = append(result, err.Diagnostics)
	}
	return result
}
