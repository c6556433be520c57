package domain

import "strings"

// Errors wraps errors that occur when multiple domains of the same tree
// are failing. Siblings are never skipped because of a failure, so the
// list can hold more than one error.
type Errors []error

func (e Errors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows errors.Is and errors.As to match any of wrapped errors.
func (e Errors) Unwrap() []error {
	return e
}

// add appends err if it's not nil. Nested Errors are flattened.
func (e Errors) add(err error) Errors {
	if err == nil {
		return e
	}
	if nested, ok := err.(Errors); ok {
		return append(e, nested...)
	}
	return append(e, err)
}

// ret returns untyped nil if error list is empty.
func (e Errors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}

// Join aggregates provided errors. It returns nil if all of them are nil.
func Join(errs ...error) error {
	var e Errors
	for _, err := range errs {
		e = e.add(err)
	}
	return e.ret()
}
