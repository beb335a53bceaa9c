package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrDuplicateOrder is returned when the durable unique index on
// (company_id, channel, marketplace_order_id) rejects an insert. Callers
// treat it as a correctly-detected duplicate, not a failure.
var ErrDuplicateOrder = errors.New("duplicate marketplace order")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
