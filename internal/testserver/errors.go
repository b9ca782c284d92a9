package testserver

import "errors"

var errNotACommand = errors.New("testserver: frame is not a well-formed command array")
