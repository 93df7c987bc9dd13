// Package errors provides coded errors for the credential subsystem.
//
// Every failure that crosses a package boundary carries an ErrorCode. Login
// failures keep their precise code internally (wrong password, missing
// password, unknown algorithm) so audit and logs can tell them apart, while
// the message shown to the requester is always GenericLoginMessage.
//
//	err := errors.AccountLocked(12 * time.Minute)
//	errors.IsCode(err, errors.ErrCodeAccountLocked) // true
//	err.HTTPStatusCode()                           // 423
package errors
