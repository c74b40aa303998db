/*
Package errors implements the error values shared by all channel packages.

Every failure is rooted in one of the errors registered in this package. Use
ErrXyz.New and ErrXyz.Newf to create an instance, errors.Wrap to add context
while keeping the root, and ErrXyz.Is to test for a kind. The root code is
exposed to chain clients through ABCIInfo.

A stack trace is attached the first time an error is wrapped. Formatting an
error gives:

	%s just the error message
	%+v the full stack trace
	%v the message and a compressed [filename:line] of the creation point
*/
package errors
