// Errno codes reported by the volume layer and the break catalog. They mirror
// the POSIX values of the same name, but the syscall package doesn't define
// all of them on every platform (EUCLEAN in particular).

package errors

import (
	"fmt"
)

type Errno int

const (
	EOK Errno = iota
	ENOENT
	EIO
	ENOMEM
	EBUSY
	EINVAL
	ERANGE
	ENAMETOOLONG
	ENOTSUP
	EUCLEAN
)

var errorMessagesByCode = map[Errno]string{
	EOK:          "Success",
	ENOENT:       "No such file or directory",
	EIO:          "Input/output error",
	ENOMEM:       "Cannot allocate memory",
	EBUSY:        "Device or resource busy",
	EINVAL:       "Invalid argument",
	ERANGE:       "Numerical result out of range",
	ENAMETOOLONG: "File name too long",
	ENOTSUP:      "Operation not supported",
	EUCLEAN:      "Structure needs cleaning",
}

var ErrNotFound = New(ENOENT)
var ErrIOFailed = New(EIO)
var ErrOutOfMemory = New(ENOMEM)
var ErrBusy = New(EBUSY)
var ErrInvalidArgument = New(EINVAL)
var ErrResultOutOfRange = New(ERANGE)
var ErrNameTooLong = New(ENAMETOOLONG)
var ErrNotSupported = New(ENOTSUP)
var ErrFileSystemCorrupted = New(EUCLEAN)

func StrError(code Errno) string {
	message, ok := errorMessagesByCode[code]
	if ok {
		return message
	}
	return fmt.Sprintf("error %d not recognized.", int(code))
}
