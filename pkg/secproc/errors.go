package secproc

import "github.com/joseinweb/secproc/pkg/secproc/errcode"

// Code and Error are re-exported from errcode so callers of this package
// never need to import the subpackage directly, following the teacher's
// aliases.go convention of re-exporting subpackage types at the top level.
type (
	Code  = errcode.Code
	Error = errcode.Error
)

const (
	CodeSuccess                = errcode.Success
	CodeFailure                = errcode.Failure
	CodeInvalidHandle          = errcode.InvalidHandle
	CodeInvalidParameters      = errcode.InvalidParameters
	CodeInvalidInputSize       = errcode.InvalidInputSize
	CodeInvalidPadding         = errcode.InvalidPadding
	CodeBufferTooSmall         = errcode.BufferTooSmall
	CodeNoSuchItem             = errcode.NoSuchItem
	CodeItemAlreadyProvisioned = errcode.ItemAlreadyProvisioned
	CodeItemNonRemovable       = errcode.ItemNonRemovable
	CodeVerificationFailed     = errcode.VerificationFailed
	CodeUnimplementedFeature   = errcode.UnimplementedFeature
)

var (
	ErrInvalidHandle          = errcode.ErrInvalidHandle
	ErrNoSuchItem             = errcode.ErrNoSuchItem
	ErrItemAlreadyProvisioned = errcode.ErrItemAlreadyProvisioned
	ErrItemNonRemovable       = errcode.ErrItemNonRemovable
	ErrVerificationFailed     = errcode.ErrVerificationFailed
	ErrUnimplementedFeature   = errcode.ErrUnimplementedFeature
	ErrInvalidParameters      = errcode.ErrInvalidParameters
	ErrInvalidInputSize       = errcode.ErrInvalidInputSize
	ErrInvalidPadding         = errcode.ErrInvalidPadding
	ErrBufferTooSmall         = errcode.ErrBufferTooSmall
)

// CodeOf extracts the Code from err.
func CodeOf(err error) Code {
	return errcode.Of(err)
}
