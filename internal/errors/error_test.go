package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "contract violation in insert: row count mismatch",
		NewContractViolationError("insert", "row count mismatch").Error())

	assert.Equal(t, "resource exhausted (bitmap_lru): capacity 16 exceeded",
		NewResourceExhaustedError("bitmap_lru", "capacity 16 exceeded").Error())

	assert.Equal(t, "index mismatch for field embedding: dimension 128 != 256",
		NewIndexMismatchError("embedding", "dimension 128 != 256").Error())

	assert.Equal(t, "unimplemented: dsl string parser",
		NewUnimplementedError("dsl string parser").Error())

	assert.Equal(t, "not ready for search: sealed segment has no loaded vector field",
		NewNotReadyError("search", "sealed segment has no loaded vector field").Error())
}

func TestMalformedPlanWrapping(t *testing.T) {
	cause := errors.New("protowire: unexpected field number")
	err := WrapMalformedPlanError(cause, "decode_placeholder_group", "bad field")
	assert.Contains(t, err.Error(), "malformed plan in decode_placeholder_group: bad field")
	assert.Contains(t, err.Error(), "protowire: unexpected field number")
	assert.Equal(t, cause, errors.Unwrap(err))

	assert.Nil(t, WrapMalformedPlanError(nil, "op", "msg"))
}

func TestInternalErrorWrapping(t *testing.T) {
	cause := errors.New("index out of range")
	err := NewInternalError("bulk_subscript", cause)
	assert.Contains(t, err.Error(), "internal error during bulk_subscript")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"nil", nil, codes.OK},
		{"contract", NewContractViolationError("op", "msg"), codes.InvalidArgument},
		{"resource", NewResourceExhaustedError("r", "msg"), codes.ResourceExhausted},
		{"plan", NewMalformedPlanError("op", "msg"), codes.InvalidArgument},
		{"index", NewIndexMismatchError("f", "msg"), codes.FailedPrecondition},
		{"unimplemented", NewUnimplementedError("feature"), codes.Unimplemented},
		{"notready", NewNotReadyError("op", "msg"), codes.Unavailable},
		{"internal", NewInternalError("op", errors.New("x")), codes.Internal},
		{"unknown", errors.New("plain error"), codes.Internal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, msg := ToStatus(tc.err)
			assert.Equal(t, int32(tc.code), code)
			if tc.err == nil {
				assert.Empty(t, msg)
			} else {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestRecoverAssertion(t *testing.T) {
	var outer error
	func() {
		defer func() {
			outer = RecoverAssertion(recover(), "search", &outer)
		}()
		panic(errors.New("internal invariant violated: ack horizon regressed"))
	}()

	assert.Error(t, outer)
	var internalErr *ErrInternal
	assert.True(t, errors.As(outer, &internalErr))
}
