// Command capi is the C-ABI façade for themis (SPEC_FULL.md §4.F), built
// with `go build -buildmode=c-archive` or `-buildmode=c-shared` against
// this directory to produce a .a/.h or .so/.h pair a C program links
// against directly -- the opaque-handle, status-enum surface
// cmd/schemagen's generated header declares.
//
// Handles are minted with runtime/cgo.Handle rather than returned as raw
// Go pointers: cgo forbids C code from holding a pointer into the Go
// heap, and cgo.Handle is the standard library's own answer to exactly
// this problem (an opaque integer token backed by a runtime-internal
// table), so themis_handle is a uint64_t token, never a pointer.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

/*
#include <stdint.h>
*/
import "C"

import (
	"os"
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/agilira/themis"
	"github.com/agilira/themis/schemagen"
)

// Status mirrors the themis_status enum cmd/schemagen emits into the
// generated C header.
type Status = C.int

const (
	statusOK              Status = 0
	statusNotFound        Status = 1
	statusTypeMismatch    Status = 2
	statusOutOfRange      Status = 3
	statusNotAllowed      Status = 4
	statusConstParameter  Status = 5
	statusIOError         Status = 6
	statusDBError         Status = 7
	statusInvalidState    Status = 8
	statusInvalidConfig   Status = 9
	statusInternal        Status = 10
)

// lastErrors stashes the most recent error per handle, so
// themis_last_error can render it into a caller-owned buffer without the
// Go side having to return a Go string across the boundary on every call.
var lastErrors sync.Map // cgo.Handle -> error

func statusFor(err error) Status {
	if err == nil {
		return statusOK
	}
	switch themis.ErrorCode(err) {
	case themis.ErrCodeNotFound:
		return statusNotFound
	case themis.ErrCodeTypeMismatch:
		return statusTypeMismatch
	case themis.ErrCodeOutOfRange:
		return statusOutOfRange
	case themis.ErrCodeNotAllowed:
		return statusNotAllowed
	case themis.ErrCodeConstParameter:
		return statusConstParameter
	case themis.ErrCodeIoError:
		return statusIOError
	case themis.ErrCodeDbError:
		return statusDBError
	case themis.ErrCodeInvalidState:
		return statusInvalidState
	case themis.ErrCodeInvalidConfig:
		return statusInvalidConfig
	default:
		return statusInternal
	}
}

func recordError(h cgo.Handle, err error) Status {
	if err != nil {
		lastErrors.Store(h, err)
	} else {
		lastErrors.Delete(h)
	}
	return statusFor(err)
}

//export themis_open
func themis_open(databasePath, schemaPath *C.char) C.uint64_t {
	data, err := os.ReadFile(C.GoString(schemaPath))
	if err != nil {
		return 0
	}
	compiled, err := schemagen.Compile(data)
	if err != nil {
		return 0
	}
	descriptors, err := compiled.ToDescriptors()
	if err != nil {
		return 0
	}

	inst, err := themis.Open(themis.Config{
		DatabasePath: C.GoString(databasePath),
		Descriptors:  descriptors,
	})
	if err != nil {
		// No handle exists yet to stash the error against; a zero handle
		// signals open failure to the caller, which has no other way to
		// retrieve the reason without a live instance.
		return 0
	}
	h := cgo.NewHandle(inst)
	return C.uint64_t(h)
}

//export themis_close
func themis_close(handle C.uint64_t) {
	h := cgo.Handle(handle)
	if inst, ok := h.Value().(*themis.Instance); ok {
		_ = inst.Close()
	}
	lastErrors.Delete(h)
	h.Delete()
}

//export themis_last_error
func themis_last_error(handle C.uint64_t, buf *C.char, bufLen C.size_t) Status {
	h := cgo.Handle(handle)
	errVal, ok := lastErrors.Load(h)
	if !ok {
		return statusOK
	}
	err, _ := errVal.(error)
	writeCString(buf, bufLen, err.Error())
	return statusFor(err)
}

//export themis_save
func themis_save(handle C.uint64_t, dstPath *C.char) Status {
	h := cgo.Handle(handle)
	inst, ok := h.Value().(*themis.Instance)
	if !ok {
		return statusInvalidState
	}
	return recordError(h, inst.Save(C.GoString(dstPath)))
}

//export themis_restore
func themis_restore(handle C.uint64_t, srcPath *C.char) Status {
	h := cgo.Handle(handle)
	inst, ok := h.Value().(*themis.Instance)
	if !ok {
		return statusInvalidState
	}
	return recordError(h, inst.Restore(C.GoString(srcPath)))
}

//export themis_factory_reset
func themis_factory_reset(handle C.uint64_t) Status {
	h := cgo.Handle(handle)
	inst, ok := h.Value().(*themis.Instance)
	if !ok {
		return statusInvalidState
	}
	return recordError(h, inst.FactoryReset())
}

// Generic by-ID typed accessors, addressed with a themis_param_id
// constant. cmd/schemagen's generated header also declares one named
// prototype pair per parameter (themis_get_<group>_<name>/
// themis_set_<group>_<name>); neither this package nor cmd/schemagen
// defines those functions, so these by-ID primitives are the accessors
// the façade exports. Per spec.md's internal/readonly/writeonly note, the
// C-ABI façade never enforces the JSON-RPC surface's UI-only visibility
// flags.

//export themis_get_i32
func themis_get_i32(handle C.uint64_t, id C.uint32_t, out *C.int32_t) Status {
	h := cgo.Handle(handle)
	inst, ok := h.Value().(*themis.Instance)
	if !ok {
		return statusInvalidState
	}
	v, err := inst.Get(themis.ParamID(id))
	if err != nil {
		return recordError(h, err)
	}
	n, err := v.Int32()
	if err != nil {
		return recordError(h, err)
	}
	*out = C.int32_t(n)
	return statusOK
}

//export themis_set_i32
func themis_set_i32(handle C.uint64_t, id C.uint32_t, value C.int32_t) Status {
	h := cgo.Handle(handle)
	inst, ok := h.Value().(*themis.Instance)
	if !ok {
		return statusInvalidState
	}
	return recordError(h, inst.Set(themis.ParamID(id), themis.I32Value(int32(value))))
}

//export themis_get_f64
func themis_get_f64(handle C.uint64_t, id C.uint32_t, out *C.double) Status {
	h := cgo.Handle(handle)
	inst, ok := h.Value().(*themis.Instance)
	if !ok {
		return statusInvalidState
	}
	v, err := inst.Get(themis.ParamID(id))
	if err != nil {
		return recordError(h, err)
	}
	f, err := v.Float64()
	if err != nil {
		return recordError(h, err)
	}
	*out = C.double(f)
	return statusOK
}

//export themis_set_f64
func themis_set_f64(handle C.uint64_t, id C.uint32_t, value C.double) Status {
	h := cgo.Handle(handle)
	inst, ok := h.Value().(*themis.Instance)
	if !ok {
		return statusInvalidState
	}
	return recordError(h, inst.Set(themis.ParamID(id), themis.F64Value(float64(value))))
}

//export themis_get_string
func themis_get_string(handle C.uint64_t, id C.uint32_t, buf *C.char, bufLen C.size_t) Status {
	h := cgo.Handle(handle)
	inst, ok := h.Value().(*themis.Instance)
	if !ok {
		return statusInvalidState
	}
	v, err := inst.Get(themis.ParamID(id))
	if err != nil {
		return recordError(h, err)
	}
	s, err := v.Text()
	if err != nil {
		return recordError(h, err)
	}
	writeCString(buf, bufLen, s)
	return statusOK
}

//export themis_set_string
func themis_set_string(handle C.uint64_t, id C.uint32_t, value *C.char) Status {
	h := cgo.Handle(handle)
	inst, ok := h.Value().(*themis.Instance)
	if !ok {
		return statusInvalidState
	}
	return recordError(h, inst.Set(themis.ParamID(id), themis.StringValue(C.GoString(value))))
}

// writeCString copies s into buf (bufLen bytes, caller-owned), truncating
// and always NUL-terminating if it doesn't fit -- the same "caller
// supplies the buffer" contract as strlcpy, since returning a Go string
// across the C boundary would outlive the Go-side allocation that backs
// it.
func writeCString(buf *C.char, bufLen C.size_t, s string) {
	if buf == nil || bufLen == 0 {
		return
	}
	n := int(bufLen) - 1
	if n > len(s) {
		n = len(s)
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(bufLen))
	copy(dst, s[:n])
	dst[n] = 0
}

func main() {}
