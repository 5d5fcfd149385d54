package engine

import (
	"context"

	"github.com/tetratelabs/wazero"

	"github.com/nvoxland/bundlebase/internal/bberrors"
	"github.com/nvoxland/bundlebase/internal/decoder"
	"github.com/nvoxland/bundlebase/internal/schema"
)

// WasmFunctionBody compiles module with wazero and wraps it as a
// FunctionBody (spec §9 "for persisted bundles, a serialized body
// (e.g. bytecode pack)"). module must export a memory plus two i32
// functions: page_ptr(page) and page_len(page), returning the offset
// and byte length of that page's row data, JSON-array or JSONL encoded
// (decoded with the same decoder.JSONLDecoder Attach uses for
// .json/.jsonl files). page_len returning 0 ends the scan — the same
// termination rule evalScan already applies to in-process
// FunctionBody closures.
func WasmFunctionBody(ctx context.Context, module []byte) (FunctionBody, error) {
	runtime := wazero.NewRuntime(ctx)
	compiled, err := runtime.CompileModule(ctx, module)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, bberrors.Wrap(bberrors.ExecutionErrorKind, err, "compiling persisted function body")
	}
	instance, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, bberrors.Wrap(bberrors.ExecutionErrorKind, err, "instantiating persisted function body")
	}

	pagePtr := instance.ExportedFunction("page_ptr")
	pageLen := instance.ExportedFunction("page_len")
	mem := instance.Memory()
	if pagePtr == nil || pageLen == nil || mem == nil {
		_ = runtime.Close(ctx)
		return nil, bberrors.New(bberrors.ExecutionErrorKind,
			"persisted function body must export memory, page_ptr(i32)->i32 and page_len(i32)->i32")
	}

	return func(ctx context.Context, page int) (schema.Batch, error) {
		lenResult, err := pageLen.Call(ctx, uint64(uint32(page)))
		if err != nil {
			return schema.Batch{}, bberrors.Wrap(bberrors.ExecutionErrorKind, err, "calling page_len(%d)", page)
		}
		n := uint32(lenResult[0])
		if n == 0 {
			return schema.Batch{}, nil
		}
		ptrResult, err := pagePtr.Call(ctx, uint64(uint32(page)))
		if err != nil {
			return schema.Batch{}, bberrors.Wrap(bberrors.ExecutionErrorKind, err, "calling page_ptr(%d)", page)
		}
		data, ok := mem.Read(uint32(ptrResult[0]), n)
		if !ok {
			return schema.Batch{}, bberrors.New(bberrors.ExecutionErrorKind, "persisted function body page %d out of memory bounds", page)
		}
		// Read returns a view into guest memory; copy before handing it
		// to the decoder since the next call can reuse the same pages.
		buf := make([]byte, len(data))
		copy(buf, data)
		s, rows, err := decoder.JSONLDecoder{}.Decode(ctx, buf)
		if err != nil {
			return schema.Batch{}, bberrors.Wrap(bberrors.DecodeErrorKind, err, "decoding persisted function body page %d", page)
		}
		return schema.Batch{Schema: s, Rows: rows}, nil
	}, nil
}
