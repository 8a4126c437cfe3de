// ABOUTME: Paged iteration over server-held result sets named by an accessor
// ABOUTME: Counts once, fetches chunks advancing by items returned, releases best effort

package chunk

import (
	"context"
	"fmt"

	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/params"
	"github.com/harper/ksc-bridge/internal/rpc"
)

const (
	classAccessor = "ChunkAccessor"

	// DefaultPageSize applies when the caller does not choose one.
	DefaultPageSize = 100

	itemsKey = "KLCSP_ITERATOR_ARRAY"
)

var log = logger.Named("chunk")

// Caller is the slice of the invoker this package needs.
type Caller interface {
	Call(ctx context.Context, methodPath string, in *params.Params) (*rpc.Response, error)
}

// Accessor is an opaque server handle; its contents are never interpreted.
type Accessor string

// Count returns the number of items currently behind the accessor.
func Count(ctx context.Context, c Caller, instance string, acc Accessor) (int, error) {
	method := rpc.MethodPath(instance, classAccessor, "GetItemsCount")
	resp, err := c.Call(ctx, method, params.New().AddString("strAccessor", string(acc)))
	if err != nil {
		return 0, err
	}
	rv, err := resp.ReturnValue()
	if err != nil {
		return 0, err
	}
	n, ok := rv.AsInt()
	if !ok || n < 0 {
		return 0, &apierrors.ContractError{Method: method, Param: rpc.RetValKey, Reason: "item count is not a non-negative integer: " + rv.String()}
	}
	return int(n), nil
}

// Chunk returns at most size items starting at start.
func Chunk(ctx context.Context, c Caller, instance string, acc Accessor, start, size int) ([]*params.Params, error) {
	method := rpc.MethodPath(instance, classAccessor, "GetItemsChunk")
	in := params.New().AddString("strAccessor", string(acc))
	if err := in.Add("nStart", start); err != nil {
		return nil, err
	}
	if err := in.Add("nCount", size); err != nil {
		return nil, err
	}
	resp, err := c.Call(ctx, method, in)
	if err != nil {
		return nil, err
	}
	out, err := resp.OutParam("pChunk")
	if err != nil {
		return nil, err
	}
	return chunkItems(method, out)
}

func chunkItems(method string, out params.Value) ([]*params.Params, error) {
	var raw []params.Value
	switch out.Kind() {
	case params.KindArray:
		raw = out.ArrayOr(nil)
	case params.KindParams:
		items := out.Lookup(itemsKey)
		if items.IsAbsent() || items.IsNull() {
			return nil, nil
		}
		arr, ok := items.AsArray()
		if !ok {
			return nil, &apierrors.ContractError{Method: method, Param: itemsKey, Reason: "chunk items are " + items.Kind().String() + ", want array"}
		}
		raw = arr
	case params.KindNull:
		return nil, nil
	default:
		return nil, &apierrors.ContractError{Method: method, Param: "pChunk", Reason: "chunk is " + out.Kind().String()}
	}

	result := make([]*params.Params, 0, len(raw))
	for i, item := range raw {
		p, ok := item.AsParams()
		if !ok {
			return nil, &apierrors.ContractError{Method: method, Param: fmt.Sprintf("%s[%d]", itemsKey, i), Reason: "item is " + item.Kind().String() + ", want params"}
		}
		result = append(result, p)
	}
	return result, nil
}

// Release frees the accessor on the server. Failures are logged; the server expires
// accessors on its own.
func Release(ctx context.Context, c Caller, instance string, acc Accessor) {
	method := rpc.MethodPath(instance, classAccessor, "Release")
	if _, err := c.Call(ctx, method, params.New().AddString("strAccessor", string(acc))); err != nil {
		log.Warn("release of accessor failed: %v", err)
	}
}

// State is the iterator's lifecycle position.
type State int

const (
	StateCreated State = iota
	StateFetching
	StateHasChunk
	StateExhausted
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateFetching:
		return "fetching"
	case StateHasChunk:
		return "has_chunk"
	case StateExhausted:
		return "exhausted"
	case StateReleased:
		return "released"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Iterator pages through one accessor. It is not safe for concurrent use.
type Iterator struct {
	caller   Caller
	accessor Accessor
	instance string
	pageSize int

	state  State
	total  int
	offset int
	calls  int
}

type Option func(*Iterator)

// WithPageSize sets the number of items requested per chunk.
func WithPageSize(n int) Option {
	return func(it *Iterator) {
		if n > 0 {
			it.pageSize = n
		}
	}
}

// WithInstance prefixes accessor calls with a server instance name.
func WithInstance(instance string) Option {
	return func(it *Iterator) {
		it.instance = instance
	}
}

func New(caller Caller, accessor Accessor, opts ...Option) *Iterator {
	it := &Iterator{
		caller:   caller,
		accessor: accessor,
		pageSize: DefaultPageSize,
		total:    -1,
	}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

func (it *Iterator) Accessor() Accessor { return it.accessor }
func (it *Iterator) State() State       { return it.state }
func (it *Iterator) PageSize() int      { return it.pageSize }

// Total is the count obtained on the first Next, or -1 before that.
func (it *Iterator) Total() int { return it.total }

// Offset is the number of items delivered so far.
func (it *Iterator) Offset() int { return it.offset }

// ChunkCalls is the number of chunk fetches performed.
func (it *Iterator) ChunkCalls() int { return it.calls }

// Done reports whether the iterator is exhausted or released.
func (it *Iterator) Done() bool {
	return it.state == StateExhausted || it.state == StateReleased
}

// Next fetches the next chunk. It returns nil items once exhausted.
func (it *Iterator) Next(ctx context.Context) ([]*params.Params, error) {
	return it.next(ctx, it.pageSize)
}

func (it *Iterator) next(ctx context.Context, size int) ([]*params.Params, error) {
	switch it.state {
	case StateReleased:
		return nil, &apierrors.ContractError{
			Method: rpc.MethodPath(it.instance, classAccessor, "GetItemsChunk"),
			Reason: "accessor used after release",
		}
	case StateExhausted:
		return nil, nil
	}

	if it.total < 0 {
		total, err := Count(ctx, it.caller, it.instance, it.accessor)
		if err != nil {
			return nil, err
		}
		it.total = total
		if total == 0 {
			it.state = StateExhausted
			return nil, nil
		}
	}

	prev := it.state
	it.state = StateFetching
	items, err := Chunk(ctx, it.caller, it.instance, it.accessor, it.offset, size)
	if err != nil {
		// A failed fetch leaves the position unchanged so the caller may retry.
		it.state = prev
		return nil, err
	}
	it.calls++

	if len(items) == 0 {
		log.Debug("accessor returned an empty chunk at %d of %d; treating as exhausted", it.offset, it.total)
		it.state = StateExhausted
		return nil, nil
	}
	it.offset += len(items)
	if it.offset >= it.total {
		it.state = StateExhausted
	} else {
		it.state = StateHasChunk
	}
	return items, nil
}

// Release frees the accessor. Later calls to Next fail with a contract error.
func (it *Iterator) Release(ctx context.Context) {
	if it.state == StateReleased {
		return
	}
	Release(ctx, it.caller, it.instance, it.accessor)
	it.state = StateReleased
}

// Collect reads items until exhaustion or until limit items are held. A limit of
// zero or less reads everything. The boolean result reports that items remained on
// the server when the limit stopped collection.
func (it *Iterator) Collect(ctx context.Context, limit int) ([]*params.Params, bool, error) {
	var items []*params.Params
	for it.state != StateExhausted {
		size := it.pageSize
		if limit > 0 {
			remaining := limit - len(items)
			if remaining <= 0 {
				return items, true, nil
			}
			if remaining < size {
				size = remaining
			}
		}
		page, err := it.next(ctx, size)
		if err != nil {
			return items, false, err
		}
		items = append(items, page...)
	}
	return items, false, nil
}
