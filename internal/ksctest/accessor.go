// ABOUTME: Fake ChunkAccessor and AsyncActionStateChecker endpoints
// ABOUTME: Serves paged result sets and scripted async action state sequences

package ksctest

import (
	"github.com/harper/ksc-bridge/internal/params"
)

// ServeAccessor makes accessor page through items.
func (s *Server) ServeAccessor(accessor string, items []*params.Params) {
	s.ServeAccessorWithCount(accessor, len(items), items)
}

// ServeAccessorWithCount reports count from GetItemsCount while only holding items,
// mimicking a result set that shrinks after it was counted.
func (s *Server) ServeAccessorWithCount(accessor string, count int, items []*params.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessors[accessor] = items
	s.counts[accessor] = count
	delete(s.released, accessor)
}

// Released reports whether Release was called for accessor.
func (s *Server) Released(accessor string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released[accessor]
}

func (s *Server) installAccessorHandlers() {
	s.Handle("ChunkAccessor.GetItemsCount", func(c Call) Reply {
		accessor := c.Args.Value("strAccessor").StringOr("")
		s.mu.Lock()
		count, ok := s.counts[accessor]
		s.mu.Unlock()
		if !ok {
			return Fault(1, "unknown accessor "+accessor)
		}
		return OK(RetVal(params.MustNative(count)))
	})

	s.Handle("ChunkAccessor.GetItemsChunk", func(c Call) Reply {
		accessor := c.Args.Value("strAccessor").StringOr("")
		start := c.Args.Value("nStart").IntOr(0)
		n := c.Args.Value("nCount").IntOr(0)

		s.mu.Lock()
		items, ok := s.accessors[accessor]
		released := s.released[accessor]
		s.mu.Unlock()
		if !ok || released {
			return Fault(1, "unknown accessor "+accessor)
		}

		end := start + n
		if start > len(items) {
			start = len(items)
		}
		if end > len(items) {
			end = len(items)
		}
		page := make([]params.Value, 0, end-start)
		for _, item := range items[start:end] {
			page = append(page, params.ParamsOf(item))
		}
		chunk := params.New().AddArray("KLCSP_ITERATOR_ARRAY", page...)
		return OK(params.New().
			AddParams("pChunk", chunk).
			Set("PxgRetVal", params.MustNative(len(page))))
	})

	s.Handle("ChunkAccessor.Release", func(c Call) Reply {
		accessor := c.Args.Value("strAccessor").StringOr("")
		s.mu.Lock()
		s.released[accessor] = true
		s.mu.Unlock()
		return OK(nil)
	})
}

// ActionState is one scripted answer of CheckActionState.
type ActionState struct {
	Finalized bool
	Succeeded bool
	StateCode int64
	// NextCheckDelay is in milliseconds; a negative value omits the field.
	NextCheckDelay int64
	Data           *params.Params
}

// ServeAction scripts the states returned for token, one per check. The last state
// repeats once the script is exhausted.
func (s *Server) ServeAction(token string, states ...ActionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[token] = states
}

func (s *Server) installActionHandlers() {
	s.Handle("AsyncActionStateChecker.CheckActionState", func(c Call) Reply {
		token := c.Args.Value("wstrActionGuid").StringOr("")
		s.mu.Lock()
		states := s.actions[token]
		if len(states) == 0 {
			s.mu.Unlock()
			return Fault(1, "unknown action "+token)
		}
		st := states[0]
		if len(states) > 1 {
			s.actions[token] = states[1:]
		}
		s.mu.Unlock()

		out := params.New().
			AddBool("bFinalized", st.Finalized).
			AddBool("bSuccededFinalized", st.Succeeded).
			Set("lStateCode", params.MustNative(st.StateCode))
		if st.Data != nil {
			out.AddParams("pStateData", st.Data)
		}
		if st.NextCheckDelay >= 0 {
			out.Set("lNextCheckDelay", params.MustNative(st.NextCheckDelay))
		}
		return OK(out)
	})

	s.Handle("AsyncActionStateChecker.CancelAction", func(c Call) Reply {
		return OK(nil)
	})
}
