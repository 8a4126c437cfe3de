// ABOUTME: KSC domain operations composed from endpoint stubs, chunk iteration and polling
// ABOUTME: Every operation runs as a unit of work on one session

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harper/ksc-bridge/internal/chunk"
	apierrors "github.com/harper/ksc-bridge/internal/errors"
	"github.com/harper/ksc-bridge/internal/ksc"
	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/params"
	"github.com/harper/ksc-bridge/internal/rpc"
	"github.com/harper/ksc-bridge/internal/session"
)

var log = logger.Named("service")

// ErrInvalidArgument marks caller mistakes detected before any server call.
var ErrInvalidArgument = errors.New("invalid argument")

const (
	DefaultListLimit       = 50
	DefaultAccessorLife    = 600
	DefaultRemoveGroupWait = 5 * time.Minute

	removeGroupFlags = 1
)

type Config struct {
	// Instance prefixes every method path; empty addresses the main server.
	Instance string
	// ListLimit is the default cap for list operations.
	ListLimit int
	PageSize  int
	// AccessorLifetime is lMaxLifeTime in seconds for search result sets.
	AccessorLifetime int32
	FallbackDelay    time.Duration
	RemoveGroupWait  time.Duration
}

// Session is the part of *session.Session the service drives.
type Session interface {
	Do(ctx context.Context, fn func(ctx context.Context, c session.Caller) error) error
	MarkStale()
}

type Service struct {
	sess Session
	cfg  Config
}

func New(sess Session, cfg Config) *Service {
	if cfg.ListLimit == 0 {
		cfg.ListLimit = DefaultListLimit
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = chunk.DefaultPageSize
	}
	if cfg.AccessorLifetime <= 0 {
		cfg.AccessorLifetime = DefaultAccessorLife
	}
	if cfg.RemoveGroupWait <= 0 {
		cfg.RemoveGroupWait = DefaultRemoveGroupWait
	}
	return &Service{sess: sess, cfg: cfg}
}

func (s *Service) hostGroup(c session.Caller) *ksc.HostGroup {
	return ksc.NewHostGroup(c, s.cfg.Instance)
}
func (s *Service) tasks(c session.Caller) *ksc.Tasks { return ksc.NewTasks(c, s.cfg.Instance) }

func (s *Service) limit(requested int) int {
	switch {
	case requested > 0:
		return requested
	case requested < 0:
		return 0
	}
	if s.cfg.ListLimit < 0 {
		return 0
	}
	return s.cfg.ListLimit
}

// Ping checks the server answers. Any failure forces one reconnect before giving up.
func (s *Service) Ping(ctx context.Context) (string, error) {
	ping := func() error {
		return s.sess.Do(ctx, func(ctx context.Context, c session.Caller) error {
			_, err := s.hostGroup(c).GetDomains(ctx)
			return err
		})
	}
	if err := ping(); err != nil {
		log.Warn("ping failed, reconnecting: %v", err)
		s.sess.MarkStale()
		if err := ping(); err != nil {
			return "", err
		}
	}
	return "pong", nil
}

// collect reads an accessor left by a search and always releases it.
func (s *Service) collect(ctx context.Context, c session.Caller, resp *rpc.Response, limit int) ([]*params.Params, int, bool, error) {
	acc, err := resp.OutParam("strAccessor")
	if err != nil {
		return nil, 0, false, err
	}
	accessor, ok := acc.AsString()
	if !ok {
		return nil, 0, false, &apierrors.ContractError{Method: resp.Method, Param: "strAccessor", Reason: "accessor is " + acc.Kind().String()}
	}

	it := chunk.New(c, chunk.Accessor(accessor), chunk.WithPageSize(s.cfg.PageSize), chunk.WithInstance(s.cfg.Instance))
	defer it.Release(context.WithoutCancel(ctx))

	items, truncated, err := it.Collect(ctx, limit)
	if err != nil {
		return nil, 0, false, err
	}
	return items, it.Total(), truncated, nil
}

// quoteFilter escapes a value for use inside a double-quoted search filter term.
func quoteFilter(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}

func andFilter(terms []string) string {
	if len(terms) == 1 {
		return terms[0]
	}
	return "(&" + strings.Join(terms, "") + ")"
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
