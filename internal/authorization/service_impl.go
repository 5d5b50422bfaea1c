package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/fixtrack/fixtrack/internal/actorcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectTimer     = "timer"
	ObjectTimeEntry = "time_entry"
	ObjectAuditLog  = "audit_log"
	ObjectSettings  = "settings"
)

const (
	// ActionTimerStartOwn covers the whole own-timer lifecycle:
	// start, pause, resume, stop, clear on the caller's own timer.
	ActionTimerStartOwn = "timer.start_own"
	// ActionTimerEditAny is the admin override: any operation on any
	// user's timer, plus reset.
	ActionTimerEditAny = "timer.edit_any"
	ActionTimerViewAll = "timer.view_all"

	ActionTimeEntryView   = "time_entry.view"
	ActionTimeEntryDelete = "time_entry.delete"

	ActionAuditLogView = "audit_log.view"

	ActionSettingsManage = "settings.manage"
)

const (
	RoleTechnician = "technician"
	RoleAdmin      = "admin"
	RoleSystem     = "system"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidActor = errors.New("invalid_actor")
)

// Service evaluates role capabilities. Roles come from the verified JWT;
// the role -> capability mapping lives in casbin policies.
type Service interface {
	Authorize(ctx context.Context, actor actorcontext.Actor, object string, action string) error
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor actorcontext.Actor, object string, action string) error {
	object = strings.TrimSpace(object)
	action = strings.TrimSpace(action)
	if object == "" || action == "" {
		return ErrInvalidActor
	}

	role := strings.ToLower(strings.TrimSpace(actor.Role))
	if role == "" {
		return ErrInvalidActor
	}

	subject := fmt.Sprintf("role:%s", role)
	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("capability denied",
			zap.String("actor_id", actor.UserID.String()),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Technicians manage their own timers and see their entries.
		{"role:technician", ObjectTimer, ActionTimerStartOwn},
		{"role:technician", ObjectTimeEntry, ActionTimeEntryView},

		// Admins additionally override any timer and see everything.
		{"role:admin", ObjectTimer, ActionTimerStartOwn},
		{"role:admin", ObjectTimer, ActionTimerEditAny},
		{"role:admin", ObjectTimer, ActionTimerViewAll},
		{"role:admin", ObjectTimeEntry, ActionTimeEntryView},
		{"role:admin", ObjectTimeEntry, ActionTimeEntryDelete},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
		{"role:admin", ObjectSettings, ActionSettingsManage},

		// The sweeper and other internal processes.
		{"role:system", ObjectTimer, ActionTimerStartOwn},
		{"role:system", ObjectTimer, ActionTimerEditAny},
		{"role:system", ObjectTimer, ActionTimerViewAll},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
