package source

import (
	"fmt"
	"strings"

	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/filter"
	"github.com/markheger/streamsx.metrics/handler"
)

// Role selects what a source emits.
type Role int

// Source roles.
const (
	RoleJobStatus Role = iota
	RoleLog
	RoleMetrics
	RoleNotification
)

type roleSpec struct {
	name        string
	description string
	// view narrows the filter to the sub-trees the role reads.
	view func(*filter.Filter) *filter.Filter
	// attach sets the tree options the role needs.
	attach func(*handler.Options)
	// polls reports whether the role reads metrics on a ticker.
	polls bool
}

var roles = map[Role]roleSpec{
	RoleJobStatus: {
		name:        "job_status",
		description: "Emits the status of selected jobs on creation and on every change",
		view:        func(f *filter.Filter) *filter.Filter { return f },
		attach: func(o *handler.Options) {
			o.Depth = handler.LevelJob
			o.JobStatus = true
		},
	},
	RoleLog: {
		name:        "log",
		description: "Emits application log messages of the selected levels",
		view:        (*filter.Filter).LogsOnly,
		attach: func(o *handler.Options) {
			o.Depth = handler.LevelInstance
			o.Logs = true
		},
	},
	RoleMetrics: {
		name:        "metrics",
		description: "Emits selected PE, operator, and port metrics on every poll",
		view:        (*filter.Filter).WithoutLogs,
		attach: func(o *handler.Options) {
			o.Depth = handler.LevelPort
		},
		polls: true,
	},
	RoleNotification: {
		name:        "notification",
		description: "Emits lifecycle notifications of selected MBeans",
		view:        (*filter.Filter).WithoutLogs,
		attach: func(o *handler.Options) {
			o.Depth = handler.LevelPort
			o.Notifications = true
		},
	},
}

// String returns the role's configuration name.
func (r Role) String() string {
	if spec, ok := roles[r]; ok {
		return spec.name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole accepts a role's configuration name or its operator name, such
// as "metrics" or "MetricsSource", in any case.
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.TrimSuffix(key, "source")
	key = strings.ReplaceAll(key, "_", "")
	for role, spec := range roles {
		if strings.ReplaceAll(spec.name, "_", "") == key {
			return role, nil
		}
	}
	return 0, errors.WrapInvalid(fmt.Errorf("%w: unknown role %q", errors.ErrInvalidConfig, s),
		"source", "ParseRole", "role lookup")
}

// RoleNames lists the configuration names of all roles.
func RoleNames() []string {
	return []string{
		roles[RoleJobStatus].name, roles[RoleLog].name,
		roles[RoleMetrics].name, roles[RoleNotification].name,
	}
}
