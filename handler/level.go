package handler

import (
	"github.com/markheger/streamsx.metrics/filter"
	"github.com/markheger/streamsx.metrics/jmx"
)

// Level is the depth of a handler in the tree.
type Level int

// Handler levels, from the root.
const (
	LevelInstance Level = iota
	LevelJob
	LevelPE
	LevelOperator
	LevelPort
)

var levelNames = [...]string{"instance", "job", "pe", "operator", "port"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[l]
}

// childTypes returns the MBean types of the children of a handler at l.
func (l Level) childTypes() []string {
	switch l {
	case LevelInstance:
		return []string{jmx.TypeJob}
	case LevelJob:
		return []string{jmx.TypePE}
	case LevelPE:
		return []string{jmx.TypeOperator}
	case LevelOperator:
		return []string{jmx.TypeInputPort, jmx.TypeOutputPort}
	}
	return nil
}

// identity holds the ids of a handler and all its ancestors.
type identity struct {
	instanceID string
	jobID      string
	jobName    string
	peID       string
	operator   string
	portKind   filter.PortKind
	portIndex  string
}

// childKey returns the key of a child in its parent's map, or "" when name
// is not a child type of a handler at l.
func childKey(l Level, name jmx.ObjectName) string {
	t := name.Type()
	switch {
	case l == LevelInstance && t == jmx.TypeJob:
		return name.Property(jmx.KeyJob)
	case l == LevelJob && t == jmx.TypePE:
		return name.Property(jmx.KeyPE)
	case l == LevelPE && t == jmx.TypeOperator:
		return name.Property(jmx.KeyOperator)
	case l == LevelOperator && t == jmx.TypeInputPort:
		return "in:" + name.Property(jmx.KeyPort)
	case l == LevelOperator && t == jmx.TypeOutputPort:
		return "out:" + name.Property(jmx.KeyPort)
	}
	return ""
}

func portKindOf(name jmx.ObjectName) filter.PortKind {
	if name.Type() == jmx.TypeOutputPort {
		return filter.OutputPort
	}
	return filter.InputPort
}
