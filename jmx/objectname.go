package jmx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Domain is the MBean domain of the streaming runtime.
const Domain = "com.ibm.streams.management"

// MBean types of the taxonomy.
const (
	TypeInstance   = "instance"
	TypeJob        = "job"
	TypePE         = "pe"
	TypeOperator   = "job.operator"
	TypeInputPort  = "job.operator.inputport"
	TypeOutputPort = "job.operator.outputport"
)

// Key properties, in canonical order after "type".
const (
	KeyType     = "type"
	KeyInstance = "instance"
	KeyJob      = "job"
	KeyPE       = "pe"
	KeyOperator = "operator"
	KeyPort     = "port"
)

var keyOrder = []string{KeyType, KeyInstance, KeyJob, KeyPE, KeyOperator, KeyPort}

// ObjectName is the canonical string form "domain:key=value,...".
// A pattern name may end in ",*" to match names with additional keys, and
// any value may be "*".
type ObjectName string

// NewObjectName builds a canonical name from key properties.
func NewObjectName(props map[string]string) ObjectName {
	var b strings.Builder
	b.WriteString(Domain)
	b.WriteByte(':')
	first := true
	write := func(k, v string) {
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	seen := make(map[string]bool, len(props))
	for _, k := range keyOrder {
		if v, ok := props[k]; ok {
			write(k, v)
			seen[k] = true
		}
	}
	var rest []string
	for k := range props {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		write(k, props[k])
	}
	return ObjectName(b.String())
}

// InstanceName returns the instance MBean name.
func InstanceName(instanceID string) ObjectName {
	return NewObjectName(map[string]string{KeyType: TypeInstance, KeyInstance: instanceID})
}

// JobName returns the MBean name of a job.
func JobName(instanceID, jobID string) ObjectName {
	return NewObjectName(map[string]string{KeyType: TypeJob, KeyInstance: instanceID, KeyJob: jobID})
}

// PEName returns the MBean name of a processing element.
func PEName(instanceID, jobID, peID string) ObjectName {
	return NewObjectName(map[string]string{KeyType: TypePE, KeyInstance: instanceID, KeyJob: jobID, KeyPE: peID})
}

// OperatorName returns the MBean name of an operator.
func OperatorName(instanceID, jobID, peID, operator string) ObjectName {
	return NewObjectName(map[string]string{
		KeyType: TypeOperator, KeyInstance: instanceID, KeyJob: jobID, KeyPE: peID, KeyOperator: operator,
	})
}

// PortName returns the MBean name of an operator input or output port.
func PortName(portType, instanceID, jobID, peID, operator string, index int) ObjectName {
	return NewObjectName(map[string]string{
		KeyType: portType, KeyInstance: instanceID, KeyJob: jobID, KeyPE: peID,
		KeyOperator: operator, KeyPort: strconv.Itoa(index),
	})
}

// ChildPattern returns the query pattern for children of the given type below
// parent: the parent's key properties, the child type, and a trailing wildcard.
func ChildPattern(parent ObjectName, childType string) ObjectName {
	props := parent.Properties()
	props[KeyType] = childType
	return ObjectName(string(NewObjectName(props)) + ",*")
}

// Domain returns the part before the colon.
func (n ObjectName) Domain() string {
	d, _, _ := strings.Cut(string(n), ":")
	return d
}

// Properties returns the key properties. A trailing wildcard is not included.
func (n ObjectName) Properties() map[string]string {
	_, list, _ := strings.Cut(string(n), ":")
	props := make(map[string]string)
	for _, kv := range strings.Split(list, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		props[k] = v
	}
	return props
}

// Property returns one key property or "".
func (n ObjectName) Property(key string) string {
	return n.Properties()[key]
}

// Type returns the "type" key property.
func (n ObjectName) Type() string {
	return n.Property(KeyType)
}

// IsPattern reports whether n contains wildcards.
func (n ObjectName) IsPattern() bool {
	return strings.HasSuffix(string(n), ",*") || strings.Contains(string(n), "=*")
}

// Matches reports whether n is selected by pattern.
func (n ObjectName) Matches(pattern ObjectName) bool {
	if !pattern.IsPattern() {
		return n == pattern
	}
	if n.Domain() != pattern.Domain() {
		return false
	}
	props := n.Properties()
	want := pattern.Properties()
	open := strings.HasSuffix(string(pattern), ",*")
	if !open && len(props) != len(want) {
		return false
	}
	for k, v := range want {
		got, ok := props[k]
		if !ok || (v != "*" && v != got) {
			return false
		}
	}
	return true
}

func (n ObjectName) String() string { return string(n) }

// ParseObjectName validates the "domain:key=value,..." shape.
func ParseObjectName(s string) (ObjectName, error) {
	d, list, ok := strings.Cut(s, ":")
	if !ok || d == "" || list == "" {
		return "", fmt.Errorf("jmx: malformed object name %q", s)
	}
	for _, kv := range strings.Split(list, ",") {
		if kv == "*" {
			continue
		}
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return "", fmt.Errorf("jmx: malformed key property %q in %q", kv, s)
		}
	}
	return ObjectName(s), nil
}
