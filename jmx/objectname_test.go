package jmx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectName_Builders(t *testing.T) {
	assert.Equal(t, ObjectName("com.ibm.streams.management:type=instance,instance=i0"), InstanceName("i0"))
	assert.Equal(t, ObjectName("com.ibm.streams.management:type=job,instance=i0,job=3"), JobName("i0", "3"))

	op := OperatorName("i0", "3", "7", "Beacon_1")
	assert.Equal(t, TypeOperator, op.Type())
	assert.Equal(t, "Beacon_1", op.Property(KeyOperator))
	assert.Equal(t, "7", op.Property(KeyPE))

	port := PortName(TypeInputPort, "i0", "3", "7", "Sink", 1)
	assert.Equal(t, "1", port.Property(KeyPort))
	assert.Equal(t, Domain, port.Domain())
}

func TestObjectName_Matches(t *testing.T) {
	jobs := ChildPattern(InstanceName("i0"), TypeJob)
	assert.Equal(t, ObjectName("com.ibm.streams.management:type=job,instance=i0,*"), jobs)

	tests := []struct {
		name    string
		n       ObjectName
		pattern ObjectName
		want    bool
	}{
		{"job of instance", JobName("i0", "1"), jobs, true},
		{"job of other instance", JobName("i1", "1"), jobs, false},
		{"pe is not a job", PEName("i0", "1", "2"), jobs, false},
		{"exact name", JobName("i0", "1"), JobName("i0", "1"), true},
		{"exact mismatch", JobName("i0", "1"), JobName("i0", "2"), false},
		{"value wildcard", JobName("i0", "9"), "com.ibm.streams.management:type=job,instance=i0,job=*", true},
		{"closed pattern rejects extra keys", PEName("i0", "1", "2"), "com.ibm.streams.management:type=pe,instance=*", false},
		{"other domain", "java.lang:type=Memory", "java.lang2:type=*", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.n.Matches(tt.pattern))
		})
	}
}

func TestParseObjectName(t *testing.T) {
	n, err := ParseObjectName("com.ibm.streams.management:type=job,instance=i0,job=3")
	require.NoError(t, err)
	assert.Equal(t, JobName("i0", "3"), n)

	_, err = ParseObjectName("no-colon")
	assert.Error(t, err)
	_, err = ParseObjectName("d:novalue")
	assert.Error(t, err)
	_, err = ParseObjectName("d:type=job,*")
	assert.NoError(t, err)
}

func TestChildNotifications(t *testing.T) {
	added, removed := ChildNotifications(TypePE)
	assert.Equal(t, NotifyPEAdded, added)
	assert.Equal(t, NotifyPERemoved, removed)

	added, removed = ChildNotifications("unknown")
	assert.Empty(t, added)
	assert.Empty(t, removed)
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, "error", LogLevel(NotifyLogPrefix+"error"))
	assert.Empty(t, LogLevel(NotifyJobAdded))
	assert.True(t, IsConnectionNotification(NotifyConnectionNotifLost))
	assert.False(t, IsConnectionNotification(NotifyJobAdded))
}
