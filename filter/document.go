package filter

// Wire form of a filter document. An absent or empty pattern matches every
// value; an absent or empty list matches every child.

type instanceDoc struct {
	InstanceIDPatterns string   `json:"instanceIdPatterns,omitempty"`
	Jobs               []jobDoc `json:"jobs,omitempty"`
	Logs               []logDoc `json:"logs,omitempty"`
}

type jobDoc struct {
	JobNamePatterns string  `json:"jobNamePatterns,omitempty"`
	PEs             []peDoc `json:"pes,omitempty"`
}

type peDoc struct {
	PEIDPatterns       string        `json:"peIdPatterns,omitempty"`
	MetricNamePatterns string        `json:"metricNamePatterns,omitempty"`
	Operators          []operatorDoc `json:"operators,omitempty"`
}

type operatorDoc struct {
	OperatorNamePatterns string    `json:"operatorNamePatterns,omitempty"`
	MetricNamePatterns   string    `json:"metricNamePatterns,omitempty"`
	InputPorts           []portDoc `json:"inputPorts,omitempty"`
	OutputPorts          []portDoc `json:"outputPorts,omitempty"`
}

type portDoc struct {
	PortIndexes        string `json:"portIndexes,omitempty"`
	MetricNamePatterns string `json:"metricNamePatterns,omitempty"`
}

type logDoc struct {
	LevelPatterns string `json:"levelPatterns,omitempty"`
}
